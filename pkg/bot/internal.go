package bot

import (
	"net/netip"
	"strings"
)

// IsInternalAddress reports whether addr belongs to private or loopback
// infrastructure (RFC 1918, loopback, IPv6 unique-local/link-local, "localhost").
// Such addresses are never reported as visitors.
func IsInternalAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if strings.EqualFold(addr, "localhost") {
		return true
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
