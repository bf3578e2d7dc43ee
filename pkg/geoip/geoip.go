// Package geoip resolves visitor addresses to countries using the database
// embedded in iploc.
package geoip

import (
	"net"
	"net/netip"
	"sync"

	"github.com/phuslu/iploc"
)

// Unknown is reported for addresses that cannot be placed.
const Unknown = "??"

// Locator looks up country codes and caches the answers. The zero value is
// ready to use.
type Locator struct {
	cache sync.Map // address -> country code
}

// NewLocator returns an empty Locator.
func NewLocator() *Locator {
	return &Locator{}
}

// Country returns the ISO country code for addr, or Unknown when addr is not
// an address or is not in the database. Internal addresses are always Unknown.
func (l *Locator) Country(addr string) string {
	if l == nil {
		return Unknown
	}
	if cached, ok := l.cache.Load(addr); ok {
		return cached.(string)
	}
	code := lookup(addr)
	l.cache.Store(addr, code)
	return code
}

// Cached reports how many distinct addresses have been resolved.
func (l *Locator) Cached() int {
	n := 0
	l.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func lookup(addr string) string {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return Unknown
	}
	ip = ip.Unmap()
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return Unknown
	}
	if code := iploc.Country(net.IP(ip.AsSlice())); code != "" {
		return code
	}
	return Unknown
}
