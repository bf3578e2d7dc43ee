package session

import (
	"net/url"
	"path"
	"strings"
)

// systemPrefixes are request paths served for the site's machinery rather than
// pages a visitor reads.
var systemPrefixes = []string{
	"/_next/",
	"/static/",
	"/assets/",
	"/build/",
	"/api/",
	"/.well-known/",
	"/favicon",
	"/robots.txt",
	"/sitemap",
	"/manifest",
	"/apple-touch-icon",
	"/wp-",
	"/cdn-cgi/",
}

var assetExtensions = map[string]bool{
	".js": true, ".css": true, ".map": true, ".json": true, ".xml": true, ".txt": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".php": true,
}

// NormalizePath strips the query string and fragment from a request path.
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	return p
}

// PagePath reduces a page reference to its normalized path. Absolute URLs,
// as sent by the browser tracker, keep only their path.
func PagePath(ref string) string {
	if strings.Contains(ref, "://") {
		if u, err := url.Parse(ref); err == nil && u.Host != "" {
			return NormalizePath(u.Path)
		}
	}
	return NormalizePath(ref)
}

// IsActualPage reports whether p is a page a human would view, as opposed to
// an asset, build artifact, API call or well-known system path.
func IsActualPage(p string) bool {
	p = NormalizePath(p)
	if !strings.HasPrefix(p, "/") {
		return false
	}
	lower := strings.ToLower(p)
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return !assetExtensions[path.Ext(lower)]
}
