package knowledge

import (
	"net"
	"net/url"
	"strings"
)

// IsPublicHTTPURL reports whether a URL is safe to fetch on behalf of a
// client: http or https, and not pointing at loopback, private, link-local,
// multicast, or internal-only hostnames. Hostnames that are not IP literals
// are accepted as long as they do not use an internal suffix.
func IsPublicHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if host == "localhost" || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return false
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return false
	}
	if !ip.IsGlobalUnicast() {
		return false
	}
	return true
}
