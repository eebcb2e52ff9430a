package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// forwardingHeaders are consulted in order when the service sits behind a trusted proxy
var forwardingHeaders = []string{
	"CF-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// clientIPResolver returns the caller address, or "" when none can be determined.
type clientIPResolver func(r *http.Request) string

func newClientIPResolver(trustProxy bool) clientIPResolver {
	if trustProxy {
		return forwardedClientIP
	}
	return remoteClientIP
}

// forwardedClientIP takes the first public address found in the forwarding headers.
// Private or loopback values are skipped, so a client cannot claim to be an internal host.
func forwardedClientIP(r *http.Request) string {
	for _, header := range forwardingHeaders {
		value := strings.TrimSpace(r.Header.Get(header))
		if value == "" {
			continue
		}

		first, _, _ := strings.Cut(value, ",")
		addr, err := netip.ParseAddr(strings.TrimSpace(first))
		if err != nil || !isPublic(addr) {
			continue
		}
		return addr.Unmap().String()
	}

	return remoteClientIP(r)
}

func remoteClientIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(host))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}

func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	return !(addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified())
}
