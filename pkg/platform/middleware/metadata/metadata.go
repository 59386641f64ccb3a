// Package metadata resolves the client address of a request, honouring
// forwarding headers only when they were set by a trusted proxy.
package metadata

import (
	"net/http"
	"net/netip"
	"strings"

	"credlife/pkg/requestcontext"
)

// MaxForwardedHeaderLength bounds the forwarding headers we are willing to parse.
const MaxForwardedHeaderLength = 500

const unknownAddr = "unknown"

// ClientIP stores the resolved client address in the request context.
// With no trusted proxies, forwarding headers are ignored.
func ClientIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	r := resolver{trusted: trusted}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithClientIP(req.Context(), r.resolve(req))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

type resolver struct {
	trusted []netip.Prefix
}

// resolve walks X-Forwarded-For from the nearest hop outwards and returns
// the first address not owned by a trusted proxy. X-Real-IP is used when
// XFF is absent.
func (r resolver) resolve(req *http.Request) string {
	remote, ok := parseRemoteAddr(req.RemoteAddr)
	if !ok {
		return unknownAddr
	}
	if !r.isTrusted(remote) {
		return remote.String()
	}

	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		if len(xff) > MaxForwardedHeaderLength {
			return remote.String()
		}
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return remote.String()
			}
			addr = addr.Unmap()
			if !r.isTrusted(addr) || i == 0 {
				return addr.String()
			}
		}
	}

	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); xri != "" && len(xri) <= MaxForwardedHeaderLength {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}
	return remote.String()
}

func (r resolver) isTrusted(addr netip.Addr) bool {
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseRemoteAddr accepts "host:port" as set by net/http and a bare address
// as set by some test harnesses.
func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(strings.Trim(remoteAddr, "[]")); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}
