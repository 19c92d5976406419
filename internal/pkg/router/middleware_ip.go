package router

import (
	"context"
	"net/http"
	"net/netip"
	"strings"

	"github.com/shandysiswandi/gotp/internal/pkg/config"
)

// forwardedHeaders are consulted in order.
var forwardedHeaders = []string{"True-Client-IP", "X-Real-IP", "X-Forwarded-For"}

type clientIPKey struct{}

// middlewareIP resolves the caller address once and stores it in the
// request context. Proxy headers are ignored when
// app.server.ignore_forwarded_headers is set.
//
// With app.server.trusted_proxy_hops > 0 the X-Forwarded-For entry appended
// by the outermost trusted proxy is used, so hops a client writes itself are
// skipped. With 0 the first entry is used.
func middlewareIP(cfg config.Config) Middleware {
	trustForwarded := cfg == nil || !cfg.GetBool("app.server.ignore_forwarded_headers")
	hops := 0
	if cfg != nil {
		hops = max(cfg.GetInt("app.server.trusted_proxy_hops"), 0)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r.RemoteAddr)
			if trustForwarded {
				if fip := forwardedIP(r.Header, hops); fip != "" {
					ip = fip
				}
			}
			if ip != "" {
				r = r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedIP(h http.Header, hops int) string {
	for _, name := range forwardedHeaders {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if addr, err := netip.ParseAddr(strings.TrimSpace(forwardedHop(v, hops))); err == nil {
			return addr.Unmap().String()
		}
	}
	return ""
}

// forwardedHop picks the entry hops positions from the right of a
// comma-separated list, or the first entry when hops is 0.
func forwardedHop(v string, hops int) string {
	parts := strings.Split(v, ",")
	if hops == 0 || hops > len(parts) {
		return parts[0]
	}
	return parts[len(parts)-hops]
}

func remoteIP(remote string) string {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap().String()
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.Unmap().String()
	}
	return ""
}
