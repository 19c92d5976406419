package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shandysiswandi/gotp/internal/pkg/config"
)

const healthRoute = "/health"

// middlewareMaintenance answers 503 for the routes listed in
// app.maintenance.endpoints. The entry "*" closes every route except the
// health check.
func middlewareMaintenance(cfg config.Config) Middleware {
	blocked := make(map[string]struct{})
	var everything bool
	var retryAfter string

	if cfg != nil {
		for _, endpoint := range cfg.GetArray("app.maintenance.endpoints") {
			switch endpoint = strings.TrimSpace(endpoint); endpoint {
			case "":
			case "*":
				everything = true
			default:
				blocked[endpoint] = struct{}{}
			}
		}
		if d := cfg.GetDuration("app.maintenance.retry_after"); d > 0 {
			retryAfter = strconv.Itoa(int(d.Seconds()))
		}
	}

	return func(next http.Handler) http.Handler {
		if !everything && len(blocked) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := matchedRoutePath(r)
			_, hit := blocked[route]
			if hit || (everything && route != healthRoute) {
				if retryAfter != "" {
					w.Header().Set("Retry-After", retryAfter)
				}
				writeJSON(w, errorResponse{Message: "Service is under maintenance"}, http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
