package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shandysiswandi/gotp/internal/pkg/goerror"
	"github.com/shandysiswandi/gotp/internal/pkg/router"
)

type pinger func(ctx context.Context) error

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func (healthResponse) Message() string {
	return "service is healthy"
}

// healthHandler pings every dependency and answers 503 when one is down.
func healthHandler(deps map[string]pinger) router.Handler {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(r *router.Request) (any, error) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Services: make(map[string]string, len(deps))}
		var failed error
		kv := make([]string, 0, 2*len(deps))
		for _, name := range names {
			status := "up"
			if err := deps[name](ctx); err != nil {
				slog.WarnContext(ctx, "health check failed", "service", name, "error", err)
				failed = errors.Join(failed, fmt.Errorf("%s: %w", name, err))
				status = "down"
			}
			resp.Services[name] = status
			kv = append(kv, name, status)
		}

		if failed != nil {
			return nil, goerror.NewBusinessCause(failed, "Service unavailable", goerror.CodeUnavailable, kv...)
		}
		return resp, nil
	}
}
