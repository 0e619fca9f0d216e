package handlers

import (
	"context"
	"net/http"
	"time"
)

const upstreamHealthTimeout = 3 * time.Second

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "upstream": "ok"}
	if a.Upstream != nil {
		ctx, cancel := context.WithTimeout(r.Context(), upstreamHealthTimeout)
		defer cancel()
		if _, err := a.Upstream.Health(ctx); err != nil {
			resp["status"] = "degraded"
			resp["upstream"] = "unreachable"
			resp["upstream_error"] = err.Error()
		}
	}
	a.json(w, http.StatusOK, resp)
}
