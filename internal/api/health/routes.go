// Package health provides the liveness, readiness and version endpoints.
package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/thv-git-api/internal/api/common"
	"github.com/stacklok/thv-git-api/internal/versions"
)

// ReadinessChecker reports whether the server can serve requests
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// StatusResponse is the body of the health and readiness endpoints
type StatusResponse struct {
	Status string `json:"status"`
}

// Router creates a router for health check endpoints
func Router(checker ReadinessChecker) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(checker))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, StatusResponse{Status: "healthy"}, http.StatusOK)
}

func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.CheckReadiness(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			common.WriteErrorResponse(w, "service not ready", http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, StatusResponse{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
