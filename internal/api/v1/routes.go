// Package v1 provides the monitor's status and health endpoints.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/ldap-sync-checker/internal/api/common"
	"github.com/stacklok/ldap-sync-checker/internal/service"
	"github.com/stacklok/ldap-sync-checker/internal/status"
	"github.com/stacklok/ldap-sync-checker/internal/sync"
	"github.com/stacklok/ldap-sync-checker/internal/versions"
)

// StatusListResponse is the body of GET /v1/status
type StatusListResponse struct {
	Consumers []*status.ConsumerStatus `json:"consumers"`
	Total     int                      `json:"total"`
}

// Routes serves the status API
type Routes struct {
	service service.StatusService
}

// Router creates the /v1 router
func Router(svc service.StatusService) http.Handler {
	routes := &Routes{service: svc}

	r := chi.NewRouter()
	r.Get("/status", routes.listStatus)
	r.Get("/status/{consumer}", routes.getStatus)
	r.Get("/result", routes.lastResult)

	return r
}

// listStatus handles GET /v1/status
func (rr *Routes) listStatus(w http.ResponseWriter, r *http.Request) {
	list, err := rr.service.ListConsumerStatus(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list consumer status", "error", err)
		common.WriteErrorResponse(w, "Failed to load consumer status", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, StatusListResponse{Consumers: list, Total: len(list)}, http.StatusOK)
}

// getStatus handles GET /v1/status/{consumer}
func (rr *Routes) getStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "consumer")

	st, err := rr.service.GetConsumerStatus(r.Context(), name)
	switch {
	case errors.Is(err, service.ErrConsumerNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Failed to get consumer status", "consumer", name, "error", err)
		common.WriteErrorResponse(w, "Failed to load consumer status", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, st, http.StatusOK)
}

// lastResult handles GET /v1/result. A run that aborted at the provider is
// reported as 502; no run yet as 503.
func (rr *Routes) lastResult(w http.ResponseWriter, r *http.Request) {
	result, err := rr.service.LastResult(r.Context())
	switch {
	case errors.Is(err, service.ErrNotReady):
		common.WriteErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
		return
	case sync.IsConnectivityFailure(err):
		common.WriteErrorResponse(w, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		common.WriteErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, result, http.StatusOK)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.StatusService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler reports that the process is serving
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once the first check has finished
func readinessHandler(svc service.StatusService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "Monitor not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
