package app

import (
	"github.com/stacklok/ldap-sync-checker/internal/service"
	"github.com/stacklok/ldap-sync-checker/internal/sync/coordinator"
	"github.com/stacklok/ldap-sync-checker/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Coordinator runs the periodic sync check
	Coordinator coordinator.Coordinator

	// StatusService answers the HTTP API
	StatusService service.StatusService

	// Telemetry owns the tracer and meter providers
	Telemetry *telemetry.Telemetry
}
