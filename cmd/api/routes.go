package main

import (
	"net/http"

	httphandlers "finsync/internal/interfaces/http"
	"finsync/internal/shared/config"
	"finsync/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	syncHandler := httphandlers.NewSyncHandler(deps.Coordinator, deps.Connections, deps.Transactions)

	mux.HandleFunc("/health", httphandlers.HandleHealth)

	mux.HandleFunc("GET /api/connections", syncHandler.HandleListConnections)
	mux.HandleFunc("GET /api/connections/{id}", syncHandler.HandleGetConnection)
	mux.HandleFunc("POST /api/connections/{id}/sync", syncHandler.HandleSync)

	handler := middleware.Logging(mux)
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}

	return handler
}
