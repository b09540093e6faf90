package main

import (
	"log"
	"net/http"

	"lifedash/internal/app"
	"lifedash/internal/shared/config"
	"lifedash/internal/shared/middleware"
	"lifedash/internal/shared/telemetry"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *app.Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("GET /health", deps.HealthHandler.HandleHealth)
	if cfg.Telemetry.Enabled {
		mux.Handle("GET /metrics", telemetry.MetricsHandler())
	}

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)
	protect := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authMiddleware(h))
	}

	protect("POST /api/integrations/{provider}/sync", deps.IntegrationHandler.HandleSync)
	protect("GET /api/integrations/{provider}/jobs/{id}", deps.IntegrationHandler.HandleGetJob)
	protect("GET /api/integrations/{provider}/logs", deps.IntegrationHandler.HandleLogs)
	protect("GET /api/integrations/{provider}/logs/stream", deps.IntegrationHandler.HandleLogStream)
	protect("POST /api/integrations/{provider}/inbox", deps.IntegrationHandler.HandleEnqueueInbox)

	protect("POST /api/transactions", deps.TransactionHandler.HandleCreateTransaction)

	protect("/api/rules", deps.RuleHandler.HandleRules)
	protect("/api/rules/{id}", deps.RuleHandler.HandleRuleByID)

	// Tracing sits directly on the mux so it sees the matched pattern
	var handler http.Handler = middleware.Tracing(mux)
	handler = middleware.SecurityHeaders(middleware.CORS(cfg.Server.AllowedHosts)(handler))
	handler = middleware.Logging(handler)

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Println("TLS security middleware enabled (HSTS)")
	}

	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}

	return handler
}
