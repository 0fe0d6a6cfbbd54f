package main

import (
	"log"
	"net/http"

	"ledgerlink/internal/shared/config"
	"ledgerlink/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", handleHealth)

	// Provider webhooks (authenticated by payload, not by session)
	mux.HandleFunc("/webhooks/provider", deps.WebhookHandler.HandleProviderWebhook)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)

	mux.Handle("/api/link/token", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleCreateLinkToken)))
	mux.Handle("/api/link/exchange", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleExchange)))
	mux.Handle("/api/link/limit", authMiddleware(http.HandlerFunc(deps.LinkHandler.HandleLinkLimit)))
	mux.Handle("/api/items/", authMiddleware(http.HandlerFunc(deps.ItemHandler.HandleListItems)))
	mux.Handle("/api/items/{id}", authMiddleware(http.HandlerFunc(deps.ItemHandler.HandleItemByID)))
	mux.Handle("/api/items/{id}/dismiss-new-accounts", authMiddleware(http.HandlerFunc(deps.ItemHandler.HandleDismissNewAccounts)))

	// Apply global middleware
	handler := middleware.Logging(middleware.Telemetry(middleware.Tracing(middleware.CORS(cfg.Server.AllowedHosts)(mux))))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
