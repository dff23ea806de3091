package http

import (
	"net/http"

	"creatoros-backend/internal/config"
	"creatoros-backend/internal/metrics"
	"creatoros-backend/internal/security"
	"creatoros-backend/internal/service"

	"github.com/gorilla/mux"
)

type RouterDeps struct {
	TokenManager   security.TokenManager
	LedgerService  service.LedgerService
	OrgService     service.OrganizationService
	RateLimiter    *RateLimiter // nil disables rate limiting
	MetricsEnabled bool
}

// NewRouter wires every route of the public API. Middleware runs after route
// matching so it can look up the route's security level by name.
func NewRouter(deps RouterDeps) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet).Name(config.RouteHealth)
	if deps.MetricsEnabled {
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet).Name(config.RouteMetrics)
	}

	ledger := NewLedgerHandler(deps.LedgerService)
	orgs := NewOrganizationHandler(deps.OrgService)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/balance", ledger.GetBalance).Methods(http.MethodGet).Name(config.RouteGetBalance)
	api.HandleFunc("/credits/consume", ledger.Consume).Methods(http.MethodPost).Name(config.RouteConsume)
	api.HandleFunc("/credits/grant", ledger.Grant).Methods(http.MethodPost).Name(config.RouteGrant)
	api.HandleFunc("/credits/purchase", ledger.Purchase).Methods(http.MethodPost).Name(config.RoutePurchase)
	api.HandleFunc("/credits/refund", ledger.Refund).Methods(http.MethodPost).Name(config.RouteRefund)
	api.HandleFunc("/credits/adjust", ledger.Adjust).Methods(http.MethodPost).Name(config.RouteAdjust)
	api.HandleFunc("/credits/history", ledger.History).Methods(http.MethodGet).Name(config.RouteHistory)
	api.HandleFunc("/credits/usage", ledger.UsageSummary).Methods(http.MethodGet).Name(config.RouteUsage)
	api.HandleFunc("/organizations", orgs.CreateOrganization).Methods(http.MethodPost).Name(config.RouteCreateOrganization)
	api.HandleFunc("/organizations/{id}", orgs.GetOrganization).Methods(http.MethodGet).Name(config.RouteGetOrganization)

	router.Use(MetricsMiddleware)
	router.Use(NewAuthMiddleware(deps.TokenManager).Handler)
	if deps.RateLimiter != nil {
		router.Use(deps.RateLimiter.Handler)
	}

	return router
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
