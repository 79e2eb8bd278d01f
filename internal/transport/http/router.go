// Package httptransport assembles the HTTP surface: middleware chain,
// authenticated API routes, operator routes, and operational endpoints.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "veritrail/internal/auditlog/handler"
	obshandler "veritrail/internal/observation/handler"
	tenanthandler "veritrail/internal/tenant/handler"
	"veritrail/pkg/platform/middleware/admin"
	"veritrail/pkg/platform/middleware/auth"
	"veritrail/pkg/platform/middleware/metadata"
	"veritrail/pkg/platform/middleware/request"
	"veritrail/pkg/platform/middleware/requesttime"
)

// RouterConfig carries the handlers and middleware collaborators.
type RouterConfig struct {
	Observations *obshandler.Handler
	Audit        *audithandler.Handler
	Tenants      *tenanthandler.Handler

	Validator     auth.Validator
	TenantGate    auth.TenantGate
	Security      auth.SecurityReporter
	OperatorToken string

	Logger *slog.Logger
}

// NewRouter builds the full route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public: the invitee has no token yet.
		cfg.Tenants.RegisterPublic(r)

		// Operator: platform provisioning, guarded by a shared token.
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireOperatorToken(cfg.OperatorToken, cfg.Logger))
			cfg.Tenants.RegisterOperator(r)
		})

		// Tenant API: everything here runs as an authenticated actor.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(cfg.Validator, cfg.TenantGate, cfg.Security, cfg.Logger))
			cfg.Observations.Register(r)
			cfg.Audit.Register(r)
			cfg.Tenants.Register(r)
		})
	})

	return r
}
