// Package server assembles the HTTP API router and the gRPC health server.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	approvalhandler "union-registry/backend/internal/approval/handler"
	activityhandler "union-registry/backend/internal/auditlog/handler"
	disclosurehandler "union-registry/backend/internal/disclosure/handler"
	filinghandler "union-registry/backend/internal/filing/handler"
	identityhandler "union-registry/backend/internal/identity/handler"
	"union-registry/backend/internal/platform/metrics"
	"union-registry/backend/internal/platform/rbac"
	"union-registry/backend/internal/server/middleware"
	unionhandler "union-registry/backend/internal/union/handler"
)

// HTTPDeps holds the handlers and collaborators mounted by NewRouter.
type HTTPDeps struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// MetricsHandler serves /metrics. If nil, the route is not mounted.
	MetricsHandler http.Handler
	// Health serves /healthz.
	Health http.Handler

	Tokens     middleware.AccessValidator
	Identities rbac.IdentityGetter

	Verification *identityhandler.Handler
	Unions       *unionhandler.Handler
	Filing       *filinghandler.Handler
	Disclosure   *disclosurehandler.Handler
	Approval     *approvalhandler.Handler
	Activity     *activityhandler.Handler

	CORSOrigins []string
	// DevRoutes mounts GET /dev/verification-code. Never set in production.
	DevRoutes bool
}

// NewRouter returns the HTTP API.
//
// Route groups:
//   - public: SMS verification, admin login, token refresh, health, metrics
//   - authenticated: union list
//   - verified identity: registration, filing, disclosure, own union and request
//   - admin: decisions, latest request of any union, activity log
func NewRouter(d HTTPDeps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.ClientIP)
	r.Use(middleware.AccessLog(logger, d.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.Health != nil {
		r.Method(http.MethodGet, "/healthz", d.Health)
	}
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}
	if d.DevRoutes && d.Verification != nil {
		r.Get("/dev/verification-code", d.Verification.DevVerificationCode)
	}

	r.Route("/api", func(r chi.Router) {
		if d.Verification != nil {
			r.Post("/send-sms", d.Verification.SendSMS)
			r.Post("/verify-sms", d.Verification.VerifySMS)
			r.Post("/admin-login", d.Verification.AdminLogin)
			r.Post("/auth/refresh", d.Verification.Refresh)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(d.Tokens))
			r.Get("/unions", d.Unions.List)

			r.Group(func(r chi.Router) {
				r.Use(rbac.IdentityOnly(d.Identities, logger))
				r.Post("/unions/register", d.Unions.Register)
				r.Get("/unions/my-union", d.Unions.MyUnion)
				r.Post("/requests/create", d.Filing.Create)
				r.Get("/request/my-request", d.Filing.MyRequest)
				r.Post("/financial-data", d.Disclosure.Update)
			})

			r.Group(func(r chi.Router) {
				r.Use(rbac.AdminOnly(d.Identities, logger))
				r.Post("/unions/{unionID}/approve", d.Approval.Decide)
				r.Get("/unions/{unionID}/requests/latest", d.Filing.Latest)
				r.Get("/activity", d.Activity.List)
			})
		})
	})
	return r
}
