package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobboard-portal/internal/events"
	"jobboard-portal/internal/guard"
	"jobboard-portal/internal/middleware"
	"jobboard-portal/internal/security"
	"jobboard-portal/internal/session"
	ws "jobboard-portal/internal/websocket"
)

// RouterConfig carries everything the portal routes are built from.
type RouterConfig struct {
	Registry       *session.Registry
	Publisher      events.Publisher
	Hub            *ws.Hub
	Routes         *guard.Routes
	Tokens         TokenSource
	BackendURL     *url.URL
	AllowedOrigins []string
	Cookies        middleware.CookieOptions
	OpenAPI        middleware.OpenAPIValidatorConfig
	Readiness      []ReadinessCheck

	// Optional; requests are not limited when nil.
	AuthLimiter *middleware.RateLimiter
	APILimiter  *middleware.RateLimiter

	Title     string
	AssetBase string
}

// NewRouter assembles the portal HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	csrfTokens := security.NewTokenManager()

	authHandler := NewAuthHandler()
	guardHandler := NewGuardHandler(cfg.Routes)
	signalHandler := NewSignalHandler(cfg.Publisher)
	navHandler := NewNavigationHandler(cfg.Hub, cfg.AllowedOrigins)
	pageHandler := NewPageHandler(cfg.Title, cfg.AssetBase)
	proxy := NewBackendProxy(cfg.BackendURL, "/backend", cfg.Tokens, cfg.Publisher)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Metrics())

	r.Get("/health", Health)
	r.Get("/health/ready", Ready(cfg.Readiness...))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ClientInstance(cfg.Registry, csrfTokens, cfg.Cookies))
		r.Use(middleware.AuthSignals(cfg.Publisher))
		r.Use(middleware.CSRF(csrfTokens))

		r.Get("/ws/session", navHandler.HandleConnection)
		r.Handle("/backend/*", proxy)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.OpenAPIValidator(cfg.OpenAPI))

			r.Group(func(r chi.Router) {
				if cfg.AuthLimiter != nil {
					r.Use(cfg.AuthLimiter.Middleware())
				}
				r.Post("/auth/login", authHandler.Login)
				r.Post("/auth/register", authHandler.Register)
				r.Post("/auth/password/reset", authHandler.ResetPassword)
				r.Post("/auth/password/reset/confirm", authHandler.ResetPasswordConfirm)
			})

			r.Group(func(r chi.Router) {
				if cfg.APILimiter != nil {
					r.Use(cfg.APILimiter.Middleware())
				}
				r.Post("/auth/logout", authHandler.Logout)
				r.Post("/auth/logout-all", authHandler.LogoutAll)
				r.Get("/auth/session", authHandler.Session)
				r.Post("/auth/refresh", authHandler.Refresh)
				r.Patch("/auth/profile", authHandler.UpdateProfile)
				r.Post("/auth/password/change", authHandler.ChangePassword)
				r.Get("/guard", guardHandler.Evaluate)
				r.Post("/signals", signalHandler.Relay)
			})
		})

		// Every other GET is a page of the single page application.
		r.With(middleware.GuardRoutes(cfg.Routes)).Get("/*", pageHandler.Shell)
	})

	return r
}
