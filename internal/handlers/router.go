package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"lending/internal/config"
	"lending/internal/db"
	"lending/internal/middleware"
	"lending/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Instrumentation is satisfied by *metrics.Lending.
type Instrumentation interface {
	HTTP(next http.Handler) http.Handler
	Handler() http.Handler
}

type Deps struct {
	Config     config.Config
	TxRunner   db.TxRunner
	Identities IdentityStore
	Admin      AdminStore
	Audit      AuditStore
	Lending    LendingService
	Hub        *websocket.Hub
	Metrics    Instrumentation
	Limiter    *middleware.RateLimiter
	Logger     *slog.Logger
}

type Handler struct {
	cfg        config.Config
	txRunner   db.TxRunner
	identities IdentityStore
	admin      AdminStore
	audit      AuditStore
	lending    LendingService
	hub        *websocket.Hub
	metrics    Instrumentation
	limiter    *middleware.RateLimiter
	logger     *slog.Logger
}

func New(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := deps.Hub
	if hub == nil {
		hub = websocket.NewHub()
	}
	return &Handler{
		cfg:        deps.Config,
		txRunner:   deps.TxRunner,
		identities: deps.Identities,
		admin:      deps.Admin,
		audit:      deps.Audit,
		lending:    deps.Lending,
		hub:        hub,
		metrics:    deps.Metrics,
		limiter:    deps.Limiter,
		logger:     logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	if h.metrics != nil {
		router.Use(h.metrics.HTTP)
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(h.cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticated := middleware.Auth(h.cfg.JWTSecret)
	mutating := func(next http.Handler) http.Handler { return next }
	if h.limiter != nil {
		mutating = h.limiter.Middleware
	}

	router.Route("/auth", func(r chi.Router) {
		r.With(mutating).Post("/register", h.Register)
		r.With(mutating).Post("/login", h.Login)
		r.With(authenticated).Get("/me", h.Me)
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticated)
		r.With(mutating).Post("/users", h.InitUser)
		r.Get("/users/me", h.GetPosition)
		r.Get("/users/me/operations", h.ListOperations)

		r.Get("/pools", h.ListPools)
		r.Get("/pools/{asset}", h.GetPool)
		r.With(mutating, middleware.RequireAdmin(h.admin, middleware.RoleManagePools)).Post("/pools", h.CreatePool)
		r.With(mutating, middleware.RequireAdmin(h.admin, middleware.RoleManagePools)).Delete("/pools/{asset}", h.ClosePool)
		r.With(mutating).Post("/pools/{asset}/deposit", h.Deposit)
		r.With(mutating).Post("/pools/{asset}/withdraw", h.Withdraw)
		r.With(mutating).Post("/pools/{asset}/repay", h.Repay)

		r.With(mutating).Post("/borrow", h.Borrow)
		r.Post("/borrow/assess", h.AssessBorrow)
		r.Get("/positions/health", h.Health)
		r.Get("/ws/positions", h.WSPositions)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticated)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireAdmin(h.admin, "")).Get("/audit", h.ListAuditLogs)
	})

	if h.metrics != nil {
		router.Handle("/metrics", h.metrics.Handler())
	}
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
