package http

import (
	"Clixy-Backend/internal/auth"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Server HTTP сервер с обработчиками
type Server struct {
	redirectHandler *RedirectHandler
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	authMiddleware  *auth.Middleware
	log             *zap.Logger
}

// NewServer создает новый HTTP сервер
func NewServer(
	redirectHandler *RedirectHandler,
	healthHandler *HealthHandler,
	statsHandler *StatsHandler,
	authMiddleware *auth.Middleware,
	log *zap.Logger,
) *Server {
	return &Server{
		redirectHandler: redirectHandler,
		healthHandler:   healthHandler,
		statsHandler:    statsHandler,
		authMiddleware:  authMiddleware,
		log:             log,
	}
}

// SetupRoutes настраивает маршруты
func (s *Server) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(s.log.Named("http")))
	r.Use(middleware.Recoverer)

	// Health checks (без аутентификации)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/ready", s.healthHandler.Ready)
	r.Get("/metrics", s.healthHandler.Metrics)

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Get("/r/{slug}", s.redirectHandler.HandleRedirect)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware.CORS)
		r.With(s.authMiddleware.RequireAuth).Get("/links/{slug}/stats", s.statsHandler.GetLinkStats)
		// Preflight requests carry no credentials; CORS answers them before this handler runs.
		r.Options("/links/{slug}/stats", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}
