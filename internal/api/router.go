package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/havenito/Twitter-Like/internal/api/middleware"
	"github.com/havenito/Twitter-Like/internal/chat"
	"github.com/havenito/Twitter-Like/internal/config"
	"github.com/havenito/Twitter-Like/internal/handlers"
	"github.com/havenito/Twitter-Like/internal/notify"
	"github.com/havenito/Twitter-Like/internal/store"
	"github.com/havenito/Twitter-Like/internal/ws"
)

// NewRouter creates and configures the HTTP router. redisStore may be nil;
// rate limiting is skipped without it.
func NewRouter(logger zerolog.Logger, cfg *config.Config, db store.DataStore, redisStore *store.RedisStore, service *chat.Service, sink *notify.Sink, wsServer *ws.Server) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024))
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (needs Redis)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, cfg.RateLimitWhitelist)
		r.Use(limiter.Middleware)
	}

	// CORS - browser clients poll and connect from the frontend origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(service, sink, db, redisStore)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)

	// Push channel
	r.Get("/ws", wsServer.HandleWebSocket)

	// Stateless fallback API
	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", h.CreateMessage)
		r.Post("/notifications", h.CreateNotification)
		r.Get("/conversations/{conversationId}/messages", h.GetConversationMessages)
		r.Get("/users/{userId}/conversations", h.GetUserConversations)
		r.Get("/users/{userId}/messages/new", h.GetNewMessages)
	})

	return r
}
