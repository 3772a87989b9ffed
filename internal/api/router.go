package api

import (
	"net/http"

	"github.com/Rrens/event-chat/internal/api/handler"
	customMiddleware "github.com/Rrens/event-chat/internal/api/middleware"
	"github.com/Rrens/event-chat/internal/config"
	"github.com/Rrens/event-chat/internal/domain"
	"github.com/Rrens/event-chat/internal/mailer"
	"github.com/Rrens/event-chat/internal/repository/redis"
	"github.com/Rrens/event-chat/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// Store bundles the repositories the chat API runs on
type Store struct {
	Registrations domain.RegistrationRepository
	Sessions      domain.SessionRepository
	Credentials   domain.CredentialRepository
	Messages      domain.MessageRepository
	DB            handler.Pinger
}

// NewRouter creates and configures the HTTP router. A nil redisClient
// disables rate limiting.
func NewRouter(cfg *config.Config, store Store, runner service.TaskRunner, m mailer.Mailer, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS; cookies need explicit origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiters
	var authLimiter, sendLimiter customMiddleware.Limiter
	if redisClient != nil {
		authLimiter = redis.NewRateLimiter(
			redisClient,
			"auth",
			cfg.Security.RateLimit.RequestsPerMinute,
			cfg.Security.RateLimit.Burst,
		)
		sendLimiter = redis.NewRateLimiter(
			redisClient,
			"send",
			cfg.Security.RateLimit.SendPerMinute,
			cfg.Security.RateLimit.Burst,
		)
	} else {
		log.Warn().Msg("Redis not configured, rate limiting disabled")
	}

	// Initialize services
	authService := service.NewAuthService(
		store.Registrations,
		store.Sessions,
		store.Credentials,
		m,
		runner,
		cfg.Auth,
		cfg.Mail.ResetURLBase,
	)
	chatService := service.NewChatService(
		store.Registrations,
		store.Messages,
		store.Sessions,
		runner,
		cfg.Chat,
	)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, chatService, handler.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.SecureCookie || cfg.IsProduction(),
		MaxAge: cfg.Auth.SessionTTL,
	})
	chatHandler := handler.NewChatHandler(chatService)

	authMiddleware := customMiddleware.NewAuthMiddleware(authService, cfg.Auth.CookieName)
	ipLimit := customMiddleware.NewRateLimitMiddleware(authLimiter)
	userLimit := customMiddleware.NewRateLimitMiddleware(sendLimiter)

	basePath := cfg.Server.BasePath
	if basePath == "" {
		basePath = "/"
	}

	r.Route(basePath, func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(store.DB))

		// Public auth routes
		r.Group(func(r chi.Router) {
			r.Use(ipLimit.ByIP)

			r.Post("/login", authHandler.Login)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
		})
		r.Post("/logout", authHandler.Logout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/me", authHandler.Me)
			r.Post("/change-password", authHandler.ChangePassword)

			r.Get("/conversations", chatHandler.Conversations)
			r.Get("/messages/{partnerID}", chatHandler.History)
			r.With(userLimit.ByUser).Post("/messages", chatHandler.Send)
			r.Get("/poll", chatHandler.Poll)
			r.Get("/attendees", chatHandler.Attendees)
		})
	})

	return r
}
