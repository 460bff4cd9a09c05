package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/companionchat/backend/internal/ai"
	"github.com/companionchat/backend/internal/api/handlers"
	"github.com/companionchat/backend/internal/auth"
	"github.com/companionchat/backend/internal/billing"
	"github.com/companionchat/backend/internal/cache"
	"github.com/companionchat/backend/internal/chat"
	"github.com/companionchat/backend/internal/config"
	"github.com/companionchat/backend/internal/database"
	"github.com/companionchat/backend/internal/middleware"
	"github.com/companionchat/backend/internal/ratelimit"
	"github.com/companionchat/backend/internal/repository"
)

// NewRouter creates and configures the main router
func NewRouter(cfg *config.Config, db *database.DB, redisCache *cache.Redis, logger zerolog.Logger) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Initialize repositories
	usageRepo := repository.NewUsageRepository(db)
	companionRepo := repository.NewCompanionRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	communityRepo := repository.NewCommunityRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	counterRepo := repository.NewDailyCountRepository(db)

	// Initialize auth services
	jwtService := auth.NewJWTService(cfg.JWTSecret, 24*time.Hour)
	authMiddleware := auth.NewAuthMiddleware(jwtService, usageRepo, logger)
	webhookVerifier, err := auth.NewWebhookVerifier(cfg.IdentityWebhookSecret)
	if err != nil {
		return nil, err
	}

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Initialize services
	limiter := ratelimit.NewDailyLimiter(counterRepo, subscriptionRepo, logger)
	llmClient := ai.NewClient(cfg.CompletionAPIKey, cfg.CompletionBaseURL, cfg.CompletionTimeout)
	chatStore := repository.NewChatStore(db, usageRepo, companionRepo, messageRepo, groupRepo)
	chatService := chat.NewService(chatStore, limiter, llmClient, chat.NewRoller(), cfg.ModelChat, cfg.ModelClassifier, logger)
	billingService := billing.NewService(cfg, db, usageRepo, subscriptionRepo, logger)

	cacheTTL := time.Duration(cfg.CacheTTL) * time.Second

	// Initialize handlers
	healthHandler := handlers.NewHealthChecker(db, redisCache)
	chatHandler := handlers.NewChatHandler(chatService, messageRepo, companionRepo, logger)
	groupChatHandler := handlers.NewGroupChatHandler(db, groupRepo, usageRepo, chatService, chatHandler, logger)
	companionHandler := handlers.NewCompanionHandler(db, companionRepo, usageRepo, redisCache, llmClient, cfg.ModelChat, cacheTTL, logger)
	communityHandler := handlers.NewCommunityHandler(db, communityRepo, usageRepo, logger)
	userHandler := handlers.NewUserHandler(usageRepo, limiter, logger)
	billingHandler := handlers.NewBillingHandler(billingService, subscriptionRepo, logger)
	webhookHandler := handlers.NewWebhookHandler(billingService, webhookVerifier, usageRepo, logger)
	adminHandler := handlers.NewAdminHandler(usageRepo, companionRepo, redisCache, logger)

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", handlers.LivenessProbe)
	r.Get("/health/ready", healthHandler.ReadinessProbe)

	// Webhooks authenticate by signature, not by bearer token
	r.Post("/webhooks/stripe", webhookHandler.Stripe)
	r.Post("/webhooks/identity", webhookHandler.Identity)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Direct chat
		r.Route("/chat", func(r chi.Router) {
			r.Delete("/", chatHandler.ClearAll)
			r.Post("/{companionId}", chatHandler.SendMessage)
			r.Get("/{companionId}/messages", chatHandler.History)
			r.Delete("/{companionId}", chatHandler.Clear)
		})

		// Group chat
		r.Route("/group-chat", func(r chi.Router) {
			r.Post("/", groupChatHandler.Create)
			r.Get("/", groupChatHandler.List)
			r.Route("/{groupId}", func(r chi.Router) {
				r.Get("/", groupChatHandler.Get)
				r.Delete("/", groupChatHandler.Delete)
				r.Post("/chat", groupChatHandler.Chat)
				r.Get("/messages", groupChatHandler.Messages)
				r.Get("/messages/latest", groupChatHandler.LatestMessages)
				r.Delete("/messages", groupChatHandler.ClearMessages)
				r.Post("/members", groupChatHandler.AddMember)
				r.Delete("/members/{companionId}", groupChatHandler.RemoveMember)
			})
		})

		// Companions
		r.Route("/companions", func(r chi.Router) {
			r.Post("/", companionHandler.Create)
			r.Get("/", companionHandler.List)
			r.Post("/generate-behavior", companionHandler.GenerateBehavior)
			r.Get("/{companionId}", companionHandler.Get)
			r.Put("/{companionId}", companionHandler.Update)
			r.Delete("/{companionId}", companionHandler.Delete)
		})
		r.Get("/categories", companionHandler.Categories)

		// Community ideas
		r.Route("/community", func(r chi.Router) {
			r.Get("/", communityHandler.List)
			r.Post("/", communityHandler.Create)
			r.Patch("/{ideaId}/vote", communityHandler.Vote)
		})

		// Signed-in user
		r.Route("/user", func(r chi.Router) {
			r.Get("/account", userHandler.Account)
			r.Get("/progress", userHandler.Progress)
			r.Get("/limit", userHandler.Limit)
			r.Get("/transactions", userHandler.Transactions)
		})

		// Billing
		r.Route("/billing", func(r chi.Router) {
			r.Post("/checkout/xp", billingHandler.CreateXPCheckout)
			r.Post("/checkout/subscription", billingHandler.CreateSubscriptionCheckout)
			r.Post("/portal", billingHandler.CreatePortalSession)
			r.Get("/subscription", billingHandler.Subscription)
			r.Post("/subscription/change", billingHandler.ChangeSubscription)
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.RequireAdmin)
			r.Get("/users", adminHandler.ListUsers)
			r.Get("/companions", adminHandler.ListCompanions)
			r.Patch("/companions/{companionId}/pacing", adminHandler.UpdateCompanionPacing)
			r.Delete("/companions/{companionId}", adminHandler.DeleteCompanion)
		})
	})

	return r, nil
}
