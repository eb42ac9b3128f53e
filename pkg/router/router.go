package router

import (
	conversationapi "converso/backend/conversation/api"
	"converso/backend/pkg/config"
	"converso/backend/pkg/di"
	"converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/middleware"
	"converso/backend/pkg/validator"
	userapi "converso/backend/user/api"

	"github.com/gin-gonic/gin"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)

	cfg := config.Get()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Request id first so the logger and every handler see the same id
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	rateLimiter := middleware.NewRateLimiter(container.Logger)
	engine.Use(rateLimiter.Middleware())

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.Use(corsMiddleware(r.Config.Security.AllowedOrigins))

	jwtAuth := middleware.JWTAuthMiddleware(r.Container.JWTService, r.Logger)

	authHandler := userapi.NewAuthHandler(r.Container.UserService, r.Logger)
	conversationHandler := conversationapi.NewConversationHandler(r.Container.ConversationService, r.Logger)
	messageHandler := conversationapi.NewMessageHandler(
		r.Container.ConversationService,
		r.Container.MessageService,
		r.Container.ChatService,
		r.Logger,
	)
	providerHandler := conversationapi.NewProviderHandler(r.Container.ProviderRegistry, r.Logger)

	v1 := r.Engine.Group("/api/v1")

	// Public routes
	v1.GET("/health", gin.WrapF(r.Container.HealthChecker.HTTPHandler()))

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/signup", authHandler.Signup)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/me", jwtAuth, authHandler.Me)
	}

	// Protected routes
	protected := v1.Group("/")
	protected.Use(jwtAuth)
	{
		conversations := protected.Group("/conversations")
		{
			conversations.POST("", conversationHandler.Create)
			conversations.GET("", conversationHandler.List)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.PATCH("/:id", conversationHandler.Update)
			conversations.DELETE("/:id", conversationHandler.Delete)
			conversations.GET("/:id/stats", conversationHandler.Stats)

			conversations.POST("/:id/messages", messageHandler.Create)
			conversations.GET("/:id/messages", messageHandler.List)
			conversations.GET("/:id/messages/:messageId", messageHandler.Get)
			conversations.PATCH("/:id/messages/:messageId", messageHandler.Update)
			conversations.DELETE("/:id/messages/:messageId", messageHandler.Delete)

			conversations.POST("/:id/chat", messageHandler.Chat)
		}

		providers := protected.Group("/providers")
		{
			providers.GET("", providerHandler.List)
			providers.GET("/:name/models", providerHandler.Models)
			providers.POST("/:name/settings/validate", providerHandler.ValidateSettings)
			providers.GET("/:name/health", providerHandler.Health)
		}
	}
}

// AddOpenAPIValidation enables request validation against an OpenAPI schema
func (r *Router) AddOpenAPIValidation(schemaPath string) error {
	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		return err
	}
	r.Engine.Use(v.Middleware())
	r.Logger.Info("OpenAPI request validation enabled", "schema", schemaPath)
	return nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, X-CSRF-Token, Authorization, Origin, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
