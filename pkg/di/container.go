package di

import (
	"context"
	"time"

	conversationservice "converso/backend/conversation/service"
	"converso/backend/pkg/config"
	"converso/backend/pkg/health"
	"converso/backend/pkg/jwt"
	"converso/backend/pkg/logger"
	"converso/backend/provider"
	sharedredis "converso/backend/shared/redis"
	userservice "converso/backend/user/service"

	conversationrepo "converso/backend/conversation/repository"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB     *gorm.DB
	Logger *logger.Logger
	Redis  *sharedredis.Client

	JWTService *jwt.Service

	ConversationRepository conversationrepo.ConversationRepository
	MessageRepository      conversationrepo.MessageRepository

	UserService         *userservice.UserService
	ConversationService *conversationservice.ConversationService
	MessageService      *conversationservice.MessageService
	ChatService         *conversationservice.ChatService

	ProviderRegistry *provider.Registry
	HealthChecker    *health.Checker
}

// Config holds the configuration for the container
type Config struct {
	LoggerConfig logger.Config
	JWTSecret    string
	JWTExpiry    time.Duration

	// UseStubProvider swaps in the deterministic provider; used in
	// development and tests
	UseStubProvider bool
}

// DefaultConfig returns a default container configuration
func DefaultConfig() *Config {
	cfg := config.Get()
	return &Config{
		LoggerConfig: logger.DefaultConfig(),
		JWTSecret:    cfg.JWT.Secret,
		JWTExpiry:    cfg.JWT.Expiry,
	}
}

// New creates a new dependency injection container
func New(db *gorm.DB, containerConfig *Config) (*Container, error) {
	if containerConfig == nil {
		containerConfig = DefaultConfig()
	}

	cfg := config.Get()
	log := logger.New(containerConfig.LoggerConfig)

	jwtService := jwt.NewService(containerConfig.JWTSecret, containerConfig.JWTExpiry)

	var redisClient *sharedredis.Client
	if cfg.Redis.Enabled {
		redisClient = sharedredis.NewClient()
	}

	conversationRepo := conversationrepo.NewGormConversationRepository(db)
	messageRepo := conversationrepo.NewGormMessageRepository(db)

	registry := provider.NewRegistry(log)
	if containerConfig.UseStubProvider || cfg.Providers.OpenAIKey == "" {
		registry.Register(provider.NewStubProvider())
	}
	if cfg.Providers.OpenAIKey != "" {
		openai, err := provider.NewOpenAIProvider(log)
		if err != nil {
			return nil, err
		}
		registry.Register(openai)
	}

	userService := userservice.NewUserService(db)
	messageService := conversationservice.NewMessageService(messageRepo, log)
	conversationService := conversationservice.NewConversationService(conversationRepo, messageRepo, redisClient, log)
	chatService := conversationservice.NewChatService(conversationService, messageService, registry, log)

	checker := health.NewChecker(log, 30*time.Second)
	checker.RegisterDatabaseCheck(func() error {
		return config.TestConnection(db)
	})
	for _, name := range registry.ListNames() {
		providerName := name
		checker.RegisterProviderCheck(providerName, cfg.Providers.HealthTimeout, func(ctx context.Context) bool {
			return registry.IsHealthy(ctx, providerName)
		})
	}

	return &Container{
		DB:                     db,
		Logger:                 log,
		Redis:                  redisClient,
		JWTService:             jwtService,
		ConversationRepository: conversationRepo,
		MessageRepository:      messageRepo,
		UserService:            userService,
		ConversationService:    conversationService,
		MessageService:         messageService,
		ChatService:            chatService,
		ProviderRegistry:       registry,
		HealthChecker:          checker,
	}, nil
}
