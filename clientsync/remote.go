package clientsync

import (
	"context"

	"converso/backend/conversation/models"
	"converso/backend/conversation/service"
	"converso/backend/pkg/pagination"
)

// RemoteClient is the arbiter's view of the server. The in-process
// implementation below calls the services directly; an HTTP client can
// replace it without the arbiter noticing.
type RemoteClient interface {
	// Ping reports reachability; the arbiter calls it before every operation
	Ping(ctx context.Context) error

	CreateConversation(ctx context.Context, input service.CreateConversationInput) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uint) (*models.Conversation, error)
	ListConversations(ctx context.Context, params pagination.Params) ([]models.Conversation, pagination.Pagination, error)
	DeleteConversation(ctx context.Context, id uint) error

	ListMessages(ctx context.Context, conversationID uint, params pagination.Params) ([]models.Message, pagination.Pagination, error)
	SendMessage(ctx context.Context, conversationID uint, content string) (*service.ExchangeResult, error)
}

// InProcessClient binds the server services to a single user account.
// Used by embedded deployments and tests.
type InProcessClient struct {
	userID        uint
	conversations *service.ConversationService
	chat          *service.ChatService
	ledger        *service.MessageService
	ping          func(ctx context.Context) error
}

// NewInProcessClient creates a remote client that calls the services
// directly. The ping function decides reachability; nil means always
// reachable.
func NewInProcessClient(
	userID uint,
	conversations *service.ConversationService,
	chat *service.ChatService,
	ledger *service.MessageService,
	ping func(ctx context.Context) error,
) *InProcessClient {
	return &InProcessClient{
		userID:        userID,
		conversations: conversations,
		chat:          chat,
		ledger:        ledger,
		ping:          ping,
	}
}

func (c *InProcessClient) Ping(ctx context.Context) error {
	if c.ping == nil {
		return nil
	}
	return c.ping(ctx)
}

func (c *InProcessClient) CreateConversation(ctx context.Context, input service.CreateConversationInput) (*models.Conversation, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c.conversations.CreateConversation(ctx, c.userID, input)
}

func (c *InProcessClient) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c.conversations.GetConversation(ctx, c.userID, id)
}

func (c *InProcessClient) ListConversations(ctx context.Context, params pagination.Params) ([]models.Conversation, pagination.Pagination, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, pagination.Pagination{}, err
	}
	return c.conversations.ListConversations(ctx, c.userID, params)
}

func (c *InProcessClient) DeleteConversation(ctx context.Context, id uint) error {
	if err := c.Ping(ctx); err != nil {
		return err
	}
	return c.conversations.DeleteConversation(ctx, c.userID, id)
}

func (c *InProcessClient) ListMessages(ctx context.Context, conversationID uint, params pagination.Params) ([]models.Message, pagination.Pagination, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, pagination.Pagination{}, err
	}
	if _, err := c.conversations.ValidateOwnership(ctx, c.userID, conversationID); err != nil {
		return nil, pagination.Pagination{}, err
	}
	return c.ledger.ListMessages(ctx, conversationID, params)
}

func (c *InProcessClient) SendMessage(ctx context.Context, conversationID uint, content string) (*service.ExchangeResult, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c.chat.SendMessage(ctx, c.userID, conversationID, content)
}

var _ RemoteClient = (*InProcessClient)(nil)
