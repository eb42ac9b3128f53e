package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"converso/backend/conversation/models"
	"converso/backend/conversation/repository"
	"converso/backend/pkg/cache"
	"converso/backend/pkg/config"
	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/pagination"
	sharedredis "converso/backend/shared/redis"
)

// ConversationService owns the conversation directory: creation, listing,
// ownership checks and lifecycle changes.
type ConversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	statsCache    *cache.Cache
	redis         *sharedredis.Client
	log           *logger.Logger
}

// NewConversationService creates the directory service. The redis client
// is optional; when nil only the in-process cache is used for stats.
func NewConversationService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	redis *sharedredis.Client,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		statsCache:    cache.NewCacheWith(30*time.Second, time.Minute, 1024),
		redis:         redis,
		log:           log,
	}
}

// CreateConversationInput carries the caller-supplied fields of a new conversation
type CreateConversationInput struct {
	Title        string
	Provider     string
	Model        string
	SystemPrompt string
	Settings     models.SettingsMap
}

// CreateConversation creates a conversation owned by the given user
func (s *ConversationService) CreateConversation(ctx context.Context, userID uint, input CreateConversationInput) (*models.Conversation, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required")
	}
	if len(title) > 255 {
		return nil, apperrors.NewValidationError("title must be at most 255 characters")
	}

	cfg := config.Get()

	count, err := s.conversations.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= int64(cfg.Features.MaxConversationsPerUser) {
		return nil, apperrors.NewConflictError("CONVERSATION_LIMIT_REACHED",
			"conversation limit reached for this account")
	}

	provider := input.Provider
	if provider == "" {
		provider = cfg.Providers.Default
	}

	conversation := &models.Conversation{
		UserID:       userID,
		Title:        title,
		Provider:     provider,
		Model:        input.Model,
		SystemPrompt: input.SystemPrompt,
		Settings:     input.Settings,
		Status:       models.ConversationActive,
	}

	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, err
	}

	s.log.Info("Conversation created",
		"conversationId", conversation.ID,
		"userId", userID,
		"provider", provider,
	)

	return conversation, nil
}

// ValidateOwnership loads a conversation and checks it belongs to the
// user. A missing conversation is NotFound; someone else's conversation
// is Forbidden, never NotFound, so the two cases stay distinguishable.
func (s *ConversationService) ValidateOwnership(ctx context.Context, userID, conversationID uint) (*models.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("CONVERSATION_NOT_FOUND", "conversation not found")
		}
		return nil, err
	}
	if conversation.UserID != userID {
		return nil, apperrors.NewForbiddenError("CONVERSATION_FORBIDDEN",
			"conversation belongs to another user")
	}
	return conversation, nil
}

// GetConversation returns a conversation after an ownership check
func (s *ConversationService) GetConversation(ctx context.Context, userID, conversationID uint) (*models.Conversation, error) {
	return s.ValidateOwnership(ctx, userID, conversationID)
}

// ListConversations returns one page of the user's conversations, newest
// first unless the caller asks otherwise
func (s *ConversationService) ListConversations(ctx context.Context, userID uint, params pagination.Params) ([]models.Conversation, pagination.Pagination, error) {
	params.Normalize("createdAt", "desc")

	conversations, total, err := s.conversations.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pagination.Pagination{}, err
	}

	return conversations, pagination.New(params.Page, params.Limit, total), nil
}

// UpdateConversationInput carries the mutable fields of a conversation.
// Nil fields are left untouched.
type UpdateConversationInput struct {
	Title        *string
	Model        *string
	SystemPrompt *string
	Status       *string
	Settings     models.SettingsMap
}

// UpdateConversation applies a partial update after an ownership check
func (s *ConversationService) UpdateConversation(ctx context.Context, userID, conversationID uint, input UpdateConversationInput) (*models.Conversation, error) {
	conversation, err := s.ValidateOwnership(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title cannot be empty")
		}
		if len(title) > 255 {
			return nil, apperrors.NewValidationError("title must be at most 255 characters")
		}
		conversation.Title = title
	}
	if input.Model != nil {
		conversation.Model = *input.Model
	}
	if input.SystemPrompt != nil {
		conversation.SystemPrompt = *input.SystemPrompt
	}
	if input.Status != nil {
		if *input.Status != models.ConversationActive && *input.Status != models.ConversationArchived {
			return nil, apperrors.NewValidationError("status must be active or archived")
		}
		conversation.Status = *input.Status
	}
	if input.Settings != nil {
		conversation.Settings = input.Settings
	}

	if err := s.conversations.Update(ctx, conversation); err != nil {
		return nil, err
	}

	s.invalidateStats(ctx, conversationID)

	return conversation, nil
}

// DeleteConversation soft-deletes a conversation and its messages after an
// ownership check. The message rows are deleted first so a failure leaves
// the conversation visible rather than orphaning its ledger.
func (s *ConversationService) DeleteConversation(ctx context.Context, userID, conversationID uint) error {
	if _, err := s.ValidateOwnership(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.messages.DeleteByConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := s.conversations.Delete(ctx, conversationID); err != nil {
		return err
	}

	s.invalidateStats(ctx, conversationID)

	s.log.Info("Conversation deleted", "conversationId", conversationID, "userId", userID)
	return nil
}

// RecordDispatch stamps the activity timestamp and drops the cached
// stats. Called on every exchange attempt, failed ones included.
func (s *ConversationService) RecordDispatch(ctx context.Context, conversationID uint) error {
	if err := s.conversations.RecordActivity(ctx, conversationID, time.Now().UTC()); err != nil {
		return err
	}
	s.invalidateStats(ctx, conversationID)
	return nil
}

// RecordUsage accumulates token usage and round-trip latency from one
// successful dispatch
func (s *ConversationService) RecordUsage(ctx context.Context, conversationID uint, tokens, latencyMS int64) error {
	if err := s.conversations.RecordUsage(ctx, conversationID, tokens, latencyMS); err != nil {
		return err
	}
	s.invalidateStats(ctx, conversationID)
	return nil
}

// ConversationStats summarizes a conversation's ledger and usage
type ConversationStats struct {
	ConversationID    uint       `json:"conversation_id"`
	MessageCount      int64      `json:"message_count"`
	LastSequence      int64      `json:"last_sequence"`
	TokensUsed        int64      `json:"tokens_used"`
	AverageResponseMS int64      `json:"average_response_ms"`
	LastActivityAt    *time.Time `json:"last_activity_at"`
	Status            string     `json:"status"`
}

// Stats computes ledger statistics, served from cache when fresh
func (s *ConversationService) Stats(ctx context.Context, userID, conversationID uint) (*ConversationStats, error) {
	conversation, err := s.ValidateOwnership(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	key := statsKey(conversationID)

	if cached, found := s.statsCache.Get(key); found {
		if stats, ok := cached.(*ConversationStats); ok {
			return stats, nil
		}
	}
	if s.redis != nil {
		if raw, err := s.redis.Get(ctx, key); err == nil {
			var stats ConversationStats
			if json.Unmarshal([]byte(raw), &stats) == nil {
				s.statsCache.Set(key, &stats)
				return &stats, nil
			}
		}
	}

	count, err := s.messages.CountByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var lastSeq int64
	if last, err := s.messages.LastMessage(ctx, conversationID); err == nil {
		lastSeq = last.SequenceNumber
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	var averageMS int64
	if conversation.LatencySamples > 0 {
		averageMS = conversation.TotalLatencyMS / conversation.LatencySamples
	}

	stats := &ConversationStats{
		ConversationID:    conversationID,
		MessageCount:      count,
		LastSequence:      lastSeq,
		TokensUsed:        conversation.TokensUsed,
		AverageResponseMS: averageMS,
		LastActivityAt:    conversation.LastActivityAt,
		Status:            conversation.Status,
	}

	s.statsCache.Set(key, stats)
	if s.redis != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.redis.Set(ctx, key, raw, 30*time.Second); err != nil {
				s.log.Debug("Failed to cache stats in redis", "error", err.Error())
			}
		}
	}

	return stats, nil
}

func (s *ConversationService) invalidateStats(ctx context.Context, conversationID uint) {
	key := statsKey(conversationID)
	s.statsCache.Delete(key)
	if s.redis != nil {
		if err := s.redis.Del(ctx, key); err != nil {
			s.log.Debug("Failed to invalidate stats in redis", "error", err.Error())
		}
	}
}

func statsKey(conversationID uint) string {
	return fmt.Sprintf("conversation:stats:%d", conversationID)
}
