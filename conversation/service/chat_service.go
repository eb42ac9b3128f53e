package service

import (
	"context"
	"strings"

	"converso/backend/conversation/models"
	"converso/backend/pkg/config"
	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/pagination"
	"converso/backend/provider"
)

// ChatService runs the user-to-assistant exchange: it records the user
// turn, dispatches to the conversation's provider and finalizes the
// assistant entry with the outcome.
type ChatService struct {
	conversations *ConversationService
	ledger        *MessageService
	registry      *provider.Registry
	log           *logger.Logger
}

// NewChatService creates the dispatch gateway
func NewChatService(
	conversations *ConversationService,
	ledger *MessageService,
	registry *provider.Registry,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		ledger:        ledger,
		registry:      registry,
		log:           log,
	}
}

// ExchangeResult carries both ledger entries produced by one exchange
type ExchangeResult struct {
	UserMessage      *models.Message `json:"user_message"`
	AssistantMessage *models.Message `json:"assistant_message"`
}

// ExchangeInput carries the optional fields of one exchange beyond the
// content itself
type ExchangeInput struct {
	Content         string
	ParentMessageID *uint
	Attachments     models.AttachmentList
	// OverrideSettings replace matching conversation settings for this
	// exchange only
	OverrideSettings map[string]float64
}

// SendMessage runs one exchange with no per-message options
func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID uint, content string) (*ExchangeResult, error) {
	return s.Exchange(ctx, userID, conversationID, ExchangeInput{Content: content})
}

// Exchange runs one full user-to-assistant exchange. The user turn is
// persisted before dispatch, so it survives a provider failure; the
// assistant entry then ends up sent or failed. A dispatch failure is both
// recorded on the assistant entry and returned to the caller.
func (s *ChatService) Exchange(ctx context.Context, userID, conversationID uint, input ExchangeInput) (*ExchangeResult, error) {
	content := input.Content
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("content is required")
	}

	conversation, err := s.conversations.ValidateOwnership(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsActive() {
		return nil, apperrors.NewInvalidStateError("conversation is archived")
	}

	log := s.log.WithConversation(conversationID)

	userMessage, err := s.ledger.CreateMessage(ctx, conversationID, CreateMessageInput{
		Role:            models.RoleUser,
		Content:         content,
		Status:          models.StatusSent,
		ParentMessageID: input.ParentMessageID,
		Attachments:     input.Attachments,
	})
	if err != nil {
		return nil, err
	}

	assistantMessage, err := s.ledger.CreateMessage(ctx, conversationID, CreateMessageInput{
		Role:   models.RoleAssistant,
		Status: models.StatusPending,
		Model:  conversation.Model,
	})
	if err != nil {
		return nil, err
	}

	history, err := s.buildHistory(ctx, conversation)
	if err != nil {
		return nil, err
	}

	settings := make(map[string]float64, len(conversation.Settings)+len(input.OverrideSettings))
	for k, v := range conversation.Settings {
		settings[k] = v
	}
	for k, v := range input.OverrideSettings {
		settings[k] = v
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, config.Get().Providers.DispatchTimeout)
	defer cancel()

	resp, dispatchErr := s.registry.SendMessage(dispatchCtx, conversation.Provider, provider.ChatRequest{
		Model:          conversation.Model,
		Messages:       history,
		Settings:       settings,
		ConversationID: conversationID,
		UserID:         userID,
	})

	// Failed attempts still count as activity
	if recErr := s.conversations.RecordDispatch(ctx, conversationID); recErr != nil {
		log.Error("Failed to record dispatch activity", "error", recErr.Error())
	}

	if dispatchErr != nil {
		failureMeta := map[string]interface{}{
			"provider": conversation.Provider,
			"error":    dispatchErr.Error(),
		}
		failed, resolveErr := s.ledger.ResolvePending(ctx, conversationID, assistantMessage.ID,
			models.StatusFailed,
			apperrors.GetErrorMessage(dispatchErr),
			failureMeta,
		)
		if resolveErr != nil {
			// The pending entry is gone; the failure still has to land in
			// the ledger, so append a fresh failed assistant entry
			log.Error("Failed to finalize pending assistant entry", "error", resolveErr.Error())
			fallback, createErr := s.ledger.CreateMessage(ctx, conversationID, CreateMessageInput{
				Role:     models.RoleAssistant,
				Content:  apperrors.GetErrorMessage(dispatchErr),
				Status:   models.StatusFailed,
				Model:    conversation.Model,
				Metadata: failureMeta,
			})
			if createErr != nil {
				log.Error("Failed to record dispatch failure", "error", createErr.Error())
			} else {
				assistantMessage = fallback
			}
		} else {
			assistantMessage = failed
		}

		log.Warn("Dispatch failed",
			"provider", conversation.Provider,
			"messageId", assistantMessage.ID,
			"error", dispatchErr.Error(),
		)

		return &ExchangeResult{
			UserMessage:      userMessage,
			AssistantMessage: assistantMessage,
		}, dispatchErr
	}

	resolved, err := s.ledger.ResolvePending(ctx, conversationID, assistantMessage.ID,
		models.StatusSent, resp.Content, resp.Metadata)
	if err != nil {
		return nil, err
	}

	var tokens int64
	switch v := resp.Metadata["total_tokens"].(type) {
	case int:
		tokens = int64(v)
	case float64:
		tokens = int64(v)
	}
	if err := s.conversations.RecordUsage(ctx, conversationID, tokens, resp.Elapsed.Milliseconds()); err != nil {
		log.Error("Failed to record dispatch usage", "error", err.Error())
	}

	log.Info("Exchange completed",
		"provider", conversation.Provider,
		"userMessageId", userMessage.ID,
		"assistantMessageId", resolved.ID,
		"elapsedMs", resp.Elapsed.Milliseconds(),
	)

	return &ExchangeResult{
		UserMessage:      userMessage,
		AssistantMessage: resolved,
	}, nil
}

// buildHistory loads the most recent completed turns, oldest first, and
// maps them into provider chat messages. The window size comes from the
// provider config. The conversation's system prompt leads the sequence;
// only sent user and assistant entries make it into the prompt, so the
// provider never sees pending, failed or ledger-level system rows.
func (s *ChatService) buildHistory(ctx context.Context, conversation *models.Conversation) ([]provider.ChatMessage, error) {
	window := config.Get().Providers.HistoryWindow
	if window <= 0 {
		window = 50
	}

	messages, _, err := s.ledger.ListMessages(ctx, conversation.ID, pagination.Params{
		Page:      1,
		Limit:     window,
		SortBy:    "sequenceNumber",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, err
	}

	history := make([]provider.ChatMessage, 0, len(messages)+1)
	if conversation.SystemPrompt != "" {
		history = append(history, provider.ChatMessage{
			Role:    models.RoleSystem,
			Content: conversation.SystemPrompt,
		})
	}
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == models.RoleSystem || m.Status != models.StatusSent {
			continue
		}
		history = append(history, provider.ChatMessage{Role: m.Role, Content: m.Content})
	}

	return history, nil
}
