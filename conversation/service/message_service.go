package service

import (
	"context"
	"strings"

	"converso/backend/conversation/models"
	"converso/backend/conversation/repository"
	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/pagination"
)

// MessageService owns the per-conversation message ledger. It assigns
// sequence numbers, enforces the single-pending-assistant rule and guards
// terminal statuses against late rewrites.
type MessageService struct {
	messages repository.MessageRepository
	log      *logger.Logger
}

// NewMessageService creates the ledger service
func NewMessageService(messages repository.MessageRepository, log *logger.Logger) *MessageService {
	return &MessageService{messages: messages, log: log}
}

// CreateMessageInput carries the caller-supplied fields of a new message
type CreateMessageInput struct {
	Role            string
	Content         string
	Status          string
	Model           string
	ParentMessageID *uint
	Attachments     models.AttachmentList
	Metadata        map[string]interface{}
}

// CreateMessage appends a message to the conversation's ledger. The
// sequence number is assigned here, never by the caller.
func (s *MessageService) CreateMessage(ctx context.Context, conversationID uint, input CreateMessageInput) (*models.Message, error) {
	if !models.ValidRole(input.Role) {
		return nil, apperrors.NewValidationError("role must be one of: user, assistant, system")
	}

	status := input.Status
	if status == "" {
		status = models.StatusSent
	}
	if !models.ValidStatus(status) {
		return nil, apperrors.NewValidationError("status must be one of: pending, sent, delivered, failed")
	}

	// Only a pending assistant entry may start out empty; everything else
	// needs content up front
	if strings.TrimSpace(input.Content) == "" && !(input.Role == models.RoleAssistant && status == models.StatusPending) {
		return nil, apperrors.NewValidationError("content is required")
	}

	// One in-flight assistant reply per conversation
	if input.Role == models.RoleAssistant && status == models.StatusPending {
		if _, err := s.messages.FindPendingAssistant(ctx, conversationID); err == nil {
			return nil, apperrors.NewConflictError("PENDING_REPLY_EXISTS",
				"a reply is already being generated for this conversation")
		} else if !repository.IsNotFound(err) {
			return nil, err
		}
	}

	// A threading parent must live in the same conversation
	if input.ParentMessageID != nil {
		if _, err := s.GetMessage(ctx, conversationID, *input.ParentMessageID); err != nil {
			return nil, apperrors.NewValidationError("parent message not found in this conversation")
		}
	}

	seq, err := s.messages.NextSequenceNumber(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ConversationID:  conversationID,
		SequenceNumber:  seq,
		ParentMessageID: input.ParentMessageID,
		Role:            input.Role,
		Content:         input.Content,
		Status:          status,
		Model:           input.Model,
		Attachments:     input.Attachments,
		Metadata:        input.Metadata,
	}
	if status == models.StatusFailed {
		if raw, ok := input.Metadata["error"].(string); ok && raw != "" {
			message.Error = raw
		} else {
			message.Error = input.Content
		}
	}

	if err := s.messages.Create(ctx, message); err != nil {
		return nil, err
	}

	s.log.Debug("Message appended",
		"conversationId", conversationID,
		"messageId", message.ID,
		"sequence", seq,
		"role", input.Role,
		"status", status,
	)

	return message, nil
}

// GetMessage returns a single message, scoped to its conversation
func (s *MessageService) GetMessage(ctx context.Context, conversationID, messageID uint) (*models.Message, error) {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFoundError("MESSAGE_NOT_FOUND", "message not found")
		}
		return nil, err
	}
	if message.ConversationID != conversationID {
		return nil, apperrors.NewNotFoundError("MESSAGE_NOT_FOUND", "message not found")
	}
	return message, nil
}

// UpdateMessageInput carries the mutable fields of a message. Nil fields
// are left untouched.
type UpdateMessageInput struct {
	Content  *string
	Status   *string
	Metadata map[string]interface{}
}

// UpdateMessage applies a partial update. Messages in a terminal status
// accept metadata merges only; any attempt to change their content or
// status is rejected.
func (s *MessageService) UpdateMessage(ctx context.Context, conversationID, messageID uint, input UpdateMessageInput) (*models.Message, error) {
	message, err := s.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}

	if message.IsTerminal() && (input.Content != nil || input.Status != nil) {
		return nil, apperrors.NewInvalidStateError(
			"message is in a terminal status and can no longer be modified")
	}

	if input.Status != nil {
		if !models.ValidStatus(*input.Status) {
			return nil, apperrors.NewValidationError("status must be one of: pending, sent, delivered, failed")
		}
		message.Status = *input.Status
	}
	if input.Content != nil {
		message.Content = *input.Content
	}
	if input.Metadata != nil {
		if message.Metadata == nil {
			message.Metadata = map[string]interface{}{}
		}
		for k, v := range input.Metadata {
			message.Metadata[k] = v
		}
	}

	if err := s.messages.Update(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

// ResolvePending finalizes a pending assistant entry with a terminal
// status. A result arriving after the entry already reached a terminal
// status is discarded rather than applied.
func (s *MessageService) ResolvePending(ctx context.Context, conversationID, messageID uint, status, content string, metadata map[string]interface{}) (*models.Message, error) {
	if !models.IsTerminalStatus(status) {
		return nil, apperrors.NewValidationError("resolution requires a terminal status")
	}

	message, err := s.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}

	if message.IsTerminal() {
		s.log.Warn("Discarding late resolution for terminal message",
			"conversationId", conversationID,
			"messageId", messageID,
			"currentStatus", message.Status,
			"lateStatus", status,
		)
		return message, nil
	}

	message.Status = status
	message.Content = content
	if status == models.StatusFailed {
		if raw, ok := metadata["error"].(string); ok && raw != "" {
			message.Error = raw
		} else {
			message.Error = content
		}
	}
	if metadata != nil {
		if message.Metadata == nil {
			message.Metadata = map[string]interface{}{}
		}
		for k, v := range metadata {
			message.Metadata[k] = v
		}
	}

	if err := s.messages.Update(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

// ListMessages returns one page of the conversation's ledger, ordered by
// sequence number ascending unless the caller asks otherwise
func (s *MessageService) ListMessages(ctx context.Context, conversationID uint, params pagination.Params) ([]models.Message, pagination.Pagination, error) {
	params.Normalize("sequenceNumber", "asc")

	messages, total, err := s.messages.ListByConversation(ctx, conversationID, params)
	if err != nil {
		return nil, pagination.Pagination{}, err
	}

	return messages, pagination.New(params.Page, params.Limit, total), nil
}

// DeleteMessage soft-deletes a message. Its sequence number is never reused.
func (s *MessageService) DeleteMessage(ctx context.Context, conversationID, messageID uint) error {
	if _, err := s.GetMessage(ctx, conversationID, messageID); err != nil {
		return err
	}
	return s.messages.Delete(ctx, messageID)
}

// LastMessage returns the newest ledger entry, or nil when the
// conversation is empty
func (s *MessageService) LastMessage(ctx context.Context, conversationID uint) (*models.Message, error) {
	message, err := s.messages.LastMessage(ctx, conversationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return message, nil
}

// NextSequenceNumber exposes the next sequence number without reserving it
func (s *MessageService) NextSequenceNumber(ctx context.Context, conversationID uint) (int64, error) {
	return s.messages.NextSequenceNumber(ctx, conversationID)
}

// PendingAssistant returns the conversation's in-flight assistant entry,
// or nil when there is none
func (s *MessageService) PendingAssistant(ctx context.Context, conversationID uint) (*models.Message, error) {
	message, err := s.messages.FindPendingAssistant(ctx, conversationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return message, nil
}
