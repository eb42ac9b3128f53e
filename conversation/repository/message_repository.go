package repository

import (
	"context"
	"errors"
	"strings"

	"converso/backend/conversation/models"
	"converso/backend/pkg/pagination"

	"gorm.io/gorm"
)

// ErrRecordNotFound is returned when a lookup matches no row
var ErrRecordNotFound = gorm.ErrRecordNotFound

// MessageRepository is the persistence boundary of the message ledger
type MessageRepository interface {
	// Create appends a ledger row and bumps the owning conversation's
	// message_count in the same transaction
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	Update(ctx context.Context, message *models.Message) error
	Delete(ctx context.Context, id uint) error

	// ListByConversation returns one page of messages plus the total count
	ListByConversation(ctx context.Context, conversationID uint, params pagination.Params) ([]models.Message, int64, error)

	// NextSequenceNumber returns max(sequence_number)+1 over every row the
	// conversation ever had, soft-deleted ones included, so numbers are
	// never reused
	NextSequenceNumber(ctx context.Context, conversationID uint) (int64, error)

	// FindPendingAssistant returns the pending assistant entry of the
	// conversation, or ErrRecordNotFound when there is none
	FindPendingAssistant(ctx context.Context, conversationID uint) (*models.Message, error)

	// LastMessage returns the highest-sequence message of the conversation
	LastMessage(ctx context.Context, conversationID uint) (*models.Message, error)

	CountByConversation(ctx context.Context, conversationID uint) (int64, error)

	// DeleteByConversation soft-deletes every message of the conversation.
	// Used when a conversation is deleted; sequence numbers stay burned.
	DeleteByConversation(ctx context.Context, conversationID uint) error
}

// messageSortColumns whitelists the sortable columns exposed to clients
var messageSortColumns = map[string]string{
	"sequenceNumber": "sequence_number",
	"createdAt":      "created_at",
}

// GormMessageRepository implements MessageRepository on gorm
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a gorm-backed message repository
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			Update("message_count", gorm.Expr("message_count + 1")).Error
	})
}

func (r *GormMessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *GormMessageRepository) Update(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Save(message).Error
}

func (r *GormMessageRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message models.Message
		if err := tx.First(&message, id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			Update("message_count", gorm.Expr("message_count - 1")).Error
	})
}

func (r *GormMessageRepository) ListByConversation(ctx context.Context, conversationID uint, params pagination.Params) ([]models.Message, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID)

	if params.Search != "" {
		// LOWER on both sides keeps the match case-insensitive on
		// postgres and sqlite alike
		pattern := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(content) LIKE ?", pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := messageSortColumns[params.SortBy]
	if !ok {
		column = "sequence_number"
	}

	var messages []models.Message
	err := query.
		Order(column + " " + params.SortOrder).
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&messages).Error

	return messages, total, err
}

func (r *GormMessageRepository) NextSequenceNumber(ctx context.Context, conversationID uint) (int64, error) {
	var max int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Unscoped().
		Where("conversation_id = ?", conversationID).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *GormMessageRepository) FindPendingAssistant(ctx context.Context, conversationID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND role = ? AND status = ?",
			conversationID, models.RoleAssistant, models.StatusPending).
		Order("sequence_number DESC").
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *GormMessageRepository) LastMessage(ctx context.Context, conversationID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sequence_number DESC").
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *GormMessageRepository) CountByConversation(ctx context.Context, conversationID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}

func (r *GormMessageRepository) DeleteByConversation(ctx context.Context, conversationID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversationID).
			Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("message_count", 0).Error
	})
}

// IsNotFound reports whether the error means the row does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
