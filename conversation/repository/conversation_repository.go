package repository

import (
	"context"
	"strings"
	"time"

	"converso/backend/conversation/models"
	"converso/backend/pkg/pagination"

	"gorm.io/gorm"
)

// ConversationRepository is the persistence boundary of the conversation directory
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id uint) (*models.Conversation, error)
	Update(ctx context.Context, conversation *models.Conversation) error
	Delete(ctx context.Context, id uint) error

	// ListByUser returns one page of the user's conversations plus the total count
	ListByUser(ctx context.Context, userID uint, params pagination.Params) ([]models.Conversation, int64, error)

	CountByUser(ctx context.Context, userID uint) (int64, error)

	// RecordActivity stamps the last-activity timestamp. Called on every
	// dispatch attempt, successful or not; the message counter is owned by
	// the message repository.
	RecordActivity(ctx context.Context, id uint, at time.Time) error

	// RecordUsage accumulates token usage and round-trip latency from one
	// successful dispatch
	RecordUsage(ctx context.Context, id uint, tokens, latencyMS int64) error
}

var conversationSortColumns = map[string]string{
	"createdAt":      "created_at",
	"updatedAt":      "updated_at",
	"title":          "title",
	"lastActivityAt": "last_activity_at",
}

// GormConversationRepository implements ConversationRepository on gorm
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository creates a gorm-backed conversation repository
func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *GormConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).First(&conversation, id).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *GormConversationRepository) Update(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Save(conversation).Error
}

func (r *GormConversationRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Conversation{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormConversationRepository) ListByUser(ctx context.Context, userID uint, params pagination.Params) ([]models.Conversation, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("user_id = ?", userID)

	if params.Search != "" {
		pattern := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ?", pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := conversationSortColumns[params.SortBy]
	if !ok {
		column = "created_at"
	}

	var conversations []models.Conversation
	err := query.
		Order(column + " " + params.SortOrder).
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&conversations).Error

	return conversations, total, err
}

func (r *GormConversationRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *GormConversationRepository) RecordActivity(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("last_activity_at", at).Error
}

func (r *GormConversationRepository) RecordUsage(ctx context.Context, id uint, tokens, latencyMS int64) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tokens_used":      gorm.Expr("tokens_used + ?", tokens),
			"total_latency_ms": gorm.Expr("total_latency_ms + ?", latencyMS),
			"latency_samples":  gorm.Expr("latency_samples + 1"),
		}).Error
}
