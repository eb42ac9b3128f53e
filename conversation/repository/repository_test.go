package repository

import (
	"context"
	"testing"
	"time"

	"converso/backend/conversation/models"
	"converso/backend/pkg/pagination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A fresh connection would get its own empty in-memory database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Conversation{}, &models.Message{}))
	return db
}

func createConversation(t *testing.T, db *gorm.DB, userID uint, title string) *models.Conversation {
	t.Helper()

	conversation := &models.Conversation{
		UserID: userID,
		Title:  title,
		Status: models.ConversationActive,
	}
	require.NoError(t, db.Create(conversation).Error)
	return conversation
}

func TestNextSequenceNumberStartsAtOne(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormMessageRepository(db)
	conv := createConversation(t, db, 1, "first")

	seq, err := repo.NextSequenceNumber(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestNextSequenceNumberIsMonotonic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormMessageRepository(db)
	conv := createConversation(t, db, 1, "first")

	for i := 1; i <= 3; i++ {
		seq, err := repo.NextSequenceNumber(context.Background(), conv.ID)
		require.NoError(t, err)
		require.NoError(t, repo.Create(context.Background(), &models.Message{
			ConversationID: conv.ID,
			SequenceNumber: seq,
			Role:           models.RoleUser,
			Content:        "hello",
			Status:         models.StatusSent,
		}))
		assert.Equal(t, int64(i), seq)
	}
}

func TestSequenceNumbersNotReusedAfterDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormMessageRepository(db)
	conv := createConversation(t, db, 1, "first")
	ctx := context.Background()

	msg := &models.Message{
		ConversationID: conv.ID,
		SequenceNumber: 1,
		Role:           models.RoleUser,
		Content:        "hello",
		Status:         models.StatusSent,
	}
	require.NoError(t, repo.Create(ctx, msg))
	require.NoError(t, repo.Delete(ctx, msg.ID))

	seq, err := repo.NextSequenceNumber(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq, "deleted rows must still burn their sequence numbers")
}

func TestFindPendingAssistant(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormMessageRepository(db)
	conv := createConversation(t, db, 1, "first")
	ctx := context.Background()

	_, err := repo.FindPendingAssistant(ctx, conv.ID)
	assert.True(t, IsNotFound(err))

	require.NoError(t, repo.Create(ctx, &models.Message{
		ConversationID: conv.ID,
		SequenceNumber: 1,
		Role:           models.RoleAssistant,
		Status:         models.StatusPending,
	}))

	pending, err := repo.FindPendingAssistant(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)
	assert.Equal(t, models.RoleAssistant, pending.Role)
}

func TestListByConversationPagination(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormMessageRepository(db)
	conv := createConversation(t, db, 1, "first")
	ctx := context.Background()

	for i := 1; i <= 25; i++ {
		require.NoError(t, repo.Create(ctx, &models.Message{
			ConversationID: conv.ID,
			SequenceNumber: int64(i),
			Role:           models.RoleUser,
			Content:        "message",
			Status:         models.StatusSent,
		}))
	}

	params := pagination.Params{Page: 2, Limit: 20, SortBy: "sequenceNumber", SortOrder: "asc"}
	page2, total, err := repo.ListByConversation(ctx, conv.ID, params)
	require.NoError(t, err)

	assert.Equal(t, int64(25), total)
	require.Len(t, page2, 5)
	assert.Equal(t, int64(21), page2[0].SequenceNumber)
	assert.Equal(t, int64(25), page2[4].SequenceNumber)
}

func TestListByConversationSearchIsCaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormMessageRepository(db)
	conv := createConversation(t, db, 1, "first")
	ctx := context.Background()

	contents := []string{"Hello World", "goodbye", "HELLO again"}
	for i, content := range contents {
		require.NoError(t, repo.Create(ctx, &models.Message{
			ConversationID: conv.ID,
			SequenceNumber: int64(i + 1),
			Role:           models.RoleUser,
			Content:        content,
			Status:         models.StatusSent,
		}))
	}

	params := pagination.Params{Page: 1, Limit: 20, SortBy: "sequenceNumber", SortOrder: "asc", Search: "hello"}
	matches, total, err := repo.ListByConversation(ctx, conv.ID, params)
	require.NoError(t, err)

	assert.Equal(t, int64(2), total)
	require.Len(t, matches, 2)
	assert.Equal(t, "Hello World", matches[0].Content)
	assert.Equal(t, "HELLO again", matches[1].Content)
}

func TestLastMessage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormMessageRepository(db)
	conv := createConversation(t, db, 1, "first")
	ctx := context.Background()

	_, err := repo.LastMessage(ctx, conv.ID)
	assert.True(t, IsNotFound(err))

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.Message{
			ConversationID: conv.ID,
			SequenceNumber: int64(i),
			Role:           models.RoleUser,
			Content:        "message",
			Status:         models.StatusSent,
		}))
	}

	last, err := repo.LastMessage(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last.SequenceNumber)
}

func TestConversationListByUserFiltersAndSorts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormConversationRepository(db)
	ctx := context.Background()

	createConversation(t, db, 1, "Alpha plans")
	createConversation(t, db, 1, "beta notes")
	createConversation(t, db, 2, "other user")

	params := pagination.Params{Page: 1, Limit: 20, SortBy: "title", SortOrder: "asc"}
	list, total, err := repo.ListByUser(ctx, 1, params)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)

	params.Search = "ALPHA"
	matches, total, err := repo.ListByUser(ctx, 1, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Alpha plans", matches[0].Title)
}

func TestRecordActivity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormConversationRepository(db)
	conv := createConversation(t, db, 1, "first")
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.RecordActivity(ctx, conv.ID, now))
	require.NoError(t, repo.RecordActivity(ctx, conv.ID, now.Add(time.Second)))

	updated, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastActivityAt)
	// The timestamp moves; the message counter does not
	assert.Equal(t, 0, updated.MessageCount)
}

func TestMessageCountFollowsCreateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	messages := NewGormMessageRepository(db)
	conversations := NewGormConversationRepository(db)
	conv := createConversation(t, db, 1, "first")
	ctx := context.Background()

	var ids []uint
	for i := 1; i <= 3; i++ {
		msg := &models.Message{
			ConversationID: conv.ID,
			SequenceNumber: int64(i),
			Role:           models.RoleUser,
			Content:        "message",
			Status:         models.StatusSent,
		}
		require.NoError(t, messages.Create(ctx, msg))
		ids = append(ids, msg.ID)
	}

	updated, err := conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.MessageCount)

	require.NoError(t, messages.Delete(ctx, ids[0]))

	updated, err = conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MessageCount)

	require.NoError(t, messages.DeleteByConversation(ctx, conv.ID))

	updated, err = conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.MessageCount)
}
