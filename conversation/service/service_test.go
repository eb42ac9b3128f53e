package service

import (
	"context"
	"errors"
	"testing"

	"converso/backend/conversation/models"
	"converso/backend/conversation/repository"
	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/pagination"
	"converso/backend/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db            *gorm.DB
	conversations *ConversationService
	ledger        *MessageService
	chat          *ChatService
	stub          *provider.StubProvider
	registry      *provider.Registry
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Conversation{}, &models.Message{}))

	log := logger.New(logger.Config{Level: "error"})

	messageRepo := repository.NewGormMessageRepository(db)
	conversationRepo := repository.NewGormConversationRepository(db)

	stub := provider.NewStubProvider()
	registry := provider.NewRegistry(log)
	registry.Register(stub)

	ledger := NewMessageService(messageRepo, log)
	conversations := NewConversationService(conversationRepo, messageRepo, nil, log)
	chat := NewChatService(conversations, ledger, registry, log)

	return &testEnv{
		db:            db,
		conversations: conversations,
		ledger:        ledger,
		chat:          chat,
		stub:          stub,
		registry:      registry,
	}
}

func (e *testEnv) newConversation(t *testing.T, userID uint) *models.Conversation {
	t.Helper()
	conv, err := e.conversations.CreateConversation(context.Background(), userID, CreateConversationInput{
		Title:    "test conversation",
		Provider: "stub",
	})
	require.NoError(t, err)
	return conv
}

func TestCreateMessageAssignsSequence(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	first, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:    models.RoleUser,
		Content: "one",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.SequenceNumber)
	assert.Equal(t, models.StatusSent, first.Status)

	second, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:    models.RoleUser,
		Content: "two",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.SequenceNumber)
}

func TestCreateMessageRejectsInvalidInput(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	_, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{Role: "robot", Content: "hi"})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_ERROR"))

	_, err = env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{Role: models.RoleUser, Content: "  "})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_ERROR"))
}

func TestSinglePendingAssistantPerConversation(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	_, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:   models.RoleAssistant,
		Status: models.StatusPending,
	})
	require.NoError(t, err)

	_, err = env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:   models.RoleAssistant,
		Status: models.StatusPending,
	})
	assert.True(t, apperrors.IsConflict(err))
}

func TestTerminalMessagesAreImmutable(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	message, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:    models.RoleAssistant,
		Content: "done",
		Status:  models.StatusDelivered,
	})
	require.NoError(t, err)

	newContent := "rewritten"
	_, err = env.ledger.UpdateMessage(ctx, conv.ID, message.ID, UpdateMessageInput{Content: &newContent})
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))

	// Metadata merges stay allowed after the terminal transition
	updated, err := env.ledger.UpdateMessage(ctx, conv.ID, message.ID, UpdateMessageInput{
		Metadata: map[string]interface{}{"reviewed": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", updated.Content)
	assert.Equal(t, true, updated.Metadata["reviewed"])
}

func TestResolvePendingDiscardsLateResult(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	pending, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:   models.RoleAssistant,
		Status: models.StatusPending,
	})
	require.NoError(t, err)

	failed, err := env.ledger.ResolvePending(ctx, conv.ID, pending.ID, models.StatusFailed, "timed out", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)

	// A success arriving after the failure must not overwrite it
	late, err := env.ledger.ResolvePending(ctx, conv.ID, pending.ID, models.StatusSent, "late reply", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, late.Status)
	assert.Equal(t, "timed out", late.Content)
}

func TestValidateOwnershipDistinguishesMissingFromForeign(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	_, err := env.conversations.ValidateOwnership(ctx, 1, conv.ID+100)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = env.conversations.ValidateOwnership(ctx, 2, conv.ID)
	assert.True(t, apperrors.IsForbidden(err))

	owned, err := env.conversations.ValidateOwnership(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, owned.ID)
}

func TestListMessagesDefaultsAndPaging(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
			Role:    models.RoleUser,
			Content: "message",
		})
		require.NoError(t, err)
	}

	messages, page, err := env.ledger.ListMessages(ctx, conv.ID, pagination.Params{Page: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)

	require.Len(t, messages, 5)
	assert.Equal(t, int64(21), messages[0].SequenceNumber)
}

func TestChatExchangeSuccess(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	result, err := env.chat.SendMessage(ctx, 1, conv.ID, "hello there")
	require.NoError(t, err)

	assert.Equal(t, models.RoleUser, result.UserMessage.Role)
	assert.Equal(t, models.StatusSent, result.UserMessage.Status)
	assert.Equal(t, int64(1), result.UserMessage.SequenceNumber)

	assert.Equal(t, models.RoleAssistant, result.AssistantMessage.Role)
	assert.Equal(t, models.StatusSent, result.AssistantMessage.Status)
	assert.Equal(t, int64(2), result.AssistantMessage.SequenceNumber)
	assert.Equal(t, "You said: hello there", result.AssistantMessage.Content)
	assert.Equal(t, "stub", result.AssistantMessage.Metadata["provider"])
	assert.Contains(t, result.AssistantMessage.Metadata, "elapsed_ms")

	// Both ledger entries of the exchange are reflected in the count
	updated, err := env.conversations.GetConversation(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MessageCount)
	assert.NotNil(t, updated.LastActivityAt)
}

func TestChatExchangeFailureIsRecordedAndReraised(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	env.stub.FailWith = errors.New("connection refused")

	result, err := env.chat.SendMessage(ctx, 1, conv.ID, "hello there")
	require.Error(t, err)
	assert.Equal(t, 503, apperrors.GetStatusCode(err))

	// The user turn survives, the assistant entry is failed and terminal
	require.NotNil(t, result)
	assert.Equal(t, models.StatusSent, result.UserMessage.Status)
	assert.Equal(t, models.StatusFailed, result.AssistantMessage.Status)
	assert.NotEmpty(t, result.AssistantMessage.Content)
	assert.NotEmpty(t, result.AssistantMessage.Error)
	assert.Equal(t, "stub", result.AssistantMessage.Metadata["provider"])

	// The user turn and the failed assistant entry both count
	updated, getErr := env.conversations.GetConversation(ctx, 1, conv.ID)
	require.NoError(t, getErr)
	assert.Equal(t, 2, updated.MessageCount)

	// The conversation is not blocked: a later exchange succeeds
	env.stub.FailWith = nil
	retry, err := env.chat.SendMessage(ctx, 1, conv.ID, "try again")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, retry.AssistantMessage.Status)
}

func TestChatRejectsArchivedConversation(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	archived := models.ConversationArchived
	_, err := env.conversations.UpdateConversation(ctx, 1, conv.ID, UpdateConversationInput{Status: &archived})
	require.NoError(t, err)

	_, err = env.chat.SendMessage(ctx, 1, conv.ID, "hello")
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))
}

type recordingProvider struct {
	*provider.StubProvider
	lastRequest provider.ChatRequest
}

func (p *recordingProvider) SendMessage(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	p.lastRequest = req
	return p.StubProvider.SendMessage(ctx, req)
}

func TestChatExchangeUsesSystemPromptAndOverrides(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	rec := &recordingProvider{StubProvider: provider.NewStubProvider()}
	env.registry.Register(rec)

	conv, err := env.conversations.CreateConversation(ctx, 1, CreateConversationInput{
		Title:        "with prompt",
		Provider:     "stub",
		SystemPrompt: "You are terse.",
		Settings:     models.SettingsMap{"temperature": 0.2, "top_p": 0.9},
	})
	require.NoError(t, err)

	_, err = env.chat.Exchange(ctx, 1, conv.ID, ExchangeInput{
		Content:          "hi",
		OverrideSettings: map[string]float64{"temperature": 0.9},
	})
	require.NoError(t, err)

	require.NotEmpty(t, rec.lastRequest.Messages)
	assert.Equal(t, models.RoleSystem, rec.lastRequest.Messages[0].Role)
	assert.Equal(t, "You are terse.", rec.lastRequest.Messages[0].Content)
	assert.Equal(t, "hi", rec.lastRequest.Messages[len(rec.lastRequest.Messages)-1].Content)

	// The override wins for this exchange; untouched settings pass through
	assert.Equal(t, 0.9, rec.lastRequest.Settings["temperature"])
	assert.Equal(t, 0.9, rec.lastRequest.Settings["top_p"])
}

func TestHistoryExcludesFailedAndSystemEntries(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	rec := &recordingProvider{StubProvider: provider.NewStubProvider()}
	env.registry.Register(rec)

	conv, err := env.conversations.CreateConversation(ctx, 1, CreateConversationInput{
		Title:        "filtered",
		Provider:     "stub",
		SystemPrompt: "You are terse.",
	})
	require.NoError(t, err)

	// A failed attempt and a ledger-level system note precede the exchange
	rec.FailWith = errors.New("connection refused")
	failed, err := env.chat.SendMessage(ctx, 1, conv.ID, "first try")
	require.Error(t, err)
	require.NotNil(t, failed)

	_, err = env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:    models.RoleSystem,
		Content: "conversation imported",
	})
	require.NoError(t, err)

	rec.FailWith = nil
	_, err = env.chat.SendMessage(ctx, 1, conv.ID, "second try")
	require.NoError(t, err)

	// Only the conversation's own prompt leads; failed replies and ledger
	// system rows never reach the provider
	require.NotEmpty(t, rec.lastRequest.Messages)
	assert.Equal(t, "You are terse.", rec.lastRequest.Messages[0].Content)
	for _, m := range rec.lastRequest.Messages[1:] {
		assert.NotEqual(t, models.RoleSystem, m.Role)
		assert.NotEqual(t, failed.AssistantMessage.Content, m.Content)
	}
}

func TestMessageCountMatchesLedgerEntries(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	_, err := env.chat.SendMessage(ctx, 1, conv.ID, "hello")
	require.NoError(t, err)

	updated, err := env.conversations.GetConversation(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MessageCount)

	// Direct ledger appends count too, not just exchanges
	note, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:    models.RoleUser,
		Content: "a follow-up note",
	})
	require.NoError(t, err)

	updated, err = env.conversations.GetConversation(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.MessageCount)

	// Deletions bring the count back down; sequence numbers stay burned
	require.NoError(t, env.ledger.DeleteMessage(ctx, conv.ID, note.ID))

	updated, err = env.conversations.GetConversation(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MessageCount)

	next, err := env.ledger.NextSequenceNumber(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), next)
}

type vanishingProvider struct {
	*provider.StubProvider
	onSend func()
}

func (p *vanishingProvider) SendMessage(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	p.onSend()
	return nil, errors.New("connection reset")
}

func TestDispatchFailureRecordedWhenPendingEntryVanishes(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	vanish := &vanishingProvider{StubProvider: provider.NewStubProvider()}
	vanish.onSend = func() {
		pending, err := env.ledger.PendingAssistant(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, pending)
		require.NoError(t, env.ledger.DeleteMessage(ctx, conv.ID, pending.ID))
	}
	env.registry.Register(vanish)

	result, err := env.chat.SendMessage(ctx, 1, conv.ID, "hello")
	require.Error(t, err)

	// The failure still lands in the ledger as a fresh failed entry
	require.NotNil(t, result)
	assert.Equal(t, models.RoleAssistant, result.AssistantMessage.Role)
	assert.Equal(t, models.StatusFailed, result.AssistantMessage.Status)
	assert.NotEmpty(t, result.AssistantMessage.Content)
	assert.NotEmpty(t, result.AssistantMessage.Error)

	pending, err := env.ledger.PendingAssistant(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestCreateMessageValidatesParent(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	other := env.newConversation(t, 1)
	ctx := context.Background()

	parent, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:    models.RoleUser,
		Content: "root",
	})
	require.NoError(t, err)

	reply, err := env.ledger.CreateMessage(ctx, conv.ID, CreateMessageInput{
		Role:            models.RoleUser,
		Content:         "threaded",
		ParentMessageID: &parent.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentMessageID)
	assert.Equal(t, parent.ID, *reply.ParentMessageID)

	// A parent from another conversation is rejected
	_, err = env.ledger.CreateMessage(ctx, other.ID, CreateMessageInput{
		Role:            models.RoleUser,
		Content:         "cross-thread",
		ParentMessageID: &parent.ID,
	})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_ERROR"))
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	_, err := env.chat.SendMessage(ctx, 1, conv.ID, "hello")
	require.NoError(t, err)

	require.NoError(t, env.conversations.DeleteConversation(ctx, 1, conv.ID))

	_, err = env.conversations.ValidateOwnership(ctx, 1, conv.ID)
	assert.True(t, apperrors.IsNotFound(err))

	_, page, err := env.ledger.ListMessages(ctx, conv.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
}

func TestStatsIncludeUsage(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	require.NoError(t, env.conversations.RecordUsage(ctx, conv.ID, 120, 40))
	require.NoError(t, env.conversations.RecordUsage(ctx, conv.ID, 80, 20))

	stats, err := env.conversations.Stats(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), stats.TokensUsed)
	assert.Equal(t, int64(30), stats.AverageResponseMS)
}

func TestStatsReflectLedger(t *testing.T) {
	env := setupEnv(t)
	conv := env.newConversation(t, 1)
	ctx := context.Background()

	_, err := env.chat.SendMessage(ctx, 1, conv.ID, "hello")
	require.NoError(t, err)

	stats, err := env.conversations.Stats(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.MessageCount)
	assert.Equal(t, int64(2), stats.LastSequence)
	assert.Equal(t, models.ConversationActive, stats.Status)
}
