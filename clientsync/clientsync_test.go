package clientsync

import (
	"context"
	"errors"
	"testing"

	"converso/backend/conversation/models"
	"converso/backend/conversation/service"
	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/pagination"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("server unreachable")

// fakeRemote simulates the server with a toggleable connection
type fakeRemote struct {
	online        bool
	nextID        uint
	conversations map[uint]*models.Conversation
	messages      map[uint][]models.Message
}

func newFakeRemote(online bool) *fakeRemote {
	return &fakeRemote{
		online:        online,
		conversations: make(map[uint]*models.Conversation),
		messages:      make(map[uint][]models.Message),
	}
}

func (f *fakeRemote) Ping(_ context.Context) error {
	if !f.online {
		return errUnreachable
	}
	return nil
}

func (f *fakeRemote) CreateConversation(ctx context.Context, input service.CreateConversationInput) (*models.Conversation, error) {
	if err := f.Ping(ctx); err != nil {
		return nil, err
	}
	f.nextID++
	conversation := &models.Conversation{
		ID:     f.nextID,
		Title:  input.Title,
		Status: models.ConversationActive,
	}
	f.conversations[conversation.ID] = conversation
	return conversation, nil
}

func (f *fakeRemote) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	if err := f.Ping(ctx); err != nil {
		return nil, err
	}
	conversation, ok := f.conversations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("CONVERSATION_NOT_FOUND", "conversation not found")
	}
	return conversation, nil
}

func (f *fakeRemote) ListConversations(ctx context.Context, _ pagination.Params) ([]models.Conversation, pagination.Pagination, error) {
	if err := f.Ping(ctx); err != nil {
		return nil, pagination.Pagination{}, err
	}
	var list []models.Conversation
	for _, c := range f.conversations {
		list = append(list, *c)
	}
	return list, pagination.New(1, 20, int64(len(list))), nil
}

func (f *fakeRemote) DeleteConversation(ctx context.Context, id uint) error {
	if err := f.Ping(ctx); err != nil {
		return err
	}
	delete(f.conversations, id)
	return nil
}

func (f *fakeRemote) ListMessages(ctx context.Context, conversationID uint, _ pagination.Params) ([]models.Message, pagination.Pagination, error) {
	if err := f.Ping(ctx); err != nil {
		return nil, pagination.Pagination{}, err
	}
	list := f.messages[conversationID]
	return list, pagination.New(1, 20, int64(len(list))), nil
}

func (f *fakeRemote) SendMessage(ctx context.Context, conversationID uint, content string) (*service.ExchangeResult, error) {
	if err := f.Ping(ctx); err != nil {
		return nil, err
	}
	seq := int64(len(f.messages[conversationID]))
	user := models.Message{ID: uint(seq + 1), ConversationID: conversationID, Role: models.RoleUser, Content: content, Status: models.StatusSent, SequenceNumber: seq + 1}
	assistant := models.Message{ID: uint(seq + 2), ConversationID: conversationID, Role: models.RoleAssistant, Content: "reply", Status: models.StatusSent, SequenceNumber: seq + 2}
	f.messages[conversationID] = append(f.messages[conversationID], user, assistant)
	return &service.ExchangeResult{
		UserMessage:      &user,
		AssistantMessage: &assistant,
	}, nil
}

func newTestArbiter(online bool) (*Arbiter, *fakeRemote, *MemoryStore) {
	remote := newFakeRemote(online)
	local := NewMemoryStore()
	arbiter := NewArbiter(remote, local, logger.New(logger.Config{Level: "error"}))
	return arbiter, remote, local
}

func TestModeReevaluatedPerCall(t *testing.T) {
	arbiter, remote, _ := newTestArbiter(true)
	ctx := context.Background()

	assert.Equal(t, ModeOnline, arbiter.Mode(ctx))

	remote.online = false
	assert.Equal(t, ModeOffline, arbiter.Mode(ctx))

	remote.online = true
	assert.Equal(t, ModeOnline, arbiter.Mode(ctx))
}

func TestCreateConversationPrefersRemote(t *testing.T) {
	arbiter, remote, _ := newTestArbiter(true)

	created, err := arbiter.CreateConversation(context.Background(), "on the server")
	require.NoError(t, err)

	assert.Equal(t, SourceBackend, created.Source)
	assert.Len(t, remote.conversations, 1)
}

func TestCreateConversationFallsBackToLocalWhenOffline(t *testing.T) {
	arbiter, remote, local := newTestArbiter(false)

	created, err := arbiter.CreateConversation(context.Background(), "on the device")
	require.NoError(t, err)

	assert.Equal(t, SourceLocal, created.Source)
	assert.Empty(t, remote.conversations)

	locals, err := local.ListConversations()
	require.NoError(t, err)
	require.Len(t, locals, 1)
	assert.Equal(t, "on the device", locals[0].Title)
}

func TestListConversationsMergesSources(t *testing.T) {
	arbiter, _, _ := newTestArbiter(true)
	ctx := context.Background()

	_, err := arbiter.CreateConversation(ctx, "remote one")
	require.NoError(t, err)

	local := NewLocalConversation("local one")
	require.NoError(t, arbiter.local.SaveConversation(local))

	merged, err := arbiter.ListConversations(ctx, pagination.Params{Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, merged, 2)

	sources := map[Source]bool{}
	for _, c := range merged {
		sources[c.Source] = true
	}
	assert.True(t, sources[SourceBackend])
	assert.True(t, sources[SourceLocal])
}

func TestListConversationsOfflineServesLocalOnly(t *testing.T) {
	arbiter, remote, _ := newTestArbiter(true)
	ctx := context.Background()

	_, err := arbiter.CreateConversation(ctx, "remote one")
	require.NoError(t, err)

	remote.online = false

	local := NewLocalConversation("local one")
	require.NoError(t, arbiter.local.SaveConversation(local))

	merged, err := arbiter.ListConversations(ctx, pagination.Params{Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, SourceLocal, merged[0].Source)
}

func TestSendMessageRoutesStrictlyBySource(t *testing.T) {
	arbiter, _, local := newTestArbiter(true)
	ctx := context.Background()

	created, err := arbiter.CreateConversation(ctx, "remote one")
	require.NoError(t, err)

	result, err := arbiter.SendMessage(ctx, SourceBackend, created.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, result.AssistantMessage.Status)

	// A device-local conversation never dispatches, even while online
	localConv := NewLocalConversation("local one")
	require.NoError(t, local.SaveConversation(localConv))

	_, err = arbiter.SendMessage(ctx, SourceLocal, localConv.ID, "hello")
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))
}

func TestSendMessageToBackendFailsOffline(t *testing.T) {
	arbiter, remote, _ := newTestArbiter(true)
	ctx := context.Background()

	created, err := arbiter.CreateConversation(ctx, "remote one")
	require.NoError(t, err)

	remote.online = false

	_, err = arbiter.SendMessage(ctx, SourceBackend, created.ID, "hello")
	assert.ErrorIs(t, err, errUnreachable)
}

func TestMemoryStoreSequencesAndCounts(t *testing.T) {
	store := NewMemoryStore()
	conversation := NewLocalConversation("notes")
	require.NoError(t, store.SaveConversation(conversation))

	assert.Equal(t, int64(1), store.NextSequence(conversation.ID))

	require.NoError(t, store.SaveMessage(&LocalMessage{
		ConversationID: conversation.ID,
		Role:           "user",
		Content:        "first",
		Status:         "sent",
		SequenceNumber: store.NextSequence(conversation.ID),
	}))
	require.NoError(t, store.SaveMessage(&LocalMessage{
		ConversationID: conversation.ID,
		Role:           "user",
		Content:        "second",
		Status:         "sent",
		SequenceNumber: store.NextSequence(conversation.ID),
	}))

	messages, err := store.ListMessages(conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(1), messages[0].SequenceNumber)
	assert.Equal(t, int64(2), messages[1].SequenceNumber)

	stored, err := store.GetConversation(conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.MessageCount)
	assert.NotNil(t, stored.LastActivityAt)
}

func TestOptimisticBufferLifecycle(t *testing.T) {
	buffer := NewOptimisticBuffer()

	staged := buffer.Stage("42", SourceBackend, "hello")
	assert.Equal(t, "pending", staged.Status)
	assert.NotEmpty(t, staged.CorrelationID)
	assert.Equal(t, 1, buffer.Len())

	confirmed := UnifiedMessage{
		ID:             "7",
		ConversationID: "42",
		Source:         SourceBackend,
		Role:           "user",
		Content:        "hello",
		Status:         "sent",
		SequenceNumber: 1,
	}

	reconciled, ok := buffer.Reconcile(staged.CorrelationID, confirmed)
	require.True(t, ok)
	assert.Equal(t, staged.CorrelationID, reconciled.CorrelationID)
	assert.Equal(t, "sent", reconciled.Status)
	assert.Equal(t, 0, buffer.Len())

	// Reconciling twice is a no-op
	_, ok = buffer.Reconcile(staged.CorrelationID, confirmed)
	assert.False(t, ok)
}

func TestOptimisticBufferFailRemovesEntry(t *testing.T) {
	buffer := NewOptimisticBuffer()

	staged := buffer.Stage("42", SourceBackend, "hello")

	failed, ok := buffer.Fail(staged.CorrelationID)
	require.True(t, ok)
	assert.Equal(t, "failed", failed.Status)

	// The synthetic row is gone: nothing is left to render as a ghost
	assert.Equal(t, 0, buffer.Len())
	assert.Empty(t, buffer.Pending("42"))

	// Failing an unknown correlation id is a no-op
	_, ok = buffer.Fail(staged.CorrelationID)
	assert.False(t, ok)
}

func newTestClient(online bool) (*Client, *fakeRemote, *MemoryStore) {
	arbiter, remote, local := newTestArbiter(online)
	client := NewClient(arbiter, logger.New(logger.Config{Level: "error"}))
	return client, remote, local
}

func TestClientSendReconcilesOptimisticEntry(t *testing.T) {
	client, _, _ := newTestClient(true)
	ctx := context.Background()

	created, err := client.arbiter.CreateConversation(ctx, "remote one")
	require.NoError(t, err)

	result, err := client.SendMessage(ctx, SourceBackend, created.ID, "hello")
	require.NoError(t, err)

	// The staged entry is gone and the returned list holds only
	// server-confirmed rows
	assert.Equal(t, 0, client.PendingCount())
	require.Len(t, result.Messages, 2)
	for _, m := range result.Messages {
		assert.NotContains(t, m.ID, "optimistic-")
		assert.NotEqual(t, "pending", m.Status)
	}
	assert.Equal(t, models.RoleUser, result.Exchange.UserMessage.Role)
	assert.Equal(t, models.StatusSent, result.Exchange.AssistantMessage.Status)
}

func TestClientSendFailureLeavesNoGhost(t *testing.T) {
	client, remote, _ := newTestClient(true)
	ctx := context.Background()

	created, err := client.arbiter.CreateConversation(ctx, "remote one")
	require.NoError(t, err)

	remote.online = false

	_, err = client.SendMessage(ctx, SourceBackend, created.ID, "hello")
	require.ErrorIs(t, err, errUnreachable)
	assert.Equal(t, 0, client.PendingCount())

	remote.online = true
	messages, err := client.Messages(ctx, SourceBackend, created.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestClientMessagesIncludeStagedEntries(t *testing.T) {
	client, _, local := newTestClient(true)
	ctx := context.Background()

	conversation := NewLocalConversation("notes")
	require.NoError(t, local.SaveConversation(conversation))

	staged := client.buffer.Stage(conversation.ID, SourceLocal, "unconfirmed")

	messages, err := client.Messages(ctx, SourceLocal, conversation.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, staged.CorrelationID, messages[0].CorrelationID)
	assert.Equal(t, "pending", messages[0].Status)
}

func TestAdapterMapsBackendRecords(t *testing.T) {
	conversation := &models.Conversation{ID: 12, Title: "t", Status: models.ConversationActive, Provider: "openai"}
	unified := FromBackendConversation(conversation)
	assert.Equal(t, "12", unified.ID)
	assert.Equal(t, SourceBackend, unified.Source)

	id, err := BackendID(unified.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(12), id)

	_, err = BackendID("not-a-number")
	assert.Error(t, err)
}
