package clientsync

import (
	"sort"
	"sync"
	"time"

	apperrors "converso/backend/pkg/errors"

	"github.com/google/uuid"
)

// LocalConversation is a conversation that exists only on this device
type LocalConversation struct {
	ID             string
	Title          string
	Status         string
	MessageCount   int
	LastActivityAt *time.Time
	CreatedAt      time.Time
}

// LocalMessage is a device-only ledger entry
type LocalMessage struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Status         string
	SequenceNumber int64
	CorrelationID  string
	CreatedAt      time.Time
}

// LocalStore is the device-side persistence boundary. The in-memory
// implementation below is the default; a file-backed one can be swapped
// in without touching the arbiter.
type LocalStore interface {
	SaveConversation(c *LocalConversation) error
	GetConversation(id string) (*LocalConversation, error)
	ListConversations() ([]LocalConversation, error)
	DeleteConversation(id string) error

	SaveMessage(m *LocalMessage) error
	ListMessages(conversationID string) ([]LocalMessage, error)
	NextSequence(conversationID string) int64
}

// MemoryStore keeps everything in process memory, guarded by one lock
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*LocalConversation
	messages      map[string][]*LocalMessage
}

// NewMemoryStore creates an empty in-memory local store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*LocalConversation),
		messages:      make(map[string][]*LocalMessage),
	}
}

// NewLocalConversation builds a device conversation with a fresh id
func NewLocalConversation(title string) *LocalConversation {
	return &LocalConversation{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}
}

func (s *MemoryStore) SaveConversation(c *LocalConversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *c
	s.conversations[c.ID] = &clone
	return nil
}

func (s *MemoryStore) GetConversation(id string) (*LocalConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("CONVERSATION_NOT_FOUND", "conversation not found")
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryStore) ListConversations() ([]LocalConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]LocalConversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		list = append(list, *c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return apperrors.NewNotFoundError("CONVERSATION_NOT_FOUND", "conversation not found")
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) SaveMessage(m *LocalMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return apperrors.NewNotFoundError("CONVERSATION_NOT_FOUND", "conversation not found")
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	clone := *m
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], &clone)

	c.MessageCount++
	now := clone.CreatedAt
	c.LastActivityAt = &now
	return nil
}

func (s *MemoryStore) ListMessages(conversationID string) ([]LocalMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, apperrors.NewNotFoundError("CONVERSATION_NOT_FOUND", "conversation not found")
	}

	stored := s.messages[conversationID]
	list := make([]LocalMessage, 0, len(stored))
	for _, m := range stored {
		list = append(list, *m)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].SequenceNumber < list[j].SequenceNumber
	})
	return list, nil
}

func (s *MemoryStore) NextSequence(conversationID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max int64
	for _, m := range s.messages[conversationID] {
		if m.SequenceNumber > max {
			max = m.SequenceNumber
		}
	}
	return max + 1
}

var _ LocalStore = (*MemoryStore)(nil)
