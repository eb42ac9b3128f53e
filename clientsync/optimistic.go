package clientsync

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// OptimisticBuffer holds user messages that were rendered immediately but
// not yet confirmed by a store. Each staged entry carries a correlation
// id; reconciliation is explicit, nothing expires on its own.
type OptimisticBuffer struct {
	mu      sync.RWMutex
	entries map[string]UnifiedMessage
}

// NewOptimisticBuffer creates an empty buffer
func NewOptimisticBuffer() *OptimisticBuffer {
	return &OptimisticBuffer{entries: make(map[string]UnifiedMessage)}
}

// Stage records a synthetic pending user message and returns it. The
// caller renders it right away and later reconciles it by correlation id.
func (b *OptimisticBuffer) Stage(conversationID string, source Source, content string) UnifiedMessage {
	entry := UnifiedMessage{
		ID:             "optimistic-" + uuid.NewString(),
		ConversationID: conversationID,
		Source:         source,
		Role:           "user",
		Content:        content,
		Status:         "pending",
		CorrelationID:  uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
	}

	b.mu.Lock()
	b.entries[entry.CorrelationID] = entry
	b.mu.Unlock()

	return entry
}

// Reconcile replaces the staged entry with the confirmed record and drops
// it from the buffer. The confirmed record keeps the correlation id so
// the UI can swap rows in place.
func (b *OptimisticBuffer) Reconcile(correlationID string, confirmed UnifiedMessage) (UnifiedMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[correlationID]; !ok {
		return UnifiedMessage{}, false
	}
	delete(b.entries, correlationID)

	confirmed.CorrelationID = correlationID
	return confirmed, true
}

// Fail removes the staged entry and returns a failed-marked copy for the
// caller to surface. No synthetic row stays visible after a failed send;
// the caller re-stages on retry.
func (b *OptimisticBuffer) Fail(correlationID string) (UnifiedMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[correlationID]
	if !ok {
		return UnifiedMessage{}, false
	}
	delete(b.entries, correlationID)
	entry.Status = "failed"
	return entry, true
}

// Drop discards a staged entry without confirming it
func (b *OptimisticBuffer) Drop(correlationID string) {
	b.mu.Lock()
	delete(b.entries, correlationID)
	b.mu.Unlock()
}

// Pending returns the staged entries for one conversation, oldest first
func (b *OptimisticBuffer) Pending(conversationID string) []UnifiedMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var pending []UnifiedMessage
	for _, entry := range b.entries {
		if entry.ConversationID == conversationID {
			pending = append(pending, entry)
		}
	}
	for i := 1; i < len(pending); i++ {
		for j := i; j > 0 && pending[j].CreatedAt.Before(pending[j-1].CreatedAt); j-- {
			pending[j], pending[j-1] = pending[j-1], pending[j]
		}
	}
	return pending
}

// Len reports how many entries are staged across all conversations
func (b *OptimisticBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
