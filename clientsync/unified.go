package clientsync

import (
	"time"
)

// Source identifies which store a record lives in
type Source string

const (
	// SourceBackend marks records owned by the remote server
	SourceBackend Source = "backend"
	// SourceLocal marks records that only exist on this device
	SourceLocal Source = "local"
)

// UnifiedConversation is the client-side view of a conversation,
// regardless of which store it came from. IDs are strings because the
// two stores use different key types.
type UnifiedConversation struct {
	ID             string     `json:"id"`
	Source         Source     `json:"source"`
	Title          string     `json:"title"`
	Provider       string     `json:"provider,omitempty"`
	Model          string     `json:"model,omitempty"`
	Status         string     `json:"status"`
	MessageCount   int        `json:"message_count"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// UnifiedMessage is the client-side view of a ledger entry. CorrelationID
// links an optimistic placeholder to the confirmed server row.
type UnifiedMessage struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	Source         Source                 `json:"source"`
	Role           string                 `json:"role"`
	Content        string                 `json:"content"`
	Status         string                 `json:"status"`
	Error          string                 `json:"error,omitempty"`
	SequenceNumber int64                  `json:"sequence_number"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
