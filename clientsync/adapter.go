package clientsync

import (
	"strconv"

	"converso/backend/conversation/models"
)

// The adapter functions are pure: they map store records into the unified
// client types and never touch the network or the stores themselves.

// FromBackendConversation maps a server conversation into the unified shape
func FromBackendConversation(c *models.Conversation) UnifiedConversation {
	return UnifiedConversation{
		ID:             strconv.FormatUint(uint64(c.ID), 10),
		Source:         SourceBackend,
		Title:          c.Title,
		Provider:       c.Provider,
		Model:          c.Model,
		Status:         c.Status,
		MessageCount:   c.MessageCount,
		LastActivityAt: c.LastActivityAt,
		CreatedAt:      c.CreatedAt,
	}
}

// FromBackendMessage maps a server ledger entry into the unified shape
func FromBackendMessage(m *models.Message) UnifiedMessage {
	return UnifiedMessage{
		ID:             strconv.FormatUint(uint64(m.ID), 10),
		ConversationID: strconv.FormatUint(uint64(m.ConversationID), 10),
		Source:         SourceBackend,
		Role:           m.Role,
		Content:        m.Content,
		Status:         m.Status,
		Error:          m.Error,
		SequenceNumber: m.SequenceNumber,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
}

// FromLocalConversation maps a device-only conversation into the unified shape
func FromLocalConversation(c *LocalConversation) UnifiedConversation {
	return UnifiedConversation{
		ID:             c.ID,
		Source:         SourceLocal,
		Title:          c.Title,
		Status:         c.Status,
		MessageCount:   c.MessageCount,
		LastActivityAt: c.LastActivityAt,
		CreatedAt:      c.CreatedAt,
	}
}

// FromLocalMessage maps a device-only message into the unified shape
func FromLocalMessage(m *LocalMessage) UnifiedMessage {
	return UnifiedMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Source:         SourceLocal,
		Role:           m.Role,
		Content:        m.Content,
		Status:         m.Status,
		SequenceNumber: m.SequenceNumber,
		CorrelationID:  m.CorrelationID,
		CreatedAt:      m.CreatedAt,
	}
}

// BackendID parses a unified id back into a server primary key
func BackendID(id string) (uint, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(n), nil
}
