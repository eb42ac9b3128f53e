package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Conversation statuses
const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
)

// SettingsMap stores per-conversation provider settings (temperature,
// top_p, ...) as a jsonb column
type SettingsMap map[string]float64

// Value implements driver.Valuer
func (s SettingsMap) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (s *SettingsMap) Scan(value interface{}) error {
	if value == nil {
		*s = SettingsMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for SettingsMap")
	}
	if len(data) == 0 {
		*s = SettingsMap{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// Conversation is one chat thread owned by a single user
type Conversation struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	UserID       uint   `json:"user_id" gorm:"not null;index"`
	Title        string `json:"title" gorm:"size:255;not null"`
	Provider     string `json:"provider" gorm:"size:64;not null;default:'openai'"`
	Model        string `json:"model" gorm:"size:128"`
	SystemPrompt string `json:"system_prompt,omitempty" gorm:"type:text"`

	Settings SettingsMap `json:"settings" gorm:"type:jsonb;default:'{}'"`
	Status   string      `json:"status" gorm:"size:20;not null;default:'active';index"`

	// MessageCount mirrors the number of non-deleted ledger entries; it is
	// maintained by the message repository inside the create/delete
	// transactions
	MessageCount   int        `json:"message_count" gorm:"not null;default:0"`
	LastActivityAt *time.Time `json:"last_activity_at" gorm:"index"`

	// Usage aggregates maintained by the dispatch gateway on successful
	// exchanges; averages are derived from them on demand
	TokensUsed     int64 `json:"tokens_used" gorm:"not null;default:0"`
	TotalLatencyMS int64 `json:"-" gorm:"not null;default:0"`
	LatencySamples int64 `json:"-" gorm:"not null;default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName overrides the default table name
func (Conversation) TableName() string {
	return "conversations"
}

// IsActive reports whether new messages may be sent into the conversation
func (c *Conversation) IsActive() bool {
	return c.Status == ConversationActive
}
