package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message statuses. Sent, delivered and failed are terminal: once reached,
// the message's role, content, sequence number and status never change
// again; only metadata may still be appended. Content is mutable while the
// status is pending.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// IsTerminalStatus reports whether a status permits no further transitions
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// ValidRole reports whether the role is one of the known roles
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant || role == RoleSystem
}

// ValidStatus reports whether the status is one of the known statuses
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// Attachment references a file attached to a message. The bytes live in
// external storage; only the reference is kept on the ledger entry.
type Attachment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	StorageRef string `json:"storage_ref"`
}

// AttachmentList stores a message's attachments as a jsonb column
type AttachmentList []Attachment

// Value implements driver.Valuer
func (a AttachmentList) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (a *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for AttachmentList")
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, a)
}

// Message is one entry of a conversation's ordered ledger. SequenceNumber
// is unique within a conversation and strictly increasing; it is assigned
// on creation and never reused, even after deletions.
type Message struct {
	ID              uint   `json:"id" gorm:"primaryKey"`
	ConversationID  uint   `json:"conversation_id" gorm:"not null;index;uniqueIndex:idx_messages_conv_seq,priority:1"`
	SequenceNumber  int64  `json:"sequence_number" gorm:"not null;uniqueIndex:idx_messages_conv_seq,priority:2"`
	ParentMessageID *uint  `json:"parent_message_id,omitempty" gorm:"index"`
	Role            string `json:"role" gorm:"size:20;not null;index"`
	Content         string `json:"content" gorm:"type:text;not null"`
	Status          string `json:"status" gorm:"size:20;not null;default:'sent';index"`
	Error           string `json:"error,omitempty" gorm:"type:text"`
	Model           string `json:"model,omitempty" gorm:"size:128"`

	Attachments AttachmentList    `json:"attachments,omitempty" gorm:"type:jsonb"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb;default:'{}'"`

	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName overrides the default table name
func (Message) TableName() string {
	return "messages"
}

// IsTerminal reports whether the message has reached a terminal status
func (m *Message) IsTerminal() bool {
	return IsTerminalStatus(m.Status)
}
