package provider

import (
	"context"
	"time"
)

// ChatMessage is a single turn handed to a provider
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries everything a provider needs to produce a reply
type ChatRequest struct {
	Model          string             `json:"model"`
	Messages       []ChatMessage      `json:"messages"`
	Settings       map[string]float64 `json:"settings,omitempty"`
	ConversationID uint               `json:"conversation_id,omitempty"`
	UserID         uint               `json:"user_id,omitempty"`
}

// ChatResponse is a provider reply plus dispatch metadata. The registry
// stamps Metadata with the provider name and elapsed time on every call.
type ChatResponse struct {
	Content  string                 `json:"content"`
	Model    string                 `json:"model"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Elapsed  time.Duration          `json:"-"`
}

// ModelInfo describes one entry of a provider's model catalog
type ModelInfo struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// ValidationResult reports whether a settings map is acceptable for a provider
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors,omitempty"`
}

// Provider is implemented by every AI backend the dispatch gateway can reach
type Provider interface {
	// Name returns the provider identifier, e.g. "openai"
	Name() string

	// SendMessage produces a reply for the given request
	SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// GetAvailableModels returns the provider's model catalog
	GetAvailableModels(ctx context.Context) ([]ModelInfo, error)

	// ValidateSettings checks a settings map without calling the backend
	ValidateSettings(settings map[string]float64) ValidationResult

	// IsHealthy reports reachability. Implementations must not panic and
	// must return false instead of an error.
	IsHealthy(ctx context.Context) bool
}
