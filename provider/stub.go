package provider

import (
	"context"
	"fmt"
	"time"
)

// StubProvider is a deterministic in-process provider used in development
// environments and tests. It echoes the last user message back.
type StubProvider struct {
	name    string
	models  []string
	delay   time.Duration
	healthy bool

	// FailWith, when set, makes every SendMessage call fail with this error
	FailWith error
}

// NewStubProvider creates a stub provider named "stub"
func NewStubProvider() *StubProvider {
	return &StubProvider{
		name:    "stub",
		models:  []string{"stub-small", "stub-large"},
		healthy: true,
	}
}

// WithDelay makes the stub sleep before replying
func (p *StubProvider) WithDelay(d time.Duration) *StubProvider {
	p.delay = d
	return p
}

// SetHealthy toggles the health probe result
func (p *StubProvider) SetHealthy(healthy bool) {
	p.healthy = healthy
}

// Name implements Provider
func (p *StubProvider) Name() string {
	return p.name
}

// SendMessage implements Provider
func (p *StubProvider) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.FailWith != nil {
		return nil, p.FailWith
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}

	model := req.Model
	if model == "" {
		model = p.models[0]
	}

	return &ChatResponse{
		Content: fmt.Sprintf("You said: %s", last),
		Model:   model,
	}, nil
}

// GetAvailableModels implements Provider
func (p *StubProvider) GetAvailableModels(_ context.Context) ([]ModelInfo, error) {
	models := make([]ModelInfo, 0, len(p.models))
	for _, id := range p.models {
		models = append(models, ModelInfo{ID: id, Provider: p.name})
	}
	return models, nil
}

// ValidateSettings implements Provider
func (p *StubProvider) ValidateSettings(settings map[string]float64) ValidationResult {
	result := ValidationResult{IsValid: true}
	if v, ok := settings["temperature"]; ok && (v < 0 || v > 2) {
		result.Errors = append(result.Errors, "temperature must be between 0 and 2")
		result.IsValid = false
	}
	return result
}

// IsHealthy implements Provider
func (p *StubProvider) IsHealthy(_ context.Context) bool {
	return p.healthy
}

var _ Provider = (*StubProvider)(nil)
