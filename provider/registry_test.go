package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(logger.New(logger.Config{Level: "error"}))
}

func TestRegistryGetAndList(t *testing.T) {
	registry := newTestRegistry()
	registry.Register(NewStubProvider())

	p, err := registry.Get("stub")
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())

	_, err = registry.Get("missing")
	assert.True(t, apperrors.IsNotFound(err))

	assert.Equal(t, []string{"stub"}, registry.ListNames())
}

func TestRegistrySendMessageTagsMetadata(t *testing.T) {
	registry := newTestRegistry()
	registry.Register(NewStubProvider())

	resp, err := registry.SendMessage(context.Background(), "stub", ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "ping"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "You said: ping", resp.Content)
	assert.Equal(t, "stub", resp.Metadata["provider"])
	assert.Contains(t, resp.Metadata, "elapsed_ms")
}

func TestRegistrySendMessageWrapsErrors(t *testing.T) {
	registry := newTestRegistry()
	stub := NewStubProvider()
	stub.FailWith = errors.New("connection refused")
	registry.Register(stub)

	_, err := registry.SendMessage(context.Background(), "stub", ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "ping"}},
	})
	require.Error(t, err)
	assert.Equal(t, 503, apperrors.GetStatusCode(err))
	assert.Equal(t, "PROVIDER_UNAVAILABLE", apperrors.GetErrorCode(err))
}

func TestRegistrySendMessageUnknownProvider(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.SendMessage(context.Background(), "ghost", ChatRequest{})
	assert.True(t, apperrors.IsNotFound(err))
}

type panickyProvider struct {
	*StubProvider
}

func (p *panickyProvider) IsHealthy(_ context.Context) bool {
	panic("probe exploded")
}

func TestRegistryIsHealthyNeverPanics(t *testing.T) {
	registry := newTestRegistry()
	registry.Register(&panickyProvider{StubProvider: NewStubProvider()})

	assert.NotPanics(t, func() {
		healthy := registry.IsHealthy(context.Background(), "stub")
		assert.False(t, healthy)
	})

	assert.False(t, registry.IsHealthy(context.Background(), "missing"))
}

func TestStubProviderRespectsContext(t *testing.T) {
	stub := NewStubProvider().WithDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := stub.SendMessage(ctx, ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "ping"}},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err      error
		expected ErrorCategory
	}{
		{errors.New("connection refused"), CategoryUnavailable},
		{errors.New("API request failed with status code 503: upstream down"), CategoryUnavailable},
		{errors.New("context deadline exceeded"), CategoryTimeout},
		{errors.New("request timeout after 60s"), CategoryTimeout},
		{errors.New("401 unauthorized"), CategoryAuth},
		{errors.New("model not found: gpt-99"), CategoryModelNotFound},
		{errors.New("something odd happened"), CategoryUnknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, Classify(tc.err), "error: %v", tc.err)
	}
}

func TestValidateSettings(t *testing.T) {
	p := &OpenAIProvider{}

	result := p.ValidateSettings(map[string]float64{"temperature": 0.7, "top_p": 0.9})
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)

	result = p.ValidateSettings(map[string]float64{
		"temperature": 3.5,
		"top_p":       -0.1,
		"warp_factor": 9,
	})
	assert.False(t, result.IsValid)
	assert.Len(t, result.Errors, 3)
}
