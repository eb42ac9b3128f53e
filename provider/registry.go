package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/resilience"
)

// Registry is the single lookup point for AI providers. Registration
// happens at startup; lookups and dispatches are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	breakers  map[string]*resilience.CircuitBreaker
	log       *logger.Logger
}

// NewRegistry creates an empty provider registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		breakers:  make(map[string]*resilience.CircuitBreaker),
		log:       log,
	}
}

// Register adds a provider under its own name, replacing any previous
// registration with the same name
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	r.providers[name] = p
	r.breakers[name] = resilience.NewCircuitBreaker(
		resilience.DefaultCircuitBreakerConfig("provider:"+name),
		r.log,
	)

	r.log.Info("Provider registered", "provider", name)
}

// Get returns a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, apperrors.NewNotFoundError("PROVIDER_NOT_FOUND", "provider not registered: "+name)
	}
	return p, nil
}

// ListNames returns the registered provider names in sorted order
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SendMessage dispatches a request through the named provider. The reply's
// metadata is stamped with the provider name and elapsed milliseconds so
// the ledger can persist the dispatch trail alongside the content.
func (r *Registry) SendMessage(ctx context.Context, name string, req ChatRequest) (*ChatResponse, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	breaker := r.breakers[name]
	r.mu.RUnlock()

	var resp *ChatResponse
	start := time.Now()

	execErr := breaker.Execute(func() error {
		var sendErr error
		resp, sendErr = p.SendMessage(ctx, req)
		return sendErr
	})

	elapsed := time.Since(start)
	dispatchDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if execErr != nil {
		dispatchRequests.WithLabelValues(name, "error").Inc()
		if execErr == resilience.ErrCircuitOpen {
			return nil, apperrors.NewProviderUnavailableError(
				HumanMessage(CategoryUnavailable, name),
			).WithDetails(map[string]interface{}{"provider": name, "circuit": "open"})
		}
		return nil, WrapDispatchError(execErr, name)
	}

	dispatchRequests.WithLabelValues(name, "success").Inc()

	if resp.Metadata == nil {
		resp.Metadata = make(map[string]interface{})
	}
	resp.Metadata["provider"] = name
	resp.Metadata["elapsed_ms"] = elapsed.Milliseconds()
	resp.Elapsed = elapsed

	return resp, nil
}

// GetModels returns the model catalog of the named provider
func (r *Registry) GetModels(ctx context.Context, name string) ([]ModelInfo, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return p.GetAvailableModels(ctx)
}

// ValidateSettings checks a settings map against the named provider
func (r *Registry) ValidateSettings(name string, settings map[string]float64) (ValidationResult, error) {
	p, err := r.Get(name)
	if err != nil {
		return ValidationResult{}, err
	}
	return p.ValidateSettings(settings), nil
}

// IsHealthy probes the named provider. Unknown providers and panicking
// implementations report unhealthy rather than failing the caller.
func (r *Registry) IsHealthy(ctx context.Context, name string) (healthy bool) {
	p, err := r.Get(name)
	if err != nil {
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Provider health probe panicked", "provider", name, "panic", rec)
			healthy = false
		}
		healthProbes.WithLabelValues(name, boolLabel(healthy)).Inc()
	}()

	healthy = p.IsHealthy(ctx)
	return healthy
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
