package clientsync

import (
	"context"
	"sort"

	"converso/backend/conversation/service"
	apperrors "converso/backend/pkg/errors"
	"converso/backend/pkg/logger"
	"converso/backend/pkg/pagination"
)

// Mode is the connectivity state observed for a single call
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// Arbiter routes client operations between the remote server and the
// device-local store. Connectivity is re-evaluated on every call, never
// cached: a device can drop offline between any two operations.
type Arbiter struct {
	remote RemoteClient
	local  LocalStore
	log    *logger.Logger
}

// NewArbiter creates a mode arbiter over the given stores
func NewArbiter(remote RemoteClient, local LocalStore, log *logger.Logger) *Arbiter {
	return &Arbiter{remote: remote, local: local, log: log}
}

// Mode probes the server and reports the connectivity state for this call
func (a *Arbiter) Mode(ctx context.Context) Mode {
	if err := a.remote.Ping(ctx); err != nil {
		return ModeOffline
	}
	return ModeOnline
}

// CreateConversation tries the server first and falls back to a
// device-local conversation when the server cannot be reached. The
// returned record's Source tells the caller where it landed.
func (a *Arbiter) CreateConversation(ctx context.Context, title string) (UnifiedConversation, error) {
	if a.Mode(ctx) == ModeOnline {
		remote, err := a.remote.CreateConversation(ctx, service.CreateConversationInput{Title: title})
		if err == nil {
			return FromBackendConversation(remote), nil
		}
		// Client errors are the caller's problem; only connectivity
		// failures trigger the local fallback
		if appErr, ok := err.(*apperrors.AppError); ok && appErr.StatusCode < 500 {
			return UnifiedConversation{}, err
		}
		a.log.Warn("Remote create failed, falling back to local store", "error", err.Error())
	}

	local := NewLocalConversation(title)
	if err := a.local.SaveConversation(local); err != nil {
		return UnifiedConversation{}, err
	}
	return FromLocalConversation(local), nil
}

// ListConversations merges both stores: server conversations when online,
// device-local ones always. Newest first.
func (a *Arbiter) ListConversations(ctx context.Context, params pagination.Params) ([]UnifiedConversation, error) {
	var merged []UnifiedConversation

	if a.Mode(ctx) == ModeOnline {
		remote, _, err := a.remote.ListConversations(ctx, params)
		if err != nil {
			a.log.Warn("Remote list failed, serving local only", "error", err.Error())
		} else {
			for i := range remote {
				merged = append(merged, FromBackendConversation(&remote[i]))
			}
		}
	}

	locals, err := a.local.ListConversations()
	if err != nil {
		return nil, err
	}
	for i := range locals {
		merged = append(merged, FromLocalConversation(&locals[i]))
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged, nil
}

// GetConversation routes the read by the record's source
func (a *Arbiter) GetConversation(ctx context.Context, source Source, id string) (UnifiedConversation, error) {
	switch source {
	case SourceLocal:
		local, err := a.local.GetConversation(id)
		if err != nil {
			return UnifiedConversation{}, err
		}
		return FromLocalConversation(local), nil

	case SourceBackend:
		backendID, err := BackendID(id)
		if err != nil {
			return UnifiedConversation{}, apperrors.NewValidationError("invalid conversation id")
		}
		remote, err := a.remote.GetConversation(ctx, backendID)
		if err != nil {
			return UnifiedConversation{}, err
		}
		return FromBackendConversation(remote), nil
	}
	return UnifiedConversation{}, apperrors.NewValidationError("unknown conversation source")
}

// ListMessages routes the read by the conversation's source
func (a *Arbiter) ListMessages(ctx context.Context, source Source, id string, params pagination.Params) ([]UnifiedMessage, error) {
	switch source {
	case SourceLocal:
		locals, err := a.local.ListMessages(id)
		if err != nil {
			return nil, err
		}
		unified := make([]UnifiedMessage, 0, len(locals))
		for i := range locals {
			unified = append(unified, FromLocalMessage(&locals[i]))
		}
		return unified, nil

	case SourceBackend:
		backendID, err := BackendID(id)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid conversation id")
		}
		remote, _, err := a.remote.ListMessages(ctx, backendID, params)
		if err != nil {
			return nil, err
		}
		unified := make([]UnifiedMessage, 0, len(remote))
		for i := range remote {
			unified = append(unified, FromBackendMessage(&remote[i]))
		}
		return unified, nil
	}
	return nil, apperrors.NewValidationError("unknown conversation source")
}

// SendMessage routes strictly by source: there is no silent re-routing of
// a send. A device-local conversation has no dispatch path, so sending
// into one fails outright instead of quietly degrading.
func (a *Arbiter) SendMessage(ctx context.Context, source Source, id string, content string) (*service.ExchangeResult, error) {
	switch source {
	case SourceLocal:
		return nil, apperrors.NewInvalidStateError(
			"device-local conversations cannot dispatch to an AI provider")

	case SourceBackend:
		backendID, err := BackendID(id)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid conversation id")
		}
		return a.remote.SendMessage(ctx, backendID, content)
	}
	return nil, apperrors.NewValidationError("unknown conversation source")
}

// DeleteConversation routes the delete by source. Server records cannot
// be deleted while offline.
func (a *Arbiter) DeleteConversation(ctx context.Context, source Source, id string) error {
	switch source {
	case SourceLocal:
		return a.local.DeleteConversation(id)

	case SourceBackend:
		backendID, err := BackendID(id)
		if err != nil {
			return apperrors.NewValidationError("invalid conversation id")
		}
		return a.remote.DeleteConversation(ctx, backendID)
	}
	return apperrors.NewValidationError("unknown conversation source")
}
