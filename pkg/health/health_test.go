package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"converso/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChecker() *Checker {
	return NewChecker(logger.New(logger.Config{Level: "error"}), time.Minute)
}

func TestHTTPHandlerReportsUptimeAndComponents(t *testing.T) {
	checker := newTestChecker()
	checker.RegisterDatabaseCheck(func() error { return nil })
	checker.RunChecks()

	rec := httptest.NewRecorder()
	checker.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Status     string                `json:"status"`
		Uptime     string                `json:"uptime"`
		Components map[string]*Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))

	assert.Equal(t, "ok", payload.Status)
	assert.NotEmpty(t, payload.Uptime)
	require.Contains(t, payload.Components, "database")
	assert.Equal(t, StatusUp, payload.Components["database"].Status)
}

func TestHTTPHandlerReturns503WhenDatabaseIsDown(t *testing.T) {
	checker := newTestChecker()
	checker.RegisterDatabaseCheck(func() error { return errors.New("connection refused") })
	checker.RunChecks()

	rec := httptest.NewRecorder()
	checker.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDegradedProviderDoesNotFailTheSystem(t *testing.T) {
	checker := newTestChecker()
	checker.RegisterProviderCheck("stub", time.Second, func(ctx context.Context) bool { return false })
	checker.RunChecks()

	assert.True(t, checker.IsSystemHealthy())
}
