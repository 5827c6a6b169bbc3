package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-admin/internal/auth"
	"pharmacy-admin/internal/observability"
)

type stubPruner struct {
	mu     sync.Mutex
	calls  int
	result auth.PruneResult
	err    error
}

func (s *stubPruner) PruneExpired(context.Context) (auth.PruneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

func (s *stubPruner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func serve(h *CleanupHandler, method, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/internal/maintenance/cleanup", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestCleanupHandler_DisabledWithoutSecret(t *testing.T) {
	pruner := &stubPruner{}
	h := NewCleanupHandler(pruner, observability.NewLogger("panic"), "  ")

	rec := serve(h, http.MethodPost, "Bearer anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, pruner.calls)
}

func TestCleanupHandler_RequiresSecret(t *testing.T) {
	pruner := &stubPruner{}
	h := NewCleanupHandler(pruner, observability.NewLogger("panic"), "cron-secret")

	for _, header := range []string{"", "Bearer wrong", "Basic cron-secret", "cron-secret"} {
		rec := serve(h, http.MethodGet, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
	assert.Zero(t, pruner.calls)

	rec := serve(h, http.MethodDelete, "Bearer cron-secret")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCleanupHandler_Prunes(t *testing.T) {
	pruner := &stubPruner{result: auth.PruneResult{ExpiredSessions: 3, LoginCounters: 2}}
	h := NewCleanupHandler(pruner, observability.NewLogger("panic"), "cron-secret")

	rec := serve(h, http.MethodPost, "Bearer cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, pruner.calls)

	var body struct {
		Status string           `json:"status"`
		Result auth.PruneResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, pruner.result, body.Result)
}

func TestCleanupHandler_Failure(t *testing.T) {
	pruner := &stubPruner{err: errors.New("redis down")}
	h := NewCleanupHandler(pruner, observability.NewLogger("panic"), "cron-secret")

	rec := serve(h, http.MethodGet, "Bearer cron-secret")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
