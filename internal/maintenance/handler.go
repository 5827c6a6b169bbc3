package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"pharmacy-admin/internal/auth"
	"pharmacy-admin/internal/observability"
)

// Pruner drops expired auth state.
type Pruner interface {
	PruneExpired(ctx context.Context) (auth.PruneResult, error)
}

// CleanupHandler serves the cron-triggered cleanup endpoint. It is disabled
// (404) when no cron secret is configured.
type CleanupHandler struct {
	pruner     Pruner
	logger     *observability.Logger
	cronSecret string
}

func NewCleanupHandler(pruner Pruner, logger *observability.Logger, cronSecret string) *CleanupHandler {
	return &CleanupHandler{
		pruner:     pruner,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}

	result, err := h.pruner.PruneExpired(r.Context())
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		observability.CaptureError(err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Cleanup failed"})
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"expired_sessions": result.ExpiredSessions,
		"login_counters":   result.LoginCounters,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
