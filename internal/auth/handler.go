package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pharmacy-admin/internal/observability"
)

const (
	SessionCookieName = "pa_session"
	maxJSONBodyBytes  = 1 << 20
)

// CookieConfig controls the attributes of the session cookie.
type CookieConfig struct {
	Secure    bool
	CrossSite bool
	TTL       time.Duration
}

type Handler struct {
	service    *Service
	cookies    CookieConfig
	trustProxy bool
	logger     *observability.Logger
}

func NewHandler(service *Service, cookies CookieConfig, trustProxy bool, logger *observability.Logger) *Handler {
	if cookies.TTL <= 0 {
		cookies.TTL = defaultSessionTTL
	}
	return &Handler{
		service:    service,
		cookies:    cookies,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

type authResponse struct {
	Message string     `json:"message"`
	User    PublicUser `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body RegisterInput
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeServiceError(w, r, ValidationError{Fields: map[string]string{"body": "must be a JSON object"}})
		return
	}

	user, sessionID, err := h.service.Register(r.Context(), body)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.issueSessionCookie(w, sessionID)
	writeJSON(w, http.StatusOK, authResponse{Message: "Registration successful", User: user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body LoginInput
	if err := decodeJSON(w, r, &body); err != nil {
		// The lockout check still runs first; an empty input then fails
		// validation.
		body = LoginInput{}
	}

	user, sessionID, err := h.service.Login(r.Context(), body, ClientKey(r, h.trustProxy))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.issueSessionCookie(w, sessionID)
	writeJSON(w, http.StatusOK, authResponse{Message: "Login successful", User: user})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	username, err := h.service.Logout(r.Context(), sessionFromCookie(r))
	if err != nil {
		h.logger.Error("logout_failed", map[string]any{"error": err.Error()})
		observability.CaptureError(err)
		writeError(w, http.StatusInternalServerError, "Logout failed")
		return
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logout successful", "username": username})
}

// CurrentUser expects RequireUser in front of it.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListUsers expects RequireAdmin in front of it.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// IssueToken only accepts the session cookie, so a token cannot renew itself.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.IssueAccessToken(r.Context(), sessionFromCookie(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) issueSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(h.cookies.TTL.Seconds()),
		Expires:  time.Now().Add(h.cookies.TTL),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.sameSite(),
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.sameSite(),
	})
}

// sameSite returns None only when browsers will accept it, which requires
// Secure.
func (h *Handler) sameSite() http.SameSite {
	if h.cookies.CrossSite && h.cookies.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func sessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr ValidationError
		invalidErr    InvalidCredentialsError
		lockedErr     TooManyAttemptsError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Invalid input",
			"errors":  validationErr.Fields,
		})
	case errors.Is(err, ErrDuplicateUsername):
		writeError(w, http.StatusBadRequest, "Username already exists")
	case errors.As(err, &invalidErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message":           "Invalid username or password",
			"attemptsRemaining": invalidErr.AttemptsRemaining,
		})
	case errors.As(err, &lockedErr):
		w.Header().Set("Retry-After", strconv.Itoa(lockedErr.RetryAfterSeconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"message":    "Too many login attempts. Please try again later.",
			"retryAfter": lockedErr.RetryAfterSeconds,
		})
	case errors.Is(err, ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, ErrAccessTokensDisabled):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		h.logger.Error("auth_request_failed", map[string]any{
			"error":  err.Error(),
			"method": r.Method,
			"path":   r.URL.Path,
		})
		observability.CaptureError(err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
