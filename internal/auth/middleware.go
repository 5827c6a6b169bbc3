package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

// UserFromContext returns the user stored by RequireUser.
func UserFromContext(ctx context.Context) (UserProjection, bool) {
	user, ok := ctx.Value(contextKey{}).(UserProjection)
	return user, ok
}

// RequireUser resolves the caller from the session cookie, or from a Bearer
// access token when the cookie is absent or stale. Anonymous requests get 401.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.authenticate(r)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

// RequireAdmin is RequireUser plus role=admin.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return h.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		if user.Role != RoleAdmin {
			h.writeServiceError(w, r, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (h *Handler) authenticate(r *http.Request) (UserProjection, error) {
	if sessionID := sessionFromCookie(r); sessionID != "" {
		user, err := h.service.CurrentUser(r.Context(), sessionID)
		if err == nil || !errors.Is(err, ErrUnauthenticated) {
			return user, err
		}
	}

	if token, ok := bearerToken(r); ok {
		return h.service.UserForAccessToken(r.Context(), token)
	}

	return UserProjection{}, ErrUnauthenticated
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
