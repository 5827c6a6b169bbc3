package auth

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrDuplicateUsername = errors.New("username already exists")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrUserNotFound      = errors.New("user not found")
	// ErrStoreUnavailable marks user-store and session-store failures. It is
	// never retried here.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError carries field-level problems keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// InvalidCredentialsError is returned for both an unknown username and a
// wrong password.
type InvalidCredentialsError struct {
	AttemptsRemaining int
}

func (e InvalidCredentialsError) Error() string {
	return "invalid credentials"
}

type TooManyAttemptsError struct {
	RetryAfterSeconds int
}

func (e TooManyAttemptsError) Error() string {
	return "too many login attempts"
}
