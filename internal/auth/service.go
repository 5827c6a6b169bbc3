package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy-admin/internal/observability"
)

var ErrAccessTokensDisabled = errors.New("access tokens are not configured")

// errBadCredentials is the single outcome for an unknown username and a wrong
// password.
var errBadCredentials = errors.New("bad credentials")

// Service is the auth controller: registration, login, logout and
// current-user resolution.
type Service struct {
	users    UserStore
	sessions SessionStore
	hasher   *Hasher
	throttle *LoginThrottle
	tokens   *TokenIssuer
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewService(users UserStore, sessions SessionStore, hasher *Hasher, throttle *LoginThrottle, logger *observability.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		throttle: throttle,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithMetrics(metrics *observability.Metrics) *Service {
	s.metrics = metrics
	return s
}

// WithAccessTokens enables POST /api/token and Bearer authentication.
func (s *Service) WithAccessTokens(tokens *TokenIssuer) *Service {
	s.tokens = tokens
	return s
}

// Register creates a staff account and opens a session for it.
func (s *Service) Register(ctx context.Context, input RegisterInput) (PublicUser, string, error) {
	reg, err := validateRegister(input)
	if err != nil {
		return PublicUser{}, "", err
	}

	_, err = s.users.FindByUsername(ctx, reg.username)
	switch {
	case err == nil:
		return PublicUser{}, "", ErrDuplicateUsername
	case !errors.Is(err, ErrUserNotFound):
		return PublicUser{}, "", err
	}

	hash, err := s.hasher.Hash(ctx, reg.password)
	if err != nil {
		return PublicUser{}, "", fmt.Errorf("hash password: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return PublicUser{}, "", err
	}

	user, err := s.users.Insert(ctx, NewUser{
		Username:     reg.username,
		PasswordHash: hash,
		Role:         RoleStaff,
		Status:       StatusActive,
		Phone:        reg.phone,
	})
	if err != nil {
		return PublicUser{}, "", err
	}
	s.metrics.Registration()

	sessionID, err := s.openSession(ctx, user.ID)
	if err != nil {
		return PublicUser{}, "", err
	}

	s.logger.Info("user_registered", map[string]any{"user_id": user.ID, "username": user.Username})
	return user.public(), sessionID, nil
}

// Login verifies credentials for clientKey and opens a session. A locked
// client is rejected before any lookup or hashing, and so is a client whose
// in-flight attempts already cover its remaining failures.
func (s *Service) Login(ctx context.Context, input LoginInput, clientKey string) (PublicUser, string, error) {
	if locked, retryAfter := s.throttle.IsLocked(clientKey); locked {
		s.metrics.LoginAttempt("locked")
		return PublicUser{}, "", TooManyAttemptsError{RetryAfterSeconds: retryAfter}
	}

	creds, err := validateLogin(input)
	if err != nil {
		s.metrics.LoginAttempt("invalid_input")
		return PublicUser{}, "", err
	}

	if ok, retryAfter := s.throttle.Reserve(clientKey); !ok {
		s.metrics.LoginAttempt("locked")
		return PublicUser{}, "", TooManyAttemptsError{RetryAfterSeconds: retryAfter}
	}

	user, err := s.verifyCredentials(ctx, creds.Username, creds.Password)
	if err != nil {
		if !errors.Is(err, errBadCredentials) {
			s.throttle.Release(clientKey)
			s.metrics.LoginAttempt("error")
			return PublicUser{}, "", err
		}

		remaining, locked, retryAfter := s.throttle.RecordFailure(clientKey)
		if locked {
			s.metrics.LoginAttempt("locked")
			s.metrics.Lockout()
			s.logger.Warn("login_locked", map[string]any{"client": clientKey, "retry_after": retryAfter})
			return PublicUser{}, "", TooManyAttemptsError{RetryAfterSeconds: retryAfter}
		}
		s.metrics.LoginAttempt("invalid")
		return PublicUser{}, "", InvalidCredentialsError{AttemptsRemaining: remaining}
	}

	s.throttle.RecordSuccess(clientKey)

	sessionID, err := s.openSession(ctx, user.ID)
	if err != nil {
		s.metrics.LoginAttempt("error")
		return PublicUser{}, "", err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		_ = s.sessions.Destroy(context.WithoutCancel(ctx), sessionID)
		s.metrics.LoginAttempt("error")
		return PublicUser{}, "", err
	}

	s.metrics.LoginAttempt("success")
	s.logger.Info("login_succeeded", map[string]any{"user_id": user.ID, "client": clientKey})
	return user.public(), sessionID, nil
}

// verifyCredentials returns errBadCredentials for both an unknown username
// and a wrong password. Store failures and cancellation are returned as-is
// and must not count against the client.
func (s *Service) verifyCredentials(ctx context.Context, username, password string) (UserRecord, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, errBadCredentials
		}
		return UserRecord{}, err
	}

	if !s.hasher.Verify(ctx, password, user.PasswordHash) {
		if err := ctx.Err(); err != nil {
			return UserRecord{}, err
		}
		return UserRecord{}, errBadCredentials
	}

	return user, nil
}

// Logout ends sessionID and returns the username it belonged to, if known.
// Unknown and empty ids succeed.
func (s *Service) Logout(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", nil
	}

	var username string
	userID, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		s.logger.Warn("logout_session_lookup_failed", map[string]any{"error": err.Error()})
	}
	if ok {
		if user, err := s.users.FindByID(ctx, userID); err == nil {
			username = user.Username
		}
	}

	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if ok {
		s.metrics.SessionsEnded("logout", 1)
	}

	return username, nil
}

// CurrentUser re-reads the user behind sessionID. A session whose user no
// longer exists is destroyed.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (UserProjection, error) {
	if sessionID == "" {
		return UserProjection{}, ErrUnauthenticated
	}

	userID, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return UserProjection{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !ok {
		return UserProjection{}, ErrUnauthenticated
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = s.sessions.Destroy(ctx, sessionID)
			s.metrics.SessionsEnded("orphaned", 1)
			return UserProjection{}, ErrUnauthenticated
		}
		return UserProjection{}, err
	}

	return user.projection(), nil
}

// UserForAccessToken resolves a Bearer token to the current user record.
func (s *Service) UserForAccessToken(ctx context.Context, raw string) (UserProjection, error) {
	if s.tokens == nil {
		return UserProjection{}, ErrUnauthenticated
	}

	userID, err := s.tokens.Parse(raw)
	if err != nil {
		return UserProjection{}, ErrUnauthenticated
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserProjection{}, ErrUnauthenticated
		}
		return UserProjection{}, err
	}

	return user.projection(), nil
}

// IssueAccessToken exchanges an active session for a short-lived token.
func (s *Service) IssueAccessToken(ctx context.Context, sessionID string) (AccessToken, error) {
	if s.tokens == nil {
		return AccessToken{}, ErrAccessTokensDisabled
	}

	user, err := s.CurrentUser(ctx, sessionID)
	if err != nil {
		return AccessToken{}, err
	}

	return s.tokens.Issue(user.ID)
}

func (s *Service) ListUsers(ctx context.Context) ([]UserListItem, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]UserListItem, 0, len(users))
	for _, user := range users {
		items = append(items, user.listItem())
	}
	return items, nil
}

// PruneResult reports what a maintenance pass removed.
type PruneResult struct {
	ExpiredSessions int `json:"expired_sessions"`
	LoginCounters   int `json:"login_counters"`
}

func (s *Service) PruneExpired(ctx context.Context) (PruneResult, error) {
	sessions, err := s.sessions.Prune(ctx)
	if err != nil {
		return PruneResult{}, fmt.Errorf("prune sessions: %w", err)
	}
	s.metrics.SessionsEnded("expired", sessions)

	return PruneResult{
		ExpiredSessions: sessions,
		LoginCounters:   s.throttle.Prune(),
	}, nil
}

// BootstrapAdmin makes sure an admin account exists for the configured
// credentials. Both values empty means nothing to do.
func (s *Service) BootstrapAdmin(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)

	if username == "" && password == "" {
		return nil
	}
	if username == "" || password == "" {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("ADMIN_USERNAME %q is not a valid username", username)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	inserted, err := s.users.EnsureAdmin(ctx, username, hash)
	if err != nil {
		return err
	}

	s.logger.Info("admin_bootstrapped", map[string]any{"username": username, "created": inserted})
	return nil
}

func (s *Service) openSession(ctx context.Context, userID int64) (string, error) {
	sessionID, err := s.sessions.Create(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	s.metrics.SessionCreated()
	return sessionID, nil
}
