package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultAccessTTL = 15 * time.Minute

var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessToken is the body returned by POST /api/token.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenIssuer signs and checks short-lived HS256 access tokens whose subject
// is the user id.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *TokenIssuer) Issue(userID int64) (AccessToken, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
		"typ": "access",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(t.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign jwt: %w", err)
	}

	return AccessToken{
		AccessToken: encoded,
		TokenType:   "Bearer",
		ExpiresIn:   int64(t.ttl.Seconds()),
	}, nil
}

// Parse returns the user id carried by a valid, unexpired access token.
func (t *TokenIssuer) Parse(raw string) (int64, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return 0, ErrInvalidAccessToken
	}
	if tokenType, _ := claims["typ"].(string); tokenType != "access" {
		return 0, ErrInvalidAccessToken
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return 0, ErrInvalidAccessToken
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidAccessToken
	}
	return userID, nil
}
