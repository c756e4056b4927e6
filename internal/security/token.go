package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	// TokenKindAccess marks short-lived request-authorizing tokens.
	TokenKindAccess TokenKind = "access"
	// TokenKindRefresh marks tokens used solely to mint new access tokens.
	TokenKindRefresh TokenKind = "refresh"
)

// Token verification failures, classified for distinct user-facing messages.
var (
	// ErrTokenMissing means no token was presented at all.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenMalformed means the token could not be decoded or verified.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired means the signature is valid but the token is past expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenWrongKind means an access token was presented where a refresh
	// token was expected, or the other way around.
	ErrTokenWrongKind = errors.New("token kind mismatch")
)

// TokenClaims are the JWT claims carried by issued tokens.
type TokenClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256-signed access and refresh tokens.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFn      func() time.Time
}

// NewTokenManager constructs a TokenManager. A nil nowFn defaults to
// time.Now.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration, nowFn func() time.Time) *TokenManager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowFn:      nowFn,
	}
}

// CreateAccessToken issues a signed access token for the subject.
func (m *TokenManager) CreateAccessToken(subject string) (string, error) {
	return m.createToken(subject, TokenKindAccess, m.accessTTL)
}

// CreateRefreshToken issues a signed refresh token for the subject.
func (m *TokenManager) CreateRefreshToken(subject string) (string, error) {
	return m.createToken(subject, TokenKindRefresh, m.refreshTTL)
}

func (m *TokenManager) createToken(subject string, kind TokenKind, ttl time.Duration) (string, error) {
	now := m.nowFn().UTC()
	claims := TokenClaims{
		Kind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("security: sign %s token: %w", kind, err)
	}
	return signed, nil
}

// ParseToken verifies a raw token of the expected kind and returns its
// subject. Failures are classified as ErrTokenMissing, ErrTokenExpired,
// ErrTokenWrongKind or ErrTokenMalformed.
func (m *TokenManager) ParseToken(raw string, kind TokenKind) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrTokenMissing
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.nowFn),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenMalformed
	}

	if TokenKind(claims.Kind) != kind {
		return "", ErrTokenWrongKind
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrTokenMalformed
	}
	return subject, nil
}
