package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingVerifierSecret = errors.New("token verifier: signing secret required")
	ErrMissingToken          = errors.New("token verifier: token required")
	ErrInvalidToken          = errors.New("token verifier: invalid token")
	ErrExpiredToken          = errors.New("token verifier: token expired")
	ErrMissingUserID         = errors.New("token verifier: user id required")
)

// Claims mirrors the JWT payload issued by the auth service at login.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifierConfig describes how to validate auth-service-issued JWTs.
type TokenVerifierConfig struct {
	SigningSecret []byte
	Clock         func() time.Time
}

// TokenVerifier validates HS256 JWTs carried on the websocket handshake.
type TokenVerifier struct {
	signingSecret []byte
	clock         func() time.Time
}

// NewTokenVerifier constructs a verifier with the provided configuration.
func NewTokenVerifier(cfg TokenVerifierConfig) (*TokenVerifier, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingVerifierSecret
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenVerifier{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		clock:         clock,
	}, nil
}

// Verify validates the supplied JWT string and returns the embedded identity.
func (v *TokenVerifier) Verify(tokenString string) (Claims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, ErrMissingUserID
	}
	if strings.TrimSpace(claims.Role) == "" {
		claims.Role = "user"
	}
	return *claims, nil
}
