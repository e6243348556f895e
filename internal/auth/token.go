package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature, method or time checks
	ErrInvalidToken = errors.New("invalid token")

	// ErrWeakSecret is returned when the signing secret is too short
	ErrWeakSecret = errors.New("signing secret is too short")
)

// MinSecretLength is the shortest HS256 secret accepted, in bytes
const MinSecretLength = 32

// Claims are the claims carried by tokens issued at sign-in
type Claims struct {
	ID uuid.UUID `json:"id"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 tokens with a shared secret.
type Signer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewSigner creates a Signer. Tokens it issues expire after lifetime.
func NewSigner(secret []byte, lifetime time.Duration) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(secret))
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive, got %s", lifetime)
	}
	return &Signer{secret: secret, lifetime: lifetime, now: time.Now}, nil
}

// Issue signs a token for the user id
func (s *Signer) Issue(id uuid.UUID) (string, error) {
	now := s.now()
	claims := Claims{
		ID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken implements TokenValidator. Only HS256 tokens with an
// expiry and a user id are accepted.
func (s *Signer) ValidateToken(_ context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}
