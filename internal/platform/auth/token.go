package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when a token fails parsing, signature
// verification, or expiry checks.
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the authenticated user's identity inside a signed token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// TokenManager issues and verifies HMAC-signed bearer tokens.
type TokenManager struct {
	secret   []byte
	duration time.Duration
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), duration: duration}
}

// Issue creates a signed token for the given user.
func (m *TokenManager) Issue(userID uuid.UUID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, returning the user id it was
// issued for.
func (m *TokenManager) Verify(tokenStr string) (uuid.UUID, *Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return uuid.Nil, nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, ErrInvalidToken
	}
	return userID, claims, nil
}
