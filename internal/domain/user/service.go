package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack/internal/platform/auth"
)

// defaultAge is used when a registration does not supply an age.
const defaultAge = 25

type Service struct {
	users  Repository
	tokens *auth.TokenManager
	log    zerolog.Logger
}

func NewService(users Repository, tokens *auth.TokenManager, log zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, log: log}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Age      *int
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (string, *User, error) {
	if in.Name == "" {
		return "", nil, fmt.Errorf("name is required")
	}
	if in.Email == "" {
		return "", nil, fmt.Errorf("email is required")
	}
	if in.Password == "" {
		return "", nil, fmt.Errorf("password is required")
	}

	age := defaultAge
	if in.Age != nil && *in.Age > 0 {
		age = *in.Age
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return "", nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &User{
		Name:         in.Name,
		Email:        in.Email,
		Age:          age,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return "", nil, err
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return "", nil, fmt.Errorf("issuing token: %w", err)
	}
	return token, u, nil
}

// Login authenticates an email/password pair. Unknown email and wrong
// password both map to auth.ErrInvalidCredentials so responses do not leak
// which accounts exist; the difference is visible only in logs.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	if email == "" || password == "" {
		return "", nil, fmt.Errorf("email and password are required")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Info().Str("email", email).Msg("login for unknown email")
			return "", nil, auth.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		s.log.Info().Str("email", email).Msg("login with wrong password")
		return "", nil, auth.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return "", nil, fmt.Errorf("issuing token: %w", err)
	}
	return token, u, nil
}

func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}
