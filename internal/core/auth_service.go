package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"gwi.com/todo-assistant/internal/auth"
	"gwi.com/todo-assistant/internal/store"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *store.User `json:"user"`
}

type AuthService struct {
	store  *store.Store
	tokens *auth.JWTManager
	logger *slog.Logger
}

func NewAuthService(s *store.Store, tokens *auth.JWTManager, logger *slog.Logger) *AuthService {
	return &AuthService{store: s, tokens: tokens, logger: logger}
}

func (s *AuthService) Register(ctx context.Context, email, password string, name *string) (*AuthResult, error) {
	email = auth.NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, NewValidationError("a valid email address is required")
	}
	if len(password) < auth.MinPasswordLength {
		return nil, NewValidationError("password must be at least %d characters", auth.MinPasswordLength)
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, NewValidationError("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			name = nil
		} else {
			name = &trimmed
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, name, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, NewConflictError("an account with this email already exists")
		}
		return nil, err
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID))

	return s.issue(user)
}

// Login fails with the same Unauthorized error for unknown emails and wrong
// passwords.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.store.GetUserByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewUnauthorizedError(err)
		}
		return nil, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, NewUnauthorizedError(errors.New("password mismatch"))
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *store.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate resolves a bearer token to its user. Tokens of deleted
// accounts are rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*store.User, error) {
	userID, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, NewUnauthorizedError(err)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewUnauthorizedError(err)
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFoundError("user")
		}
		return nil, err
	}
	return user, nil
}

// DeleteAccount removes the user together with all of their todos and
// conversations.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewNotFoundError("user")
		}
		return err
	}
	s.logger.Info("user deleted", slog.String("user_id", userID))
	return nil
}
