package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const userColumns = "id, email, name, password_hash, created_at, updated_at"

// CreateUser inserts a new account. email must already be normalized.
func (s *Store) CreateUser(ctx context.Context, email string, name *string, passwordHash string) (*User, error) {
	now := s.now()
	user := &User{
		ID:           s.newID(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	insert := s.sb.Insert("users").
		Columns("id", "email", "name", "password_hash", "created_at", "updated_at").
		Values(user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	q := s.sb.Select(userColumns).From("users").Where(sq.Eq{"id": id})
	if err := s.getOne(ctx, s.db, &user, q); err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	q := s.sb.Select(userColumns).From("users").Where(sq.Eq{"email": email})
	if err := s.getOne(ctx, s.db, &user, q); err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// DeleteUser removes the account; todos and conversations go with it through
// ON DELETE CASCADE.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.exec(ctx, s.db, s.sb.Delete("users").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return affectedOrNotFound(res)
}
