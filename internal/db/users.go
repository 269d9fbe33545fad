package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUserExists is returned when signing up an email that is already taken.
var ErrUserExists = errors.New("user already exists")

// CreateUser stores a new user with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO NOTHING
	`, email, passwordHash, unixFromTime(now))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if n == 0 {
		return ErrUserExists
	}
	return nil
}

// PasswordHash returns the stored hash for email, or "" if the user is unknown.
func (s *Store) PasswordHash(ctx context.Context, email string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE email = ?`, email).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query user: %w", err)
	}
	return hash, nil
}
