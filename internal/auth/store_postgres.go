package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &PostgresUserStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresUserStore) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	admin BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) GetByUsername(username string) (User, error) {
	if strings.TrimSpace(username) == "" {
		return User{}, ErrUserNotFound
	}

	var u User
	const q = `SELECT id, username, password_hash, admin FROM users WHERE username = $1`
	if err := s.db.QueryRow(q, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Admin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// Insert relies on the unique constraint for atomicity: with two concurrent
// inserts of the same username, the database lets exactly one row through.
func (s *PostgresUserStore) Insert(user User) error {
	if user.ID == "" || user.Username == "" || user.PasswordHash == "" {
		return fmt.Errorf("id, username, and password hash are required")
	}

	const q = `
INSERT INTO users (id, username, password_hash, admin)
VALUES ($1, $2, $3, $4)
ON CONFLICT (username) DO NOTHING`
	res, err := s.db.Exec(q, user.ID, user.Username, user.PasswordHash, user.Admin)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user rows affected: %w", err)
	}
	if n == 0 {
		return ErrDuplicateUsername
	}
	return nil
}

func (s *PostgresUserStore) Put(user User) error {
	if user.Username == "" || user.PasswordHash == "" {
		return fmt.Errorf("username and password hash are required")
	}

	const q = `
UPDATE users
SET password_hash = $2, admin = $3, updated_at = NOW()
WHERE username = $1`
	res, err := s.db.Exec(q, user.Username, user.PasswordHash, user.Admin)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresUserStore) Delete(username string) error {
	if strings.TrimSpace(username) == "" {
		return ErrUserNotFound
	}

	const q = `DELETE FROM users WHERE username = $1`
	res, err := s.db.Exec(q, username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
