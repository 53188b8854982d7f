package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileUserStore keeps the directory in memory and mirrors every mutation to
// a JSON state file. Restart persistence only; not a database.
type FileUserStore struct {
	path string

	mu    sync.RWMutex
	users map[string]User
}

// storedUser is the on-disk shape. The password hash must round-trip here
// even though User never serializes it to API clients.
type storedUser struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Admin        bool   `json:"admin"`
}

func NewFileUserStore(path string) (*FileUserStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("user state file path is required")
	}

	s := &FileUserStore{
		path:  path,
		users: make(map[string]User),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileUserStore) GetByUsername(username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *FileUserStore) Insert(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return ErrDuplicateUsername
	}
	s.users[user.Username] = user
	if err := s.persistLocked(); err != nil {
		delete(s.users, user.Username)
		return err
	}
	return nil
}

func (s *FileUserStore) Put(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[user.Username]
	if !ok {
		return ErrUserNotFound
	}
	s.users[user.Username] = user
	if err := s.persistLocked(); err != nil {
		s.users[user.Username] = prev
		return err
	}
	return nil
}

func (s *FileUserStore) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.users, username)
	if err := s.persistLocked(); err != nil {
		s.users[username] = prev
		return err
	}
	return nil
}

func (s *FileUserStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read user store file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	var decoded []storedUser
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode user store file: %w", err)
	}
	for _, u := range decoded {
		if strings.TrimSpace(u.Username) == "" {
			continue
		}
		s.users[u.Username] = User{
			ID:           u.ID,
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Admin:        u.Admin,
		}
	}
	return nil
}

func (s *FileUserStore) persistLocked() error {
	out := make([]storedUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, storedUser{
			ID:           u.ID,
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Admin:        u.Admin,
		})
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir user store dir: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write user store file: %w", err)
	}
	return nil
}
