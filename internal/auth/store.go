package auth

import (
	"errors"
	"sync"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already exists")
)

// UserStore is pure storage keyed by case-sensitive username. No hashing
// and no authorization decisions happen here.
type UserStore interface {
	GetByUsername(username string) (User, error)
	// Insert adds a new record; with concurrent inserts of the same
	// username exactly one wins and the rest observe ErrDuplicateUsername.
	Insert(user User) error
	// Put overwrites an existing record (reserved for password changes).
	Put(user User) error
	Delete(username string) error
}

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[string]User)}
}

func (s *InMemoryUserStore) GetByUsername(username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) Insert(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return ErrDuplicateUsername
	}
	s.users[user.Username] = user
	return nil
}

func (s *InMemoryUserStore) Put(user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; !ok {
		return ErrUserNotFound
	}
	s.users[user.Username] = user
	return nil
}

func (s *InMemoryUserStore) Delete(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, username)
	return nil
}
