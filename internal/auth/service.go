package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"gatekeepersvr/gatekeeper/internal/password"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidInput       = errors.New("invalid input")
)

const (
	maxUsernameLength = 64
	maxPasswordLength = 256

	// 32 bytes from crypto/rand, well past the 128-bit floor for
	// unguessable tokens.
	tokenBytes = 32
)

// Service is the credential and session authority. It owns the session
// table outright: sessions are issued here, resolved here, and revoked
// here, with an absolute lifetime (no inactivity sliding window).
type Service struct {
	users        UserStore
	hasher       *password.Hasher
	ttl          time.Duration
	nowFunc      func() time.Time
	sessionStore SessionStore

	// dummyHash absorbs verification work for unknown usernames so login
	// latency does not reveal whether a username exists.
	dummyHash string

	sessMu   sync.Mutex
	sessions map[string]Session
}

type ServiceConfig struct {
	SessionTTL   time.Duration
	SessionStore SessionStore
}

func NewService(userStore UserStore, hasher *password.Hasher, cfg ServiceConfig) (*Service, error) {
	if userStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("session TTL must be > 0")
	}

	decoy := make([]byte, tokenBytes)
	if _, err := rand.Read(decoy); err != nil {
		return nil, fmt.Errorf("generate decoy secret: %w", err)
	}
	dummyHash, err := hasher.Hash(hex.EncodeToString(decoy))
	if err != nil {
		return nil, fmt.Errorf("hash decoy secret: %w", err)
	}

	return &Service{
		users:        userStore,
		hasher:       hasher,
		ttl:          cfg.SessionTTL,
		nowFunc:      time.Now,
		sessionStore: cfg.SessionStore,
		dummyHash:    dummyHash,
		sessions:     make(map[string]Session),
	}, nil
}

// Register creates a credential record for a new user. The caller receives
// ErrDuplicateUsername untouched so the boundary can map it to a conflict.
func (s *Service) Register(username, secret string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLength {
		return User{}, fmt.Errorf("%w: username must be 1..%d bytes", ErrInvalidInput, maxUsernameLength)
	}
	if secret == "" || len(secret) > maxPasswordLength {
		return User{}, fmt.Errorf("%w: password must be 1..%d bytes", ErrInvalidInput, maxPasswordLength)
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		if errors.Is(err, password.ErrInvalidInput) {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           ulid.Make().String(),
		Username:     username,
		PasswordHash: hash,
		Admin:        false,
	}
	if err := s.users.Insert(user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Login verifies the credentials and issues a session on success. All
// failure modes collapse into ErrInvalidCredentials; an unknown username
// still pays for one hash verification so the two cases are not
// distinguishable by timing.
func (s *Service) Login(username, secret string) (Session, error) {
	u, err := s.users.GetByUsername(username)
	if err != nil {
		_, _ = s.hasher.Verify(secret, s.dummyHash)
		return Session{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(secret, u.PasswordHash)
	if err != nil || !ok {
		return Session{}, ErrInvalidCredentials
	}

	return s.issue(u.Username, Claims{Admin: u.Admin})
}

func (s *Service) issue(username string, claims Claims) (Session, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}

	now := s.nowFunc()
	session := Session{
		ID:        uuid.NewString(),
		Token:     hex.EncodeToString(raw),
		Username:  username,
		Claims:    claims,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.sessMu.Lock()
	s.sessions[session.Token] = session
	if err := s.persistLocked(); err != nil {
		delete(s.sessions, session.Token)
		s.sessMu.Unlock()
		return Session{}, err
	}
	s.sessMu.Unlock()

	return session, nil
}

// Resolve maps a token to its live session. Expired sessions are removed
// on sight and reported as expired, not merely invalid.
func (s *Service) Resolve(token string) (Session, error) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrInvalidToken
	}
	if s.nowFunc().After(session.ExpiresAt) {
		delete(s.sessions, token)
		_ = s.persistLocked()
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

func (s *Service) Revoke(token string) error {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return ErrInvalidToken
	}
	delete(s.sessions, token)
	return s.persistLocked()
}

// DeleteUser removes the directory record and revokes every live session
// belonging to that user.
func (s *Service) DeleteUser(username string) error {
	if err := s.users.Delete(username); err != nil {
		return err
	}

	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	dirty := false
	for token, sess := range s.sessions {
		if sess.Username == username {
			delete(s.sessions, token)
			dirty = true
		}
	}
	if dirty {
		return s.persistLocked()
	}
	return nil
}

// SweepExpired drops every expired session and reports how many were
// removed. It shares the session mutex with Resolve and Revoke, so the
// periodic sweep cannot race them.
func (s *Service) SweepExpired() int {
	now := s.nowFunc()

	s.sessMu.Lock()
	defer s.sessMu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	if removed > 0 {
		_ = s.persistLocked()
	}
	return removed
}

// LoadSessionState restores the session table from the configured store.
// Without a store the service starts empty, which is the documented
// behavior for an in-memory deployment.
func (s *Service) LoadSessionState() error {
	if s.sessionStore == nil {
		return nil
	}
	state, err := s.sessionStore.Load()
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}
	s.sessMu.Lock()
	s.sessions = state
	s.sessMu.Unlock()
	return nil
}

func (s *Service) persistLocked() error {
	if s.sessionStore == nil {
		return nil
	}
	if err := s.sessionStore.Save(s.sessions); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}
