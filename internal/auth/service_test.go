package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"gatekeepersvr/gatekeeper/internal/password"
)

func testHasher(t *testing.T) *password.Hasher {
	t.Helper()
	h, err := password.NewHasher(password.Params{
		MemoryKiB:   8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher() error: %v", err)
	}
	return h
}

func newTestService(t *testing.T, ttl time.Duration) (*Service, *InMemoryUserStore) {
	t.Helper()
	store := NewInMemoryUserStore()
	svc, err := NewService(store, testHasher(t), ServiceConfig{SessionTTL: ttl})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return svc, store
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _ := newTestService(t, 2*time.Minute)

	user, err := svc.Register("alice", "S3cr3t!pass")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected generated user id")
	}
	if user.Admin {
		t.Fatalf("registration must not grant the admin claim")
	}

	session, err := svc.Login("alice", "S3cr3t!pass")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if session.Token == "" || len(session.Token) != 64 {
		t.Fatalf("expected 32-byte hex token, got %q", session.Token)
	}
	if session.Claims.Admin {
		t.Fatalf("expected non-admin claims for a registered user")
	}

	if _, err := svc.Login("alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestLoginUnknownUserIsIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	_, err := svc.Login("nobody", "whatever-pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	cases := []struct {
		name     string
		username string
		secret   string
	}{
		{"empty username", "", "S3cr3t!pass"},
		{"blank username", "   ", "S3cr3t!pass"},
		{"long username", string(make([]byte, 65)), "S3cr3t!pass"},
		{"empty password", "bob", ""},
		{"oversized password", "bob", strings.Repeat("x", 257)},
	}
	for _, tc := range cases {
		if _, err := svc.Register(tc.username, tc.secret); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	if _, err := svc.Register("alice", "S3cr3t!pass"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if _, err := svc.Register("alice", "0therS3cret"); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	if _, err := svc.Resolve("never-issued"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRevokeInvalidatesToken(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	if _, err := svc.Register("alice", "S3cr3t!pass"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	session, err := svc.Login("alice", "S3cr3t!pass")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	if err := svc.Revoke(session.Token); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if _, err := svc.Resolve(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
	if err := svc.Revoke(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on second revoke, got %v", err)
	}
}

func TestResolveExpiredToken(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	fakeNow := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return fakeNow }

	if _, err := svc.Register("alice", "S3cr3t!pass"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	session, err := svc.Login("alice", "S3cr3t!pass")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	svc.nowFunc = func() time.Time { return fakeNow.Add(2 * time.Minute) }
	if _, err := svc.Resolve(session.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	// The expired session was deleted on resolve.
	if _, err := svc.Resolve(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after lazy deletion, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	fakeNow := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return fakeNow }

	if _, err := svc.Register("alice", "S3cr3t!pass"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	stale, err := svc.Login("alice", "S3cr3t!pass")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	svc.nowFunc = func() time.Time { return fakeNow.Add(90 * time.Second) }
	fresh, err := svc.Login("alice", "S3cr3t!pass")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	if removed := svc.SweepExpired(); removed != 1 {
		t.Fatalf("expected sweep to remove 1 session, removed %d", removed)
	}
	if _, err := svc.Resolve(stale.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected swept token to be invalid, got %v", err)
	}
	if _, err := svc.Resolve(fresh.Token); err != nil {
		t.Fatalf("expected fresh token to survive sweep, got %v", err)
	}
}

func TestDeleteUserRevokesSessions(t *testing.T) {
	svc, store := newTestService(t, time.Minute)

	if _, err := svc.Register("alice", "S3cr3t!pass"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	session, err := svc.Login("alice", "S3cr3t!pass")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	if err := svc.DeleteUser("alice"); err != nil {
		t.Fatalf("DeleteUser() error: %v", err)
	}
	if _, err := store.GetByUsername("alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user record to be gone, got %v", err)
	}
	if _, err := svc.Resolve(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected sessions of a deleted user to be revoked, got %v", err)
	}

	if err := svc.DeleteUser("alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for second delete, got %v", err)
	}
}

func TestTwoLoginsIssueDistinctTokens(t *testing.T) {
	svc, _ := newTestService(t, time.Minute)

	if _, err := svc.Register("alice", "S3cr3t!pass"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	first, err := svc.Login("alice", "S3cr3t!pass")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	second, err := svc.Login("alice", "S3cr3t!pass")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if first.Token == second.Token {
		t.Fatalf("expected distinct session tokens")
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct session ids")
	}
}
