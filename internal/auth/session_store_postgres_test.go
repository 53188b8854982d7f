package auth

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresSessionStoreLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewPostgresSessionStore(db)
	if err != nil {
		t.Fatalf("NewPostgresSessionStore() error: %v", err)
	}

	created := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"token", "session_id", "username", "admin", "created_at", "expires_at"}).
		AddRow("tok-1", "s-1", "alice", false, created, created.Add(30*time.Minute)).
		AddRow("tok-2", "s-2", "root", true, created, created.Add(30*time.Minute))
	mock.ExpectQuery("SELECT token, session_id, username, admin, created_at, expires_at").
		WillReturnRows(rows)

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(state) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(state))
	}
	if !state["tok-2"].Claims.Admin {
		t.Fatalf("expected admin claim to round-trip, got %+v", state["tok-2"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPostgresSessionStoreSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewPostgresSessionStore(db)
	if err != nil {
		t.Fatalf("NewPostgresSessionStore() error: %v", err)
	}

	created := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	session := Session{
		ID:        "s-1",
		Token:     "tok-1",
		Username:  "alice",
		Claims:    Claims{Admin: false},
		CreatedAt: created,
		ExpiresAt: created.Add(30 * time.Minute),
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("tok-1", "s-1", "alice", false, created, created.Add(30*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.Save(map[string]Session{"tok-1": session}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}
