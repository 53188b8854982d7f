package auth

// SessionStore mirrors the in-memory session table for restart persistence.
// The Service remains the single authority; the store is write-through and
// is only read back once at startup.
type SessionStore interface {
	Load() (map[string]Session, error)
	Save(sessions map[string]Session) error
}
