package auth

import "time"

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Admin        bool   `json:"admin"`
}

// Claims are server-issued facts about a session. They exist only inside
// the server-held Session record and are never serialized to the client.
type Claims struct {
	Admin bool
}

// Session binds an opaque token to an identity and its claims. The token is
// the only thing a client ever sees.
type Session struct {
	ID        string
	Token     string
	Username  string
	Claims    Claims
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionView is the client-safe projection of a Session: no token, no raw
// claim structure beyond what the caller is allowed to know about itself.
type SessionView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) View() SessionView {
	return SessionView{
		ID:        s.ID,
		Username:  s.Username,
		Admin:     s.Claims.Admin,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}
