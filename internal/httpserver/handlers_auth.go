package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"gatekeepersvr/gatekeeper/internal/audit"
	"gatekeepersvr/gatekeeper/internal/auth"
)

const maxAuthBodyBytes = 4 << 10

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func registerAuthHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleRegister(w, r, deps)
	})
	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleLogin(w, r, deps)
	})
	mux.HandleFunc("/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleLogout(w, r, deps)
	})
	mux.HandleFunc("/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleIntrospect(w, r, deps)
	})
}

func handleRegister(w http.ResponseWriter, r *http.Request, deps Deps) {
	ev := evidenceFrom(r)
	if d := deps.Guard.Authorize(ev, auth.OpRegister); !d.Allowed {
		denyAuthz(w, deps, d)
		return
	}

	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := deps.Auth.Register(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateUsername):
			if deps.Metrics != nil {
				deps.Metrics.Registrations.WithLabelValues("duplicate").Inc()
			}
			writeError(w, http.StatusConflict, "username already taken")
		case errors.Is(err, auth.ErrInvalidInput):
			if deps.Metrics != nil {
				deps.Metrics.Registrations.WithLabelValues("invalid").Inc()
			}
			writeError(w, http.StatusBadRequest, "invalid username or password")
		default:
			deps.Log.Error("register failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if deps.Metrics != nil {
		deps.Metrics.Registrations.WithLabelValues("ok").Inc()
	}
	auditReq(deps.Audit, r, audit.Event{
		Actor:   user.Username,
		Action:  "register",
		Target:  user.Username,
		Outcome: "ok",
	})
	writeJSON(w, http.StatusOK, user)
}

func handleLogin(w http.ResponseWriter, r *http.Request, deps Deps) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev := evidenceFrom(r)
	ev.Username = req.Username
	if d := deps.Guard.Authorize(ev, auth.OpLogin); !d.Allowed {
		auditReq(deps.Audit, r, audit.Event{
			Actor:   req.Username,
			Action:  "login",
			Outcome: string(d.Reason),
		})
		denyAuthz(w, deps, d)
		return
	}

	session, err := deps.Auth.Login(req.Username, req.Password)
	if err != nil {
		// One answer for a wrong password and an unknown username.
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrInvalidInput) {
			deps.Guard.RecordLoginFailure(ev)
			if deps.Metrics != nil {
				deps.Metrics.Logins.WithLabelValues("denied").Inc()
			}
			auditReq(deps.Audit, r, audit.Event{
				Actor:   req.Username,
				Action:  "login",
				Outcome: "denied",
			})
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		deps.Log.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	deps.Guard.ClearLoginFailures(ev)
	if deps.Metrics != nil {
		deps.Metrics.Logins.WithLabelValues("ok").Inc()
	}
	auditReq(deps.Audit, r, audit.Event{
		Actor:     session.Username,
		Action:    "login",
		Outcome:   "ok",
		SessionID: session.ID,
	})

	issueCookie(w, session, deps.CookieSecure)
	writeJSON(w, http.StatusOK, struct {
		Token   string           `json:"token"`
		Session auth.SessionView `json:"session"`
	}{Token: session.Token, Session: session.View()})
}

func handleLogout(w http.ResponseWriter, r *http.Request, deps Deps) {
	ev := evidenceFrom(r)
	d := deps.Guard.Authorize(ev, auth.OpLogout)
	if !d.Allowed {
		denyAuthz(w, deps, d)
		return
	}

	if err := deps.Auth.Revoke(ev.Token); err != nil && !errors.Is(err, auth.ErrInvalidToken) {
		deps.Log.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	auditReq(deps.Audit, r, audit.Event{
		Actor:     d.Session.Username,
		Action:    "logout",
		Outcome:   "ok",
		SessionID: d.Session.ID,
	})
	clearCookie(w, deps.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

func handleIntrospect(w http.ResponseWriter, r *http.Request, deps Deps) {
	ev := evidenceFrom(r)
	d := deps.Guard.Authorize(ev, auth.OpIntrospect)
	if !d.Allowed {
		denyAuthz(w, deps, d)
		return
	}
	writeJSON(w, http.StatusOK, d.Session.View())
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxAuthBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
