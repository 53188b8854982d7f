package httpserver

import (
	"errors"
	"net/http"

	"gatekeepersvr/gatekeeper/internal/audit"
	"gatekeepersvr/gatekeeper/internal/auth"
)

// The directory is keyed by username, so that is what deletion targets.
// user_id is accepted as an alias for callers that kept the older field
// name.
type deleteUserRequest struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
}

func (r deleteUserRequest) target() string {
	if r.Username != "" {
		return r.Username
	}
	return r.UserID
}

func registerAdminHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/admin/users/delete", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleDeleteUser(w, r, deps)
	})
}

func handleDeleteUser(w http.ResponseWriter, r *http.Request, deps Deps) {
	ev := evidenceFrom(r)
	d := deps.Guard.Authorize(ev, auth.OpDeleteUser)
	if !d.Allowed {
		auditReq(deps.Audit, r, audit.Event{
			Actor:   d.Session.Username,
			Action:  "delete_user",
			Outcome: string(d.Reason),
		})
		denyAuthz(w, deps, d)
		return
	}

	var req deleteUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target := req.target()
	if target == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if err := deps.Auth.DeleteUser(target); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		deps.Log.Error("delete user failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	auditReq(deps.Audit, r, audit.Event{
		Actor:     d.Session.Username,
		Action:    "delete_user",
		Target:    target,
		Outcome:   "ok",
		SessionID: d.Session.ID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"deleted": target})
}
