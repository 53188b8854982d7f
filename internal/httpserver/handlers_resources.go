package httpserver

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"gatekeepersvr/gatekeeper/internal/audit"
	"gatekeepersvr/gatekeeper/internal/auth"
	"gatekeepersvr/gatekeeper/internal/files"
	"gatekeepersvr/gatekeeper/internal/netprobe"
)

func registerResourceHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/v1/files/download", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleDownload(w, r, deps)
	})
	mux.HandleFunc("/v1/net/ping", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handlePing(w, r, deps)
	})
}

func handleDownload(w http.ResponseWriter, r *http.Request, deps Deps) {
	ev := evidenceFrom(r)
	d := deps.Guard.Authorize(ev, auth.OpDownloadFile)
	if !d.Allowed {
		denyAuthz(w, deps, d)
		return
	}

	name := r.URL.Query().Get("file")
	if name == "" {
		writeError(w, http.StatusBadRequest, "file parameter is required")
		return
	}

	f, err := deps.Files.Open(name)
	if err != nil {
		switch {
		case errors.Is(err, files.ErrPathTraversal):
			if deps.Metrics != nil {
				deps.Metrics.Downloads.WithLabelValues("traversal").Inc()
			}
			auditReq(deps.Audit, r, audit.Event{
				Actor:     d.Session.Username,
				Action:    "download",
				Target:    name,
				Outcome:   "traversal",
				SessionID: d.Session.ID,
			})
			writeError(w, http.StatusForbidden, "access denied")
		case os.IsNotExist(err):
			if deps.Metrics != nil {
				deps.Metrics.Downloads.WithLabelValues("missing").Inc()
			}
			writeError(w, http.StatusNotFound, "file not found")
		default:
			deps.Log.Error("download failed", "file", name, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	defer f.Close()

	if deps.Metrics != nil {
		deps.Metrics.Downloads.WithLabelValues("ok").Inc()
	}
	auditReq(deps.Audit, r, audit.Event{
		Actor:     d.Session.Username,
		Action:    "download",
		Target:    name,
		Outcome:   "ok",
		SessionID: d.Session.ID,
	})

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(name)+`"`)
	if _, err := io.Copy(w, f); err != nil {
		deps.Log.Error("download interrupted", "file", name, "error", err)
	}
}

func handlePing(w http.ResponseWriter, r *http.Request, deps Deps) {
	ev := evidenceFrom(r)
	d := deps.Guard.Authorize(ev, auth.OpPingHost)
	if !d.Allowed {
		denyAuthz(w, deps, d)
		return
	}

	host := r.URL.Query().Get("host")
	if _, err := netprobe.ValidateHost(host); err != nil {
		if deps.Metrics != nil {
			deps.Metrics.Probes.WithLabelValues("invalid").Inc()
		}
		auditReq(deps.Audit, r, audit.Event{
			Actor:     d.Session.Username,
			Action:    "ping",
			Target:    host,
			Outcome:   "invalid",
			SessionID: d.Session.ID,
		})
		writeError(w, http.StatusBadRequest, "invalid host")
		return
	}

	result, err := deps.Pinger.Ping(r.Context(), host)
	if err != nil {
		deps.Log.Error("ping failed", "host", host, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	outcome := "unreachable"
	if result.Reachable {
		outcome = "ok"
	}
	if deps.Metrics != nil {
		deps.Metrics.Probes.WithLabelValues(outcome).Inc()
	}
	auditReq(deps.Audit, r, audit.Event{
		Actor:     d.Session.Username,
		Action:    "ping",
		Target:    host,
		Outcome:   outcome,
		SessionID: d.Session.ID,
	})
	writeJSON(w, http.StatusOK, result)
}
