package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"gatekeepersvr/gatekeeper/internal/audit"
	"gatekeepersvr/gatekeeper/internal/auth"
	"gatekeepersvr/gatekeeper/internal/config"
	"gatekeepersvr/gatekeeper/internal/netprobe"
	"gatekeepersvr/gatekeeper/internal/observability"
)

const sessionCookieName = "gatekeeper_session"

type AuthService interface {
	Register(username, secret string) (auth.User, error)
	Login(username, secret string) (auth.Session, error)
	Revoke(token string) error
	DeleteUser(username string) error
}

// Authorizer is the single decision point every handler consults before a
// side effect or resource read.
type Authorizer interface {
	Authorize(ev auth.Evidence, op auth.Operation) auth.Decision
	RecordLoginFailure(ev auth.Evidence)
	ClearLoginFailures(ev auth.Evidence)
}

type FileRoot interface {
	Open(name string) (*os.File, error)
}

type AuditLogger interface {
	Log(e audit.Event) error
}

type Deps struct {
	Auth         AuthService
	Guard        Authorizer
	Files        FileRoot
	Pinger       netprobe.Pinger
	Audit        AuditLogger
	Metrics      *observability.Metrics
	Log          *slog.Logger
	CookieSecure bool
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	handler := NewHandler(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      loggingMiddleware(deps.Log, handler),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.HandleFunc("/v1/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "gatekeeper-api",
			"version": "0.1.0",
		})
	})
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}

	registerAuthHandlers(mux, deps)
	registerAdminHandlers(mux, deps)
	registerResourceHandlers(mux, deps)

	return mux
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// evidenceFrom assembles the authorization evidence for a request: the
// opaque token from cookie or bearer header, plus the client IP used for
// login throttling. Nothing else from the client is ever trusted.
func evidenceFrom(r *http.Request) auth.Evidence {
	ev := auth.Evidence{ClientIP: clientIP(r)}

	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		ev.Token = c.Value
		return ev
	}
	if token, err := extractBearerToken(r.Header.Get("Authorization")); err == nil {
		ev.Token = token
	}
	return ev
}

func extractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func issueCookie(w http.ResponseWriter, session auth.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	})
}

func clearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	})
}

// denyAuthz maps a guard denial to its HTTP status and records it.
func denyAuthz(w http.ResponseWriter, deps Deps, d auth.Decision) {
	if deps.Metrics != nil {
		deps.Metrics.AuthzDenied.WithLabelValues(string(d.Reason)).Inc()
	}
	switch d.Reason {
	case auth.ReasonRateLimited:
		writeError(w, http.StatusTooManyRequests, "too many attempts")
	case auth.ReasonInsufficientClaim:
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func loggingMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		if log != nil {
			log.Info("request",
				"rid", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	})
}

type requestIDKey struct{}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func auditReq(a AuditLogger, r *http.Request, e audit.Event) {
	if a == nil {
		return
	}
	detail := "rid=" + requestIDFromContext(r.Context()) + " ip=" + clientIP(r)
	if e.Detail != "" {
		detail += " " + e.Detail
	}
	e.Detail = detail
	_ = a.Log(e)
}
