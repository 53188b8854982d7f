package auth

type Operation string

const (
	OpRegister     Operation = "register"
	OpLogin        Operation = "login"
	OpLogout       Operation = "logout"
	OpIntrospect   Operation = "introspect"
	OpDeleteUser   Operation = "deleteUser"
	OpDownloadFile Operation = "downloadFile"
	OpPingHost     Operation = "pingHost"
)

type Requirement int

const (
	RequireNone Requirement = iota
	RequireSession
	RequireAdmin
)

type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonNoSession         Reason = "no_session"
	ReasonInsufficientClaim Reason = "insufficient_claim"
	ReasonRateLimited       Reason = "rate_limited"
)

// Decision is computed per request and never persisted.
type Decision struct {
	Allowed bool
	Reason  Reason
	Session Session
}

// Evidence is what a request carries into an authorization check: the
// opaque token, if any, plus the client identity used for login throttling.
type Evidence struct {
	Token    string
	ClientIP string
	Username string
}

// SessionResolver is the slice of the session authority the guard needs.
type SessionResolver interface {
	Resolve(token string) (Session, error)
}

// Guard is the single authorization choke point. Every handler asks it
// before performing side effects; no handler carries its own check.
type Guard struct {
	sessions SessionResolver
	throttle *LoginThrottle
	policy   map[Operation]Requirement
}

func NewGuard(sessions SessionResolver, throttle *LoginThrottle, allowAnonymousResources bool) *Guard {
	policy := map[Operation]Requirement{
		OpRegister:     RequireNone,
		OpLogin:        RequireNone,
		OpLogout:       RequireSession,
		OpIntrospect:   RequireSession,
		OpDeleteUser:   RequireAdmin,
		OpDownloadFile: RequireSession,
		OpPingHost:     RequireSession,
	}
	if allowAnonymousResources {
		policy[OpDownloadFile] = RequireNone
		policy[OpPingHost] = RequireNone
	}
	return &Guard{
		sessions: sessions,
		throttle: throttle,
		policy:   policy,
	}
}

// Authorize resolves the evidence against the policy table. Operations
// absent from the table are denied: nothing is exempt by omission.
func (g *Guard) Authorize(ev Evidence, op Operation) Decision {
	if op == OpLogin && g.throttle != nil && g.throttle.Blocked(ev.ClientIP, ev.Username) {
		return Decision{Allowed: false, Reason: ReasonRateLimited}
	}

	req, known := g.policy[op]
	if !known {
		return Decision{Allowed: false, Reason: ReasonInsufficientClaim}
	}

	switch req {
	case RequireNone:
		// A valid session still attaches identity for auditing, but a
		// missing or bad token is not a failure here.
		if ev.Token != "" {
			if session, err := g.sessions.Resolve(ev.Token); err == nil {
				return Decision{Allowed: true, Reason: ReasonOK, Session: session}
			}
		}
		return Decision{Allowed: true, Reason: ReasonOK}

	case RequireSession, RequireAdmin:
		if ev.Token == "" {
			return Decision{Allowed: false, Reason: ReasonNoSession}
		}
		session, err := g.sessions.Resolve(ev.Token)
		if err != nil {
			return Decision{Allowed: false, Reason: ReasonNoSession}
		}
		if req == RequireAdmin && !session.Claims.Admin {
			return Decision{Allowed: false, Reason: ReasonInsufficientClaim}
		}
		return Decision{Allowed: true, Reason: ReasonOK, Session: session}

	default:
		return Decision{Allowed: false, Reason: ReasonInsufficientClaim}
	}
}

// RecordLoginFailure feeds the throttle after a failed credential check.
func (g *Guard) RecordLoginFailure(ev Evidence) {
	if g.throttle != nil {
		g.throttle.RecordFailure(ev.ClientIP, ev.Username)
	}
}

// ClearLoginFailures resets the counter after a successful login.
func (g *Guard) ClearLoginFailures(ev Evidence) {
	if g.throttle != nil {
		g.throttle.Reset(ev.ClientIP, ev.Username)
	}
}
