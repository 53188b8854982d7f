package netprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidHost = errors.New("invalid host")

const (
	maxHostLength  = 253
	maxLabelLength = 63
)

// ValidateHost accepts IP literals and hostnames matching the restrictive
// DNS grammar: dot-separated labels of alphanumerics and inner hyphens.
// Everything else — shell metacharacters included — fails closed. Labels
// cannot start with a hyphen, so a validated host can never be mistaken
// for a command-line flag either.
func ValidateHost(input string) (string, error) {
	if input == "" || len(input) > maxHostLength {
		return "", ErrInvalidHost
	}
	if ip := net.ParseIP(input); ip != nil {
		return input, nil
	}

	for _, label := range strings.Split(input, ".") {
		if !validLabel(label) {
			return "", ErrInvalidHost
		}
	}
	return input, nil
}

func validLabel(label string) bool {
	if len(label) == 0 || len(label) > maxLabelLength {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' && i > 0 && i < len(label)-1:
		default:
			return false
		}
	}
	return true
}

type Result struct {
	Host       string        `json:"host"`
	Reachable  bool          `json:"reachable"`
	DurationMS int64         `json:"duration_ms"`
	Duration   time.Duration `json:"-"`
}

type Pinger interface {
	Ping(ctx context.Context, host string) (Result, error)
}

// ExecPinger probes reachability with the system ping binary, invoked with
// an argument vector. No shell is ever involved, so the host string cannot
// be reinterpreted as command syntax.
type ExecPinger struct {
	timeout time.Duration
}

func NewExecPinger(timeout time.Duration) *ExecPinger {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ExecPinger{timeout: timeout}
}

func (p *ExecPinger) Ping(ctx context.Context, host string) (Result, error) {
	// The sanitizer is re-applied here: a raw string must not reach the
	// process boundary through any caller.
	validated, err := ValidateHost(host)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	waitSec := int(p.timeout.Seconds())
	if waitSec < 1 {
		waitSec = 1
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", strconv.Itoa(waitSec), validated)
	err = cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// Unreachable is a probe outcome, not a failure of the probe.
			return Result{Host: validated, Reachable: false, DurationMS: elapsed.Milliseconds(), Duration: elapsed}, nil
		}
		return Result{}, fmt.Errorf("run ping: %w", err)
	}
	return Result{Host: validated, Reachable: true, DurationMS: elapsed.Milliseconds(), Duration: elapsed}, nil
}
