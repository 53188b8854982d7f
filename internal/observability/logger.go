package observability

import (
	"log/slog"
	"os"
)

// NewLogger returns the process-wide structured logger. JSON output keeps
// log lines machine-parseable for the deployment's log pipeline.
func NewLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}
