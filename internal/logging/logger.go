package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production it uses JSON output for log aggregation, otherwise the
// human-readable text handler. level overrides the environment default.
func Init(environment, level string) {
	opts := &slog.HandlerOptions{Level: parseLevel(environment, level)}

	var handler slog.Handler
	if strings.EqualFold(environment, "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(environment, level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if strings.EqualFold(environment, "production") {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// WithCandidate returns a logger with the candidate id attached.
// Never attach decrypted profile fields to a logger.
func WithCandidate(candidateID string) *slog.Logger {
	return slog.With("candidate_id", candidateID)
}

// WithOperation returns a logger scoped to a record store operation.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With("operation", operation)
}
