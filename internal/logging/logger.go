// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger writes to stdout. See New.
func NewLogger(env string) *slog.Logger {
	return New(os.Stdout, env)
}

// New returns the project logger writing to w.
//   - env=prod: JSON handler without source locations
//   - otherwise: text handler with source locations
//
// LOG_LEVEL sets the level (debug/info/warn/error), default info.
func New(w io.Writer, env string) *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(env), "prod") {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, AddSource: true})
	}
	return slog.New(h).With("app", "flowsim")
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
