package main

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds a zap.Logger from a RUST_LOG-style filter string: a
// comma-separated list of terms, where the first bare level term ("info",
// "debug") that parses sets the single process-wide level (info if there
// is none). "pkg=level" terms are accepted but not applied. --quiet always
// wins, forcing error level regardless of the filter string.
func newLogger(filter string, quiet bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseDefaultLevel(filter))
	if quiet {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// parseDefaultLevel extracts the default level from a RUST_LOG-style
// filter such as "info,orchestrate=debug": the per-package overrides
// (anything with an "=") are accepted by the syntax but, since zap's
// level is process-wide rather than per-logger-name in this
// implementation, only the bare default term (if any) is applied.
// Per-package granularity would need a zap.Core that consults the
// logger's name, which no component here currently needs.
func parseDefaultLevel(filter string) zapcore.Level {
	for _, term := range strings.Split(filter, ",") {
		term = strings.TrimSpace(term)
		if term == "" || strings.Contains(term, "=") {
			continue
		}
		if lvl, err := zapcore.ParseLevel(term); err == nil {
			return lvl
		}
	}
	return zapcore.InfoLevel
}

func filterFromEnv() string {
	if f := os.Getenv("RUST_LOG"); f != "" {
		return f
	}
	return "info"
}
