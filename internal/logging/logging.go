// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides the internal structured logging used by the
// engine. It is not part of the wire protocol or orchestration contract;
// callers that want their own sink can call SetDefault.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

// ParseLevel converts a string log level to slog.Level. Unknown values
// fall back to warn, matching the permissive behavior expected of an
// internal diagnostics knob.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// SetDefault installs the logger used by every engine component. Embedders
// that want SAG's internal diagnostics routed into their own pipeline call
// this once during setup.
func SetDefault(l *slog.Logger) {
	defaultLogger = l
}

// Log returns the current internal logger.
func Log() *slog.Logger {
	return defaultLogger
}
