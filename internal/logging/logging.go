// Package logging configures the daemon-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON lines to <dataDir>/loom.log and a
// human-readable stream to stderr. Failure to open the log file degrades to
// stderr-only so the daemon never refuses to start over logging.
func New(dataDir string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	writers := []io.Writer{console}
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err == nil {
			path := filepath.Join(dataDir, "loom.log")
			f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err == nil {
				writers = append(writers, f)
			}
		}
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

// Nop returns a disabled logger for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
