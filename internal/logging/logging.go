// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

type envOptions struct {
	// Debug forces debug-level logging regardless of configuration.
	Debug bool `envconfig:"DEBUG"`
}

// debugRequested reports whether STORYHIVE_DEBUG asked for verbose logs.
func debugRequested() bool {
	var opts envOptions
	if err := envconfig.Process("STORYHIVE", &opts); err != nil {
		return false
	}
	return opts.Debug
}

// New builds the root logger. Level is one of zerolog's level strings
// ("debug", "info", "warn", "error"); filePath, when set, appends JSON lines
// there instead of writing a console stream to stderr.
func New(level, filePath string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debugRequested() {
		lvl = zerolog.DebugLevel
	}

	var out io.Writer
	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return zerolog.Nop(), fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("opening log file: %w", err)
		}
		out = f
	} else {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return logger, nil
}
