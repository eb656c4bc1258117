package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/serenitylabs/serenity/internal/config"
)

// NewFromConfig builds a logger for cfg. An unknown or empty level means
// info. JSON entries are stamped in UTC with cfg.TimeLayout(); the console
// format renders its timestamps with the same layout.
func NewFromConfig(cfg config.LoggingConfig) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out, err := openOutput(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	layout := cfg.TimeLayout()
	if cfg.Format == "console" {
		return NewWithWriter(zerolog.ConsoleWriter{Out: out, TimeFormat: layout}, level), nil
	}

	zl := zerolog.New(out).Level(level).Hook(timestampHook(layout))
	return &Logger{zl: zl, fields: make(map[string]interface{})}, nil
}

// timestampHook adds the event time formatted with its layout
type timestampHook string

func (h timestampHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str(zerolog.TimestampFieldName, time.Now().UTC().Format(string(h)))
}

// openOutput resolves stdout, stderr or a log file, creating its directory
func openOutput(path string) (io.Writer, error) {
	switch path {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
