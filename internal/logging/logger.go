package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shareit/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger. Empty fields fall back to JSON at info level on stdout.
// The returned closer is non-nil only for file output.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	output, closer, err := openOutput(cfg)
	if err != nil {
		return nil, nil, err
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	ctx := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("app", app.Name)
	if app.Environment != "" {
		ctx = ctx.Str("env", app.Environment)
	}
	if app.Version != "" {
		ctx = ctx.Str("version", app.Version)
	}
	base := ctx.Logger()

	return &base, closer, nil
}

// Component derives a child logger tagged with the component name.
func Component(logger *zerolog.Logger, name string) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	child := logger.With().Str("component", name).Logger()
	return &child
}

func parseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("logging.output=file requires logging.file_path")
		}
		if dir := filepath.Dir(cfg.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return file, file, nil
	default:
		return nil, nil, fmt.Errorf("unsupported logging.output %q", cfg.Output)
	}
}
