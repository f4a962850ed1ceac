// Package logger is the module that owns the process-wide zerolog logger.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/plugin"
)

type Format string

const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

const (
	keyLevel  = "wisp.logger.level"
	keyFormat = "wisp.logger.format"
	keyFile   = "wisp.logger.file"
)

// Module replaces log.Logger at configure time, so it should be the first
// bundle: everything configured after it logs through the new writer.
type Module struct {
	plugin.Base

	stderr   io.Writer
	terminal func() bool

	file *os.File
}

func New() *Module {
	return &Module{
		stderr: os.Stderr,
		terminal: func() bool {
			fd := os.Stderr.Fd()
			return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		},
	}
}

func (m *Module) Name() string { return "wisp-logger" }

func (m *Module) Configure(_ context.Context, cfg config.Configuration) error {
	level := zerolog.InfoLevel
	if cfg.HasPath(keyLevel) {
		s, err := cfg.GetString(keyLevel)
		if err != nil {
			return err
		}
		level, err = zerolog.ParseLevel(s)
		if err != nil {
			return errors.Wrapf(err, "%s", keyLevel)
		}
	}

	format := FormatAuto
	if cfg.HasPath(keyFormat) {
		var err error
		format, err = config.GetEnum(cfg, keyFormat, FormatAuto, FormatConsole, FormatJSON)
		if err != nil {
			return err
		}
	}

	out := m.stderr
	toFile := false
	if cfg.HasPath(keyFile) {
		path, err := cfg.GetString(keyFile)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "create log directory for %s", path)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "open log file %s", path)
		}
		m.closeFile()
		m.file = f
		out = f
		toFile = true
	}

	console := format == FormatConsole || (format == FormatAuto && !toFile && m.terminal())
	if console {
		out = zerolog.ConsoleWriter{Out: out, NoColor: toFile}
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	log.Debug().
		Str("component", "logger").
		Str("level", level.String()).
		Str("format", string(format)).
		Bool("file", toFile).
		Msg("Logger configured")
	return nil
}

// Destroy points the global logger back at stderr and closes the log file.
func (m *Module) Destroy(context.Context) error {
	if m.file == nil {
		return nil
	}
	log.Logger = zerolog.New(m.stderr).With().Timestamp().Logger()
	return m.closeFile()
}

func (m *Module) closeFile() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return errors.Wrap(err, "close log file")
}
