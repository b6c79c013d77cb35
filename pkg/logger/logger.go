// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger configures the process-wide slog logger and writes
// per-run JSONL execution logs.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

var defaultLogger *slog.Logger

const packagePrefix = "github.com/kadirpekel/plancraft"

// Environment variables read by Resolve.
const (
	EnvLevel  = "LOG_LEVEL"
	EnvFile   = "LOG_FILE"
	EnvFormat = "LOG_FORMAT"
)

// Formats understood by Init.
const (
	FormatSimple  = "simple"
	FormatVerbose = "verbose"
	FormatJSON    = "json"
)

// ParseLevel converts a level name to slog.Level.
// Valid levels: debug, info, warn, error.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", levelStr)
	}
}

// Options selects level, format and destination. Empty fields fall back
// to the environment and then to defaults.
type Options struct {
	Level  string
	Format string
	File   string
}

// Resolve fills empty fields from the environment. Explicit values win.
func (o Options) Resolve() Options {
	if o.Level == "" {
		o.Level = os.Getenv(EnvLevel)
	}
	if o.Format == "" {
		o.Format = os.Getenv(EnvFormat)
	}
	if o.File == "" {
		o.File = os.Getenv(EnvFile)
	}
	if o.Format == "" {
		o.Format = FormatSimple
	}
	return o
}

// Setup resolves opts and installs the default logger. The returned
// cleanup closes the log file, if one was opened.
func Setup(opts Options) (func(), error) {
	opts = opts.Resolve()
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return func() {}, err
	}
	out := os.Stderr
	cleanup := func() {}
	if opts.File != "" {
		f, closeFn, err := OpenLogFile(opts.File)
		if err != nil {
			return cleanup, fmt.Errorf("failed to open log file: %w", err)
		}
		out, cleanup = f, closeFn
	}
	Init(level, out, opts.Format)
	return cleanup, nil
}

// filteringHandler drops third-party records unless the level is DEBUG.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || ownPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

// ownPackage reports whether pc belongs to this module.
func ownPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), packagePrefix) || strings.Contains(file, "plancraft/")
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// textHandler renders "LEVEL message key=value" lines, optionally with a
// timestamp prefix and ANSI colors.
type textHandler struct {
	handler  slog.Handler
	writer   io.Writer
	useColor bool
	withTime bool
	attrs    []slog.Attr
}

func (h *textHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *textHandler) Handle(_ context.Context, record slog.Record) error {
	var buf strings.Builder
	if h.withTime && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}

	levelStr := strings.ToUpper(record.Level.String())
	if levelStr == "WARNING" {
		levelStr = "WARN"
	}
	if h.useColor {
		buf.WriteString(levelColor(record.Level))
		buf.WriteString(levelStr)
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(levelStr)
	}
	buf.WriteString(" ")
	buf.WriteString(record.Message)

	write := func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	record.Attrs(write)
	buf.WriteString("\n")

	_, err := io.WriteString(h.writer, buf.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.handler = h.handler.WithAttrs(attrs)
	cp.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &cp
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	cp := *h
	cp.handler = h.handler.WithGroup(name)
	return &cp
}

// Init installs the default logger.
//
// format is "simple" (level, message, attributes), "verbose" (with a
// timestamp) or "json". Colors are used on terminals. Third-party logs are
// shown only at DEBUG.
func Init(level slog.Level, output *os.File, format string) {
	defaultLogger = slog.New(&filteringHandler{
		handler:  newHandler(level, output, format, IsTerminal(output)),
		minLevel: level,
	})
	slog.SetDefault(defaultLogger)
}

func newHandler(level slog.Level, w io.Writer, format string, color bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts)
	case FormatVerbose:
		return &textHandler{handler: slog.NewTextHandler(w, opts), writer: w, useColor: color, withTime: true}
	default:
		return &textHandler{handler: slog.NewTextHandler(w, opts), writer: w, useColor: color}
	}
}

// OpenLogFile opens or creates a log file for appending.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

// GetLogger returns the default logger, initializing it at INFO if needed.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, FormatSimple)
	}
	return defaultLogger
}
