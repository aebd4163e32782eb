// Copyright 2025 The Rivaas Authors
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

package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// HandlerType represents the type of logging handler.
type HandlerType string

const (
	// JSONHandler outputs structured JSON logs.
	JSONHandler HandlerType = "json"
	// TextHandler outputs key=value text logs.
	TextHandler HandlerType = "text"
)

// Level represents log level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	// ErrNilOutput is returned when the output writer is nil.
	ErrNilOutput = errors.New("output writer cannot be nil")
	// ErrInvalidHandler is returned for an unknown handler type.
	ErrInvalidHandler = errors.New("invalid handler type")
	// ErrInvalidLevel is returned for a level name slog does not know.
	ErrInvalidLevel = errors.New("invalid log level")
)

// redacted replaces the value of sensitive attributes.
const redacted = "***REDACTED***"

var defaultRedactKeys = []string{
	"password", "token", "secret", "secret_key", "api_key", "authorization", "cookie", "set-cookie",
}

// Logger provides structured logging. All methods are safe for concurrent use.
type Logger struct {
	handlerType HandlerType
	output      io.Writer
	level       Level
	levelErr    error

	appName    string
	appVersion string

	addSource   bool
	debugMode   bool
	redactKeys  map[string]struct{}
	secrets     map[string]struct{}
	replaceAttr func(groups []string, a slog.Attr) slog.Attr

	slogger atomic.Pointer[slog.Logger]
}

// Option is a functional option for configuring the logger.
type Option func(*Logger)

func defaultLogger() *Logger {
	l := &Logger{
		handlerType: JSONHandler,
		output:      os.Stdout,
		level:       LevelInfo,
		redactKeys:  make(map[string]struct{}, len(defaultRedactKeys)),
		secrets:     map[string]struct{}{},
	}
	for _, k := range defaultRedactKeys {
		l.redactKeys[k] = struct{}{}
	}
	return l
}

// New creates a new Logger with the given options.
func New(opts ...Option) (*Logger, error) {
	l := defaultLogger()
	for _, opt := range opts {
		opt(l)
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       l.level,
		AddSource:   l.addSource,
		ReplaceAttr: l.buildReplaceAttr(),
	}
	var handler slog.Handler
	switch l.handlerType {
	case JSONHandler:
		handler = slog.NewJSONHandler(l.output, handlerOpts)
	case TextHandler:
		handler = slog.NewTextHandler(l.output, handlerOpts)
	}

	logger := slog.New(handler)
	var attrs []any
	if l.appName != "" {
		attrs = append(attrs, "app", l.appName)
	}
	if l.appVersion != "" {
		attrs = append(attrs, "app_version", l.appVersion)
	}
	if len(attrs) > 0 {
		logger = logger.With(attrs...)
	}
	l.slogger.Store(logger)
	return l, nil
}

// MustNew creates a new Logger or panics on error.
func MustNew(opts ...Option) *Logger {
	l, err := New(opts...)
	if err != nil {
		panic("logging initialization failed: " + err.Error())
	}
	return l
}

// Nop returns a logger that discards every record.
func Nop() *Logger {
	l := defaultLogger()
	l.output = io.Discard
	l.slogger.Store(slog.New(slog.DiscardHandler))
	return l
}

// Validate checks if the configuration is valid.
func (l *Logger) Validate() error {
	if l.output == nil {
		return ErrNilOutput
	}
	if l.levelErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLevel, l.levelErr)
	}
	switch l.handlerType {
	case JSONHandler, TextHandler:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidHandler, l.handlerType)
	}
	return nil
}

func (l *Logger) buildReplaceAttr() func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if _, ok := l.redactKeys[strings.ToLower(a.Key)]; ok {
			return slog.String(a.Key, redacted)
		}
		if a.Value.Kind() == slog.KindString {
			if _, ok := l.secrets[a.Value.String()]; ok {
				return slog.String(a.Key, redacted)
			}
		}
		if l.replaceAttr != nil {
			return l.replaceAttr(groups, a)
		}
		return a
	}
}

// Logger returns the underlying [slog.Logger].
func (l *Logger) Logger() *slog.Logger {
	return l.slogger.Load()
}

// With returns a [slog.Logger] with additional attributes.
func (l *Logger) With(args ...any) *slog.Logger {
	return l.Logger().With(args...)
}

// Debugging reports whether debug mode is on.
func (l *Logger) Debugging() bool {
	return l.debugMode
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.Logger().Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.Logger().Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.Logger().Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.Logger().Error(msg, args...)
}

// LogError logs err with msg at error level. A nil err is ignored.
func (l *Logger) LogError(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	l.Logger().ErrorContext(ctx, msg, append([]any{"error", err.Error()}, args...)...)
}
