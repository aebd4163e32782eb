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
	"io"
	"log/slog"
	"strings"
)

// WithHandlerType selects the record format.
func WithHandlerType(t HandlerType) Option {
	return func(l *Logger) { l.handlerType = t }
}

// WithJSONHandler writes one JSON object per record. This is the default.
func WithJSONHandler() Option {
	return WithHandlerType(JSONHandler)
}

// WithTextHandler writes key=value records.
func WithTextHandler() Option {
	return WithHandlerType(TextHandler)
}

// WithOutput sets where records are written. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(l *Logger) { l.output = w }
}

// WithLevel sets the minimum level.
func WithLevel(level Level) Option {
	return func(l *Logger) { l.level = level }
}

// WithLevelName sets the minimum level from its name ("debug", "info",
// "warn", "error", optionally with an offset such as "info+2"). An empty
// name keeps the current level; an unknown one fails [New] with
// [ErrInvalidLevel].
func WithLevelName(name string) Option {
	return func(l *Logger) {
		if name == "" {
			return
		}
		var level slog.Level
		if err := level.UnmarshalText([]byte(name)); err != nil {
			l.levelErr = err
			return
		}
		l.level = level
	}
}

// WithAppName adds an "app" attribute to every record.
func WithAppName(name string) Option {
	return func(l *Logger) { l.appName = name }
}

// WithAppVersion adds an "app_version" attribute to every record.
func WithAppVersion(version string) Option {
	return func(l *Logger) { l.appVersion = version }
}

// WithSource adds the source location to every record.
func WithSource(enabled bool) Option {
	return func(l *Logger) { l.addSource = enabled }
}

// WithDebugMode lowers the level to debug and adds source locations.
func WithDebugMode(enabled bool) Option {
	return func(l *Logger) {
		l.debugMode = enabled
		if enabled {
			l.level = LevelDebug
			l.addSource = true
		}
	}
}

// WithRedactedKeys adds attribute keys whose values are never written.
// Keys are compared case-insensitively.
func WithRedactedKeys(keys ...string) Option {
	return func(l *Logger) {
		for _, k := range keys {
			l.redactKeys[strings.ToLower(k)] = struct{}{}
		}
	}
}

// WithSecretValues redacts any string attribute equal to one of values,
// whatever its key. Empty values are ignored.
//
// Example:
//
//	logging.New(logging.WithSecretValues(s.SecretKey))
func WithSecretValues(values ...string) Option {
	return func(l *Logger) {
		for _, v := range values {
			if v != "" {
				l.secrets[v] = struct{}{}
			}
		}
	}
}

// WithReplaceAttr sets a custom attribute replacer. Redaction happens
// before it runs.
func WithReplaceAttr(fn func(groups []string, a slog.Attr) slog.Attr) Option {
	return func(l *Logger) { l.replaceAttr = fn }
}
