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

// Package logging configures the structured logger used by the application.
//
// It wraps [log/slog]: a [Logger] picks a JSON or text handler, a minimum
// level and an output, attaches the application name and version to every
// record and redacts sensitive attributes: well-known keys, extra keys, and
// any value equal to a configured secret.
//
//	logger, err := logging.New(
//	    logging.WithTextHandler(),
//	    logging.WithAppName("inventory"),
//	    logging.WithDebugMode(true),
//	)
//
// [Nop] returns a logger that discards everything. It is the fallback when
// the configured logger cannot be built.
package logging
