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

// Package settings holds the application configuration and loads it from
// files and the environment.
//
// A [Settings] value carries every option the application recognises. Plain
// options (titles, flags, CORS origins, paths) may come from a YAML, TOML or
// JSON file and from KEEL_* environment variables; options holding Go values
// (middleware, dependencies, hooks, exception handlers) are set in code.
//
// # Loading
//
//	s, err := settings.Load("config.yaml",
//	    settings.WithOverrides(&settings.Settings{Title: "Inventory"}),
//	)
//
// Sources are applied in order: [Defaults], the file, the environment, then
// the code overrides. Environment variable names are the upper-case option
// names after the prefix; a double underscore descends into a nested option:
//
//	KEEL_DEBUG=true
//	KEEL_ALLOW_ORIGINS=https://a.example,https://b.example
//	KEEL_OPENAPI_CONFIG__PATH=/schema.json
package settings
