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

// Package validation checks bound request values against declared constraints.
//
// Constraints come from struct tags: `validate` uses go-playground/validator
// syntax, `pattern` holds a regular expression and `enum` a comma separated
// list of allowed values. Body types may additionally describe themselves
// with a JSON Schema by implementing [JSONSchemaProvider].
//
// Failures are reported as [errors.ErrorDetail] entries so the caller can
// aggregate them into one [errors.ValidationError].
package validation
