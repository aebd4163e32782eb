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

package app

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError describes one rejected configuration value: an option, a
// settings key or a problem in the route tree.
type ConfigError struct {
	// Field is the option or settings key, or "routes" for the route tree.
	Field string
	// Value is the rejected value, nil when there is none to show.
	Value any
	// Message explains the failure.
	Message string
	// Constraint names the violated rule ("min: 0").
	Constraint string

	err error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Field, e.Message)
	if e.Value != nil {
		fmt.Fprintf(&b, " (value: %v)", e.Value)
	}
	if e.Constraint != "" {
		fmt.Fprintf(&b, " [%s]", e.Constraint)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.err
}

// ValidationError is returned by [New]. It holds every problem found while
// assembling the application, in discovery order.
type ValidationError struct {
	Errors []*ConfigError
}

func (ve *ValidationError) Error() string {
	switch len(ve.Errors) {
	case 0:
		return "app: invalid configuration"
	case 1:
		return "app: invalid configuration: " + ve.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "app: %d configuration errors:", len(ve.Errors))
	for _, err := range ve.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes every collected error to errors.Is and errors.As, so a
// route tree problem can still be matched as *errors.ImproperlyConfigured.
func (ve *ValidationError) Unwrap() []error {
	errs := make([]error, len(ve.Errors))
	for i, err := range ve.Errors {
		errs[i] = err
	}
	return errs
}

// Fields returns the distinct fields that failed, in discovery order.
func (ve *ValidationError) Fields() []string {
	var fields []string
	seen := map[string]bool{}
	for _, e := range ve.Errors {
		if !seen[e.Field] {
			seen[e.Field] = true
			fields = append(fields, e.Field)
		}
	}
	return fields
}

// Add appends err.
func (ve *ValidationError) Add(err *ConfigError) {
	ve.Errors = append(ve.Errors, err)
}

// AddError records err against field. Joined errors are split so each
// problem is listed on its own; a [*ConfigError] keeps its own field.
func (ve *ValidationError) AddError(field string, err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			ve.AddError(field, e)
		}
		return
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		ve.Add(ce)
		return
	}
	ve.Add(&ConfigError{Field: field, Message: err.Error(), err: err})
}

// HasErrors reports whether anything was collected.
func (ve *ValidationError) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToError returns nil when nothing was collected and ve otherwise.
func (ve *ValidationError) ToError() error {
	if !ve.HasErrors() {
		return nil
	}
	return ve
}

func newFieldError(field string, value any, message, constraint string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Message: message, Constraint: constraint}
}

func newInvalidValueError(field string, value any, message string) *ConfigError {
	return newFieldError(field, value, message, "")
}
