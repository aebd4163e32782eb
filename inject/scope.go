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

package inject

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Scope is the per-request resolution state: cached values, the set of
// dependencies being resolved and the teardown stack of scoped resources.
type Scope struct {
	logger *slog.Logger

	mu         sync.Mutex
	cache      map[uint64]any
	inProgress map[uint64]bool
	teardown   []func() error
	closed     bool
}

// NewScope returns an empty scope. A nil logger discards teardown errors
// beyond the first.
func NewScope(logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scope{
		logger:     logger,
		cache:      make(map[uint64]any),
		inProgress: make(map[uint64]bool),
	}
}

func (s *Scope) cached(id uint64) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache[id]
	return v, ok
}

func (s *Scope) store(id uint64, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[id] = v
}

// enter marks id as in progress. It reports false when id is already being resolved.
func (s *Scope) enter(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress[id] {
		return false
	}
	s.inProgress[id] = true
	return true
}

func (s *Scope) leave(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inProgress, id)
}

// Push registers a release function. Functions run in reverse order of
// registration when the scope closes. Pushing onto a closed scope runs fn
// immediately.
func (s *Scope) Push(fn func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return safeRun(fn)
	}
	s.teardown = append(s.teardown, fn)
	s.mu.Unlock()
	return nil
}

// Len returns the number of pending release functions.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.teardown)
}

// Close runs the teardown stack once, LIFO. Every function runs even when an
// earlier one fails or panics; the first failure is returned and later ones
// are logged.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stack := s.teardown
	s.teardown = nil
	s.mu.Unlock()

	var first error
	for i := len(stack) - 1; i >= 0; i-- {
		err := safeRun(stack[i])
		if err == nil {
			continue
		}
		if first == nil {
			first = err
			continue
		}
		s.logger.ErrorContext(ctx, "scoped resource teardown failed", "error", err)
	}
	return first
}

func safeRun(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("teardown panic: %v", r)
		}
	}()
	return fn()
}
