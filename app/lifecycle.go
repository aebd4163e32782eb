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
	"context"
	"errors"
	"fmt"
	"sync"

	"rivaas.dev/keel/settings"
)

var (
	// ErrAlreadyStarted is returned by [App.Startup] when called twice.
	ErrAlreadyStarted = errors.New("app: already started")

	// ErrLifespanConflict is returned when hooks are registered on an
	// application configured with a lifespan, or the other way round.
	ErrLifespanConflict = errors.New("app: lifespan cannot be combined with startup or shutdown hooks")
)

type lifecycleState int

const (
	stateIdle lifecycleState = iota
	stateStarted
	stateStopped
)

type lifecycle struct {
	mu       sync.Mutex
	state    lifecycleState
	startup  []settings.Hook
	shutdown []settings.Hook
	lifespan settings.Lifespan

	// teardown is the shutdown phase returned by the lifespan.
	teardown settings.Hook
}

// OnStartup registers a hook run by [App.Startup] after the configured ones.
func (a *App) OnStartup(h settings.Hook) error {
	return a.addHook(&a.lifecycle.startup, h)
}

// OnShutdown registers a hook run by [App.Shutdown] after the configured ones.
func (a *App) OnShutdown(h settings.Hook) error {
	return a.addHook(&a.lifecycle.shutdown, h)
}

func (a *App) addHook(hooks *[]settings.Hook, h settings.Hook) error {
	l := &a.lifecycle
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case h == nil:
		return errors.New("app: hook is nil")
	case l.state != stateIdle:
		return ErrAlreadyStarted
	case l.lifespan != nil:
		return ErrLifespanConflict
	}
	*hooks = append(*hooks, h)
	return nil
}

// Startup runs the startup phase: the lifespan, or every startup hook in
// registration order. The first failing hook aborts startup and its error is
// returned. On success the route tree and the middleware chain are frozen;
// only [App.AddRoute] can still change routing.
func (a *App) Startup(ctx context.Context) error {
	l := &a.lifecycle
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateIdle {
		return ErrAlreadyStarted
	}

	if l.lifespan != nil {
		teardown, err := runLifespan(ctx, l.lifespan)
		if err != nil {
			return fmt.Errorf("lifespan startup: %w", err)
		}
		l.teardown = teardown
	} else {
		for i, h := range l.startup {
			if err := runHook(ctx, h); err != nil {
				return fmt.Errorf("startup hook %d: %w", i, err)
			}
		}
	}

	a.mu.Lock()
	a.router.Freeze()
	a.mu.Unlock()
	l.state = stateStarted
	a.logger.Info("application started", "app", a.settings.AppName, "routes", len(a.router.Routes()))
	return nil
}

// Shutdown runs the shutdown phase once: every shutdown hook in registration
// order, or the shutdown function returned by the lifespan. Failures are
// logged and do not stop the remaining hooks. Shutdown does nothing unless
// [App.Startup] succeeded.
func (a *App) Shutdown(ctx context.Context) {
	l := &a.lifecycle
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateStarted {
		return
	}
	l.state = stateStopped

	for i, h := range l.shutdown {
		if err := runHook(ctx, h); err != nil {
			a.logger.LogError(ctx, err, "shutdown hook failed", "hook", i)
		}
	}
	if l.teardown != nil {
		if err := runHook(ctx, l.teardown); err != nil {
			a.logger.LogError(ctx, err, "lifespan shutdown failed")
		}
	}
	a.logger.Info("application stopped", "app", a.settings.AppName)
}

// Started reports whether the startup phase completed and shutdown has not run.
func (a *App) Started() bool {
	a.lifecycle.mu.Lock()
	defer a.lifecycle.mu.Unlock()
	return a.lifecycle.state == stateStarted
}

func runHook(ctx context.Context, h settings.Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panic: %v", r)
		}
	}()
	return h(ctx)
}

func runLifespan(ctx context.Context, fn settings.Lifespan) (teardown settings.Hook, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lifespan panic: %v", r)
		}
	}()
	return fn(ctx)
}
