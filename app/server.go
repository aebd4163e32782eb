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
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Start listens on addr and serves until ctx is cancelled. See [App.Serve].
//
// Signal handling is left to the caller:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := a.Start(ctx, ":8080"); err != nil {
//	    log.Fatal(err)
//	}
func (a *App) Start(ctx context.Context, addr string) error {
	if err := a.Startup(ctx); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		a.shutdownWithTimeout()
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return a.serve(ctx, ln)
}

// Serve runs the startup phase, serves on ln until ctx is cancelled and then
// shuts down gracefully: the server stops accepting connections, in-flight
// requests drain and the shutdown phase runs, all within the shutdown
// timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.Startup(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv, protocol := a.httpServer()

	if !a.quiet {
		a.printStartupBanner(ln.Addr().String(), protocol)
	}
	a.logger.Info("server listening", "address", ln.Addr().String(), "protocol", protocol)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		a.shutdownWithTimeout()
		if err == nil {
			return nil
		}
		return fmt.Errorf("%s server failed: %w", protocol, err)
	case <-ctx.Done():
		a.logger.Info("server shutting down", "reason", context.Cause(ctx))
	}

	// ctx is already cancelled; the shutdown deadline starts fresh.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.server.shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	a.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("%s server forced to shutdown: %w", protocol, err)
	}
	return nil
}

// httpServer builds the server for the app. With enable_h2c, HTTP/2 is
// accepted over cleartext connections.
func (a *App) httpServer() (*http.Server, string) {
	var handler http.Handler = a
	protocol := "HTTP"
	if a.settings.EnableH2C {
		handler = h2c.NewHandler(a, &http2.Server{IdleTimeout: a.server.idleTimeout})
		protocol = "h2c"
	}
	return &http.Server{
		Handler:           handler,
		ReadTimeout:       a.server.readTimeout,
		ReadHeaderTimeout: a.server.readHeaderTimeout,
		WriteTimeout:      a.server.writeTimeout,
		IdleTimeout:       a.server.idleTimeout,
		ErrorLog:          slog.NewLogLogger(a.logger.Logger().Handler(), slog.LevelWarn),
	}, protocol
}

func (a *App) shutdownWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), a.server.shutdownTimeout)
	defer cancel()
	a.Shutdown(ctx)
}
