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

// Package metrics records Prometheus request metrics.
//
// The middleware counts requests by method, route template and status,
// observes their latency and tracks in-flight requests. Collectors live in
// a per-instance registry exposed through [Recorder.Handler].
//
//	rec := metrics.New(metrics.WithNamespace("inventory"))
//	app.WithMiddleware(rec.Middleware())
//	app.WithMount("/metrics", rec.Handler())
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rivaas.dev/keel/connection"
	kerrors "rivaas.dev/keel/errors"
	"rivaas.dev/keel/router"
)

// UnmatchedRoute labels requests that matched no route.
const UnmatchedRoute = "unmatched"

// Option configures a [Recorder].
type Option func(*config)

type config struct {
	namespace    string
	registry     *prometheus.Registry
	buckets      []float64
	excludePaths map[string]bool
	runtime      bool
}

// WithNamespace prefixes every metric name.
func WithNamespace(ns string) Option {
	return func(cfg *config) { cfg.namespace = ns }
}

// WithRegistry registers the collectors on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(cfg *config) { cfg.registry = r }
}

// WithBuckets sets the latency histogram buckets in seconds.
func WithBuckets(buckets ...float64) Option {
	return func(cfg *config) { cfg.buckets = buckets }
}

// WithExcludePaths skips recording for the given URL paths.
func WithExcludePaths(paths ...string) Option {
	return func(cfg *config) {
		for _, p := range paths {
			cfg.excludePaths[p] = true
		}
	}
}

// WithRuntimeMetrics also registers the Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(cfg *config) { cfg.runtime = true }
}

// Recorder owns the request collectors.
type Recorder struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	exclude  map[string]bool
}

// New creates a Recorder and registers its collectors.
func New(opts ...Option) *Recorder {
	cfg := &config{
		namespace:    "keel",
		buckets:      prometheus.ExponentialBuckets(0.005, 2, 10),
		excludePaths: map[string]bool{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}

	r := &Recorder{
		registry: cfg.registry,
		exclude:  cfg.excludePaths,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   cfg.buckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	r.registry.MustRegister(r.requests, r.duration, r.inFlight)
	if cfg.runtime {
		r.registry.MustRegister(
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			prometheus.NewGoCollector(),
		)
	}
	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Middleware records every request passing through it. The route label is
// the matched template, so it is only known when the middleware wraps
// routing or runs on a route.
func (r *Recorder) Middleware() router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(w http.ResponseWriter, req *connection.Request) error {
			if r.exclude[req.Path()] {
				return next(w, req)
			}
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			r.inFlight.Inc()
			defer r.inFlight.Dec()

			err := next(rec, req)

			status := rec.status
			switch {
			case status == 0 && err != nil:
				// The error is rendered further out.
				status = kerrors.StatusOf(err)
			case status == 0:
				status = http.StatusOK
			}
			route := req.RoutePath
			if route == "" {
				route = UnmatchedRoute
			}
			r.requests.WithLabelValues(req.Method(), route, strconv.Itoa(status)).Inc()
			r.duration.WithLabelValues(req.Method(), route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack hands the connection over for a websocket upgrade.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
