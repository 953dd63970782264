// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/sitewise/pkg/chain"
	"github.com/kadirpekel/sitewise/pkg/config"
	"github.com/kadirpekel/sitewise/pkg/observability"
)

// Answerer is the part of chain.Chain the server needs.
type Answerer interface {
	Run(ctx context.Context, req chain.Request) chain.Result
	StreamRun(ctx context.Context, req chain.Request) iter.Seq[chain.Event]
}

// Server is the sitewise HTTP server.
type Server struct {
	cfg      config.ServerConfig
	answerer Answerer

	metrics        observability.Metrics
	metricsHandler http.Handler
	toolCount      func() int
	version        string

	handler http.Handler
	server  *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithMetrics records HTTP metrics and serves handler at /metrics. A nil
// handler leaves /metrics unrouted.
func WithMetrics(m observability.Metrics, handler http.Handler) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
		s.metricsHandler = handler
	}
}

// WithToolCount reports the number of available tools on /health.
func WithToolCount(fn func() int) Option {
	return func(s *Server) {
		s.toolCount = fn
	}
}

// WithVersion sets the version reported on / and /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a server answering with a.
func New(cfg config.ServerConfig, a Answerer, opts ...Option) *Server {
	cfg.SetDefaults()
	s := &Server{
		cfg:       cfg,
		answerer:  a,
		metrics:   observability.NoopMetrics{},
		toolCount: func() int { return 0 },
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Order: request id -> metrics -> recover -> cors -> routes
	r.Use(requestIDMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.CORSOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/rag-chat", s.handleChat)
		r.Post("/rag-chat-stream", s.handleChatStream)
	})

	return r
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully within the shutdown timeout.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}
