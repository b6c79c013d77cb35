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

// Package server exposes the workflow service over HTTP.
//
// Routes:
//
//	POST /api/workflow/run
//	POST /api/workflow/resume
//	GET  /api/workflow/status/{thread_id}
//	GET  /api/workflow/history/{thread_id}
//	GET  /api/workflow/history/{thread_id}/{index}
//	POST /api/workflow/rollback/{thread_id}
//	POST /api/workflow/replay/{thread_id}
//	GET  /api/workflow/compare/{thread_id}?a=&b=
//	GET  /api/agents
//	GET  /health
//	GET  /metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/plancraft/pkg/auth"
	"github.com/kadirpekel/plancraft/pkg/observability"
	"github.com/kadirpekel/plancraft/pkg/workflow"
)

// DefaultAddress is used when Options.Address is empty.
const DefaultAddress = ":8080"

// Options configures a Server.
type Options struct {
	// Address is the listen address.
	Address string

	// Service runs the workflow. Required.
	Service *workflow.Service

	// Observability traces and measures requests. Nil disables both.
	Observability *observability.Manager

	// Validator authenticates requests. Nil serves without auth.
	Validator *auth.JWTValidator

	// PublicPaths are served without a token.
	PublicPaths []string

	// AllowedOrigins configures CORS. Empty allows any origin.
	AllowedOrigins   []string
	AllowCredentials bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP front end of the workflow service.
type Server struct {
	opts   Options
	svc    *workflow.Service
	server *http.Server
}

// New creates a server.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("server: workflow service is required")
	}
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	// Runs block until the next interrupt, which can take minutes.
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 10 * time.Minute
	}
	return &Server{opts: opts, svc: opts.Service}, nil
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Order: observability -> logging -> cors -> auth -> routes
	r.Use(observability.HTTPMiddleware(s.opts.Observability))
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware(s.opts.AllowedOrigins, s.opts.AllowCredentials))
	if s.opts.Validator != nil {
		public := append([]string{"/health", s.opts.Observability.MetricsPath()}, s.opts.PublicPaths...)
		r.Use(s.opts.Validator.Middleware(public...))
		slog.Info("Authentication enabled", "public_paths", public)
	}

	r.Get("/health", s.handleHealth)
	if h := s.opts.Observability.MetricsHandler(); h != nil {
		r.Method(http.MethodGet, s.opts.Observability.MetricsPath(), h)
	}
	r.Get("/api/agents", s.handleAgents)

	r.Route("/api/workflow", func(r chi.Router) {
		r.Post("/run", s.handleRun)
		r.Post("/resume", s.handleResume)
		r.Get("/status/{thread_id}", s.handleStatus)
		r.Get("/history/{thread_id}", s.handleHistory)
		r.Get("/history/{thread_id}/{index}", s.handleStateAt)
		r.Post("/rollback/{thread_id}", s.handleRollback)
		r.Post("/replay/{thread_id}", s.handleReplay)
		r.Get("/compare/{thread_id}", s.handleCompare)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  120 * time.Second,
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
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops the server, waiting up to five seconds for requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

func corsMiddleware(origins []string, credentials bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(origins) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				for _, allowed := range origins {
					if allowed == "*" || allowed == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Add("Vary", "Origin")
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if credentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
