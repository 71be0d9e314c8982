// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Newswire Contributors

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// reportTimeout bounds the plain HTTP report handlers. Socket routes are
// long-lived and are not wrapped.
const reportTimeout = 15 * time.Second

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/ws", s.socket)
	r.Method(http.MethodGet, "/", s.rootHandler())

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(s.logger))
		r.Use(middleware.Timeout(reportTimeout))
		r.Get("/health", s.reporter.HealthHandler())
		r.Get("/stats", s.reporter.StatsHandler())
	})
	return r
}

// rootHandler accepts socket upgrades on "/" and answers plain requests
// with the health report.
func (s *Server) rootHandler() http.HandlerFunc {
	health := s.reporter.HealthHandler()
	return func(w http.ResponseWriter, r *http.Request) {
		if isUpgrade(r) {
			s.socket.ServeHTTP(w, r)
			return
		}
		health(w, r)
	}
}

func isUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") != ""
}

// requestLogger logs each request at debug level with its request ID.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
