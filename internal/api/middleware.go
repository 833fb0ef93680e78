// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"time"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// accessLog logs every non-metrics request's method, path, status, and
// duration.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if r.URL.Path == "/metrics" {
			return
		}
		dur := time.Since(start).Round(time.Millisecond)
		if wrapped.statusCode >= 500 {
			s.logger.Error("admin request", "method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", dur)
		} else if wrapped.statusCode >= 400 {
			s.logger.Warn("admin request", "method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", dur)
		} else {
			s.logger.Info("admin request", "method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", dur)
		}
	})
}

// maxBody caps the body of every request other than GET and HEAD to
// maxBytes, protecting body-reading handlers such as ban creation from
// memory exhaustion on an oversized upload.
func (s *Server) maxBody(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}
