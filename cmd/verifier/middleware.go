package main

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

type logger struct {
	http.Handler
}

func (l *logger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	l.Handler.ServeHTTP(w, r)
	if r.URL.Path == "/ready" || r.URL.Path == "/health" {
		return
	}
	slog.InfoContext(r.Context(), "request",
		"method", r.Method,
		"url", r.URL.Path,
		"query", r.URL.Query(),
		"request_id", w.Header().Get("X-Request-Id"),
		"duration", time.Since(start))
}

type recoverer struct {
	http.Handler
}

func (r *recoverer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			slog.ErrorContext(req.Context(), "panic recovered", "error", err, "stack", debug.Stack())
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()
	r.Handler.ServeHTTP(w, req)
}

type requestID struct {
	http.Handler
}

func (h *requestID) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", id)
	h.Handler.ServeHTTP(w, r)
}

func WithMiddleware(h http.Handler) http.Handler {
	return &logger{
		&recoverer{
			&requestID{
				h,
			},
		},
	}
}
