package main

import (
	"context"
	"log/slog"
	"net/http"
)

type readyOnce struct {
	done   bool
	checks []Readyable
}

func (r *readyOnce) Ready(ctx context.Context) error {
	if r.done {
		return nil
	}
	for _, check := range r.checks {
		if err := check.Ready(ctx); err != nil {
			return err
		}
	}
	// only ever flips to true; races just re-run the checks
	r.done = true
	return nil
}

type Readyable interface {
	Ready(context.Context) error
}

// ReadyFunc adapts a plain function to the Readyable interface.
type ReadyFunc func(context.Context) error

func (f ReadyFunc) Ready(ctx context.Context) error { return f(ctx) }

func (r *readyOnce) Add(f ...Readyable) {
	r.checks = append(r.checks, f...)
}

func (r *readyOnce) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if err := r.Ready(req.Context()); err != nil {
		http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.ErrorContext(req.Context(), "failed to write readiness response", "error", err)
	}
}
