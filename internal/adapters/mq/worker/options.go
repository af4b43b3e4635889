package worker

import (
	"time"

	"github.com/okian/worthrank/pkg/logger"
)

// Option configures an InMemoryWorker. Pool options apply to every worker.
type Option func(*InMemoryWorker)

// WithName labels the worker in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets the parent logger. Each worker derives a named child.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFoldTimeout bounds a single histogram increment. Zero means no bound.
func WithFoldTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d >= 0 {
			w.foldTimeout = d
		}
	}
}
