package engine

import (
	"context"
	"sync"

	"github.com/razeghi71/dqflow/errs"
)

// Readiness is a one-shot signal that an engine may accept calls.
type Readiness struct {
	mu    sync.Mutex
	ready bool
	ch    chan struct{}
}

// NewReadiness returns an unsignalled Readiness.
func NewReadiness() *Readiness {
	return &Readiness{ch: make(chan struct{})}
}

// Process is the readiness of the engine used by this process.
var Process = NewReadiness()

// MarkReady signals readiness. Calling it again has no effect.
func (r *Readiness) MarkReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return
	}
	r.ready = true
	close(r.ch)
}

// Ready reports whether MarkReady has been called.
func (r *Readiness) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Wait blocks until ready or until ctx is done.
func (r *Readiness) Wait(ctx context.Context) error {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return errs.Wrap(errs.CodeNotReady, ctx.Err(), "engine not ready")
	}
}

// Reset returns r to the unsignalled state.
func (r *Readiness) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return
	}
	r.ready = false
	r.ch = make(chan struct{})
}

// Check returns a NotReady error until r is ready.
func (r *Readiness) Check() error {
	if r.Ready() {
		return nil
	}
	return errs.NotReady("engine not ready")
}
