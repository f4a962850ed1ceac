package websocket

import (
	"context"
	"sync/atomic"
)

const (
	resultPending int32 = iota
	resultWriting
	resultDone
)

// Result tracks one queued write. It resolves once the frame has been handed
// to the connection, or with an error when the write was dropped.
type Result struct {
	state atomic.Int32
	done  chan struct{}
	err   error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

func failedResult(err error) *Result {
	r := newResult()
	r.state.Store(resultDone)
	r.err = err
	close(r.done)
	return r
}

// Done is closed when the write has resolved.
func (r *Result) Done() <-chan struct{} { return r.done }

// Err returns the outcome. It is nil until Done is closed.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the write resolves or ctx ends.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel drops the write if it has not started. It reports whether the
// write was canceled.
func (r *Result) Cancel() bool {
	if !r.state.CompareAndSwap(resultPending, resultDone) {
		return false
	}
	r.err = ErrWriteCanceled
	close(r.done)
	return true
}

// begin claims the write for the writer goroutine.
func (r *Result) begin() bool {
	return r.state.CompareAndSwap(resultPending, resultWriting)
}

func (r *Result) finish(err error) {
	r.err = err
	r.state.Store(resultDone)
	close(r.done)
}

// drop resolves a write that never started.
func (r *Result) drop(err error) {
	if r.state.CompareAndSwap(resultPending, resultDone) {
		r.err = err
		close(r.done)
	}
}
