package websocket

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSessionClosed resolves writes issued after, or pending at, session close.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendQueueFull resolves writes that do not fit in the session's queue.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrWriteCanceled resolves writes canceled before reaching the wire.
	ErrWriteCanceled = errors.New("write canceled")
)

// DuplicatePathError is raised at link when two handlers claim the same
// normalized path. The server never starts listening.
type DuplicatePathError struct {
	Path      string
	Existing  string
	Duplicate string
}

func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("path %s claimed by both %s and %s", e.Path, e.Existing, e.Duplicate)
}

// UnsupportedFrameError terminates a session that received a malformed or
// unexpected frame, such as a reserved opcode or reserved header bits.
type UnsupportedFrameError struct {
	SessionID string
	Err       error
}

func (e *UnsupportedFrameError) Error() string {
	return fmt.Sprintf("session %s: unsupported frame: %v", e.SessionID, e.Err)
}

func (e *UnsupportedFrameError) Unwrap() error { return e.Err }
