package websocket

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/wisp/pkg/plugin"
)

// PathHandler receives the frames of every connection upgraded on Path.
//
// Callbacks for one session run on that session's read goroutine, in wire
// order. They should not block: long work belongs on another goroutine that
// replies through the Session.
type PathHandler interface {
	Path() string
	// OnText delivers a text message, or one chunk of it when isFinal is false.
	OnText(s *Session, text string, isFinal bool)
	OnBinary(s *Session, data []byte, isFinal bool)
	// OnClose is the last callback for s.
	OnClose(s *Session, code int, reason string)
}

// SessionOpener is optionally implemented by a PathHandler that wants to know
// about a session before its first frame.
type SessionOpener interface {
	OnOpen(s *Session)
}

// FrameKind tags inbound data frames for observers.
type FrameKind string

const (
	FrameText   FrameKind = "text"
	FrameBinary FrameKind = "binary"
)

// SessionObserver watches every session on every path. Observers are called
// synchronously on the session's read goroutine.
type SessionObserver interface {
	SessionOpened(s *Session)
	FrameReceived(s *Session, kind FrameKind, size int)
	SessionClosed(s *Session, code int, reason string)
}

var (
	PathHandlerCapability     = plugin.NewContract[PathHandler]("wisp-websocket-path-handler")
	SessionObserverCapability = plugin.NewContract[SessionObserver]("wisp-websocket-session-observer")
	ServerCapability          = plugin.NewContract[*Server]("wisp-websocket-server")
)

// NormalizePath canonicalizes a handler or request path: a leading slash, no
// trailing slash and no dot segments. Case is preserved.
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("empty path")
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p), nil
}
