package websocket

import (
	"sync"
	"time"
)

// sessionPool tracks the live sessions of a server so shutdown can reach
// all of them.
type sessionPool struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func newSessionPool() *sessionPool {
	return &sessionPool{sessions: map[*Session]struct{}{}}
}

func (p *sessionPool) Add(s *Session) {
	if p == nil || s == nil {
		return
	}
	p.mu.Lock()
	p.sessions[s] = struct{}{}
	p.mu.Unlock()
}

func (p *sessionPool) Remove(s *Session) {
	if p == nil || s == nil {
		return
	}
	p.mu.Lock()
	delete(p.sessions, s)
	p.mu.Unlock()
}

func (p *sessionPool) Count() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *sessionPool) snapshot() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, 0, len(p.sessions))
	for s := range p.sessions {
		out = append(out, s)
	}
	return out
}

// GoAwayAll starts a 1001 close on every session. Sessions that do not
// finish the handshake within timeout are dropped.
func (p *sessionPool) GoAwayAll(timeout time.Duration) {
	if p == nil {
		return
	}
	for _, s := range p.snapshot() {
		s.goAway(timeout)
	}
}

// AbortAll drops every connection without a handshake.
func (p *sessionPool) AbortAll() {
	if p == nil {
		return
	}
	for _, s := range p.snapshot() {
		s.Abort()
	}
}
