// Package echo serves /echo: text comes back upper-cased, binary unchanged.
package echo

import (
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/go-go-golems/wisp/pkg/plugin"
	"github.com/go-go-golems/wisp/pkg/websocket"
)

const Path = "/echo"

type partial struct {
	text   []byte
	binary []byte
}

// Handler buffers non-final chunks per session and replies once per complete
// message.
type Handler struct {
	plugin.Base

	mu      sync.Mutex
	pending map[string]*partial
}

var _ websocket.PathHandler = (*Handler)(nil)

func New() *Handler {
	return &Handler{pending: map[string]*partial{}}
}

func (h *Handler) Name() string { return "wisp-echo" }

func (h *Handler) Capabilities() []plugin.Capability {
	return []plugin.Capability{websocket.PathHandlerCapability}
}

func (h *Handler) Path() string { return Path }

func (h *Handler) OnText(s *websocket.Session, text string, isFinal bool) {
	msg, done := h.collect(s.ID(), []byte(text), isFinal, func(p *partial) *[]byte { return &p.text })
	if !done {
		return
	}
	// Caser is stateful, so one per message
	s.SendText(cases.Upper(language.AmericanEnglish).String(string(msg)), true)
}

func (h *Handler) OnBinary(s *websocket.Session, data []byte, isFinal bool) {
	msg, done := h.collect(s.ID(), data, isFinal, func(p *partial) *[]byte { return &p.binary })
	if !done {
		return
	}
	s.SendBinary(msg, true)
}

func (h *Handler) OnClose(s *websocket.Session, _ int, _ string) {
	h.mu.Lock()
	delete(h.pending, s.ID())
	h.mu.Unlock()
}

// collect appends chunk to the session's buffer and returns the whole message
// once isFinal is set.
func (h *Handler) collect(id string, chunk []byte, isFinal bool, buf func(*partial) *[]byte) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pending[id]
	if !ok {
		if isFinal {
			return chunk, true
		}
		p = &partial{}
		h.pending[id] = p
	}
	b := buf(p)
	*b = append(*b, chunk...)
	if !isFinal {
		return nil, false
	}
	msg := *b
	*b = nil
	if p.text == nil && p.binary == nil {
		delete(h.pending, id)
	}
	return msg, true
}
