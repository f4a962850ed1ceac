// Package broadcast serves /broadcast: every text message from any session is
// relayed through the bus to every session on the path.
package broadcast

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/wisp/pkg/modules/bus"
	"github.com/go-go-golems/wisp/pkg/plugin"
	"github.com/go-go-golems/wisp/pkg/websocket"
)

const (
	Path  = "/broadcast"
	Topic = "wisp.broadcast"
)

type Handler struct {
	plugin.Base

	broker bus.Broker
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*websocket.Session
	partial  map[string][]byte

	cancel context.CancelFunc
	done   chan struct{}
}

var _ websocket.PathHandler = (*Handler)(nil)

func New() *Handler {
	return &Handler{
		sessions: map[string]*websocket.Session{},
		partial:  map[string][]byte{},
	}
}

func (h *Handler) Name() string { return "wisp-broadcast" }

func (h *Handler) Capabilities() []plugin.Capability {
	return []plugin.Capability{websocket.PathHandlerCapability}
}

func (h *Handler) Path() string { return Path }

// Link requires a bus; without one the host does not start.
func (h *Handler) Link(_ context.Context, loc plugin.Locator) error {
	b, err := plugin.FirstOf(loc, bus.Capability)
	if err != nil {
		return err
	}
	h.broker = b
	return nil
}

func (h *Handler) Start(ctx context.Context) error {
	h.logger = log.With().Str("component", "broadcast").Logger()
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	msgs, err := h.broker.Subscribe(subCtx, Topic)
	if err != nil {
		cancel()
		return errors.Wrap(err, "subscribe to broadcast topic")
	}
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.relay(msgs)
	return nil
}

func (h *Handler) Stop(context.Context) error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	<-h.done
	h.cancel = nil
	return nil
}

func (h *Handler) relay(msgs <-chan *message.Message) {
	defer close(h.done)
	for msg := range msgs {
		text := string(msg.Payload)
		for _, s := range h.snapshot() {
			s.SendText(text, true)
		}
		msg.Ack()
	}
}

func (h *Handler) snapshot() []*websocket.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*websocket.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Count reports sessions currently joined.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Handler) OnOpen(s *websocket.Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()
}

// OnText publishes each complete message once its final chunk arrives.
func (h *Handler) OnText(s *websocket.Session, text string, isFinal bool) {
	h.mu.Lock()
	buf := append(h.partial[s.ID()], text...)
	if !isFinal {
		h.partial[s.ID()] = buf
		h.mu.Unlock()
		return
	}
	delete(h.partial, s.ID())
	h.mu.Unlock()

	if err := h.broker.Publish(context.Background(), Topic, buf); err != nil {
		h.logger.Warn().Err(err).Str("session", s.ID()).Msg("broadcast publish failed")
	}
}

func (h *Handler) OnBinary(*websocket.Session, []byte, bool) {}

func (h *Handler) OnClose(s *websocket.Session, _ int, _ string) {
	h.mu.Lock()
	delete(h.sessions, s.ID())
	delete(h.partial, s.ID())
	h.mu.Unlock()
}
