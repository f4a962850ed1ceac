// Package bus provides the message broker capability: in-process Watermill
// go channels by default, Redis Streams when wisp.bus.redis.enabled is set.
package bus

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/plugin"
	"github.com/go-go-golems/wisp/pkg/redisstream"
)

// Broker publishes payloads to topics and fans them out to subscribers.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe delivers messages until ctx ends or the broker stops. Every
	// message must be acked or nacked.
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

var Capability = plugin.NewContract[Broker]("wisp-bus-broker")

var ErrNotRunning = errors.New("bus is not running")

// Module is the Broker backed by Watermill. The backend is built at start and
// closed at stop.
type Module struct {
	plugin.Base

	redis redisstream.Settings

	mu        sync.RWMutex
	pub       message.Publisher
	sub       message.Subscriber
	transport *redisstream.Transport
	channel   *gochannel.GoChannel
}

var _ Broker = (*Module)(nil)

func New() *Module { return &Module{redis: redisstream.DefaultSettings()} }

func (m *Module) Name() string { return "wisp-bus" }

func (m *Module) Capabilities() []plugin.Capability {
	return []plugin.Capability{Capability}
}

func (m *Module) Configure(_ context.Context, cfg config.Configuration) error {
	s, err := redisstream.LoadSettings(cfg)
	if err != nil {
		return err
	}
	m.redis = s
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	logger := log.With().Str("component", "bus").Logger()

	if m.redis.Enabled {
		t, err := redisstream.Build(ctx, m.redis)
		if err != nil {
			return err
		}
		m.transport, m.pub, m.sub = t, t.Publisher, t.Subscriber
		logger.Info().Str("addr", m.redis.Addr).Str("group", m.redis.Group).Msg("bus using redis streams")
		return nil
	}

	// Publish waits for the subscriber's ack so a topic is delivered in
	// publish order; subscribers must Ack or Nack every message.
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, redisstream.NewWatermillLogger(log.Logger))
	m.channel, m.pub, m.sub = ch, ch, ch
	logger.Info().Msg("bus using in-process channels")
	return nil
}

func (m *Module) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	switch {
	case m.transport != nil:
		err = m.transport.Close()
	case m.channel != nil:
		err = m.channel.Close()
	}
	m.transport, m.channel, m.pub, m.sub = nil, nil, nil, nil
	return err
}

func (m *Module) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	pub := m.pub
	m.mu.RUnlock()
	if pub == nil {
		return ErrNotRunning
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return errors.Wrapf(pub.Publish(topic, msg), "publish to %s", topic)
}

func (m *Module) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	m.mu.RLock()
	sub := m.sub
	transport := m.transport
	group := m.redis.Group
	m.mu.RUnlock()
	if sub == nil {
		return nil, ErrNotRunning
	}
	if transport != nil {
		if err := transport.EnsureGroupAtTail(ctx, topic, group); err != nil {
			return nil, errors.Wrapf(err, "prepare consumer group for %s", topic)
		}
	}
	ch, err := sub.Subscribe(ctx, topic)
	return ch, errors.Wrapf(err, "subscribe to %s", topic)
}
