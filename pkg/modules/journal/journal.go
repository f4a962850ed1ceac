// Package journal records WebSocket sessions into SQLite.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/plugin"
	"github.com/go-go-golems/wisp/pkg/websocket"
)

const (
	keyEnabled = "wisp.journal.enabled"
	keyDSN     = "wisp.journal.dsn"
	keyBuffer  = "wisp.journal.buffer"

	DefaultDSN = "file:wisp-journal.db?_busy_timeout=5000"
)

type eventKind int

const (
	eventOpen eventKind = iota
	eventClose
)

type event struct {
	kind   eventKind
	record SessionRecord
}

// Module is a SessionObserver. Frame counters are kept in memory and written
// with the close record; all database writes happen on one goroutine.
type Module struct {
	plugin.Base

	enabled bool
	dsn     string
	buffer  int

	mu       sync.Mutex
	store    *SQLiteStore
	events   chan event
	done     chan struct{}
	counters map[string]*SessionRecord

	logger zerolog.Logger
}

var _ websocket.SessionObserver = (*Module)(nil)

func New() *Module {
	return &Module{
		dsn:      DefaultDSN,
		buffer:   1024,
		counters: map[string]*SessionRecord{},
	}
}

func (m *Module) Name() string { return "wisp-journal" }

func (m *Module) Capabilities() []plugin.Capability {
	return []plugin.Capability{websocket.SessionObserverCapability}
}

func (m *Module) Configure(_ context.Context, cfg config.Configuration) error {
	var err error
	if cfg.HasPath(keyEnabled) {
		if m.enabled, err = cfg.GetBoolean(keyEnabled); err != nil {
			return err
		}
	}
	if cfg.HasPath(keyDSN) {
		if m.dsn, err = cfg.GetString(keyDSN); err != nil {
			return err
		}
	}
	if cfg.HasPath(keyBuffer) {
		if m.buffer, err = cfg.GetInt(keyBuffer); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) Start(context.Context) error {
	m.logger = log.With().Str("component", "journal").Logger()
	if !m.enabled {
		m.logger.Debug().Msg("journal disabled")
		return nil
	}
	store, err := NewSQLiteStore(m.dsn)
	if err != nil {
		return err
	}
	events := make(chan event, max(m.buffer, 1))
	done := make(chan struct{})

	m.mu.Lock()
	m.store, m.events, m.done = store, events, done
	m.mu.Unlock()

	go m.writeLoop(store, events, done)
	m.logger.Info().Str("dsn", m.dsn).Msg("journal started")
	return nil
}

// Stop drains pending events and closes the database.
func (m *Module) Stop(context.Context) error {
	m.mu.Lock()
	store, events, done := m.store, m.events, m.done
	m.store, m.events, m.done = nil, nil, nil
	m.mu.Unlock()
	if events == nil {
		return nil
	}
	close(events)
	<-done
	return store.Close()
}

// Store is the open journal, nil unless running.
func (m *Module) Store() *SQLiteStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

func (m *Module) writeLoop(store *SQLiteStore, events <-chan event, done chan<- struct{}) {
	defer close(done)
	ctx := context.Background()
	for ev := range events {
		var err error
		switch ev.kind {
		case eventOpen:
			err = store.RecordOpen(ctx, ev.record)
		case eventClose:
			err = store.RecordClose(ctx, ev.record)
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("session", ev.record.ID).Msg("journal write failed")
		}
	}
}

// emit hands ev to the writer; the mutex keeps it from racing Stop's close.
func (m *Module) emit(ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.logger.Warn().Str("session", ev.record.ID).Msg("journal buffer full, dropping event")
	}
}

func (m *Module) SessionOpened(s *websocket.Session) {
	r := &SessionRecord{ID: s.ID(), Path: s.Path(), Remote: s.RemoteAddr(), OpenedAt: time.Now()}
	m.mu.Lock()
	m.counters[s.ID()] = r
	m.mu.Unlock()
	m.emit(event{kind: eventOpen, record: *r})
}

func (m *Module) FrameReceived(s *websocket.Session, kind websocket.FrameKind, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.counters[s.ID()]
	if !ok {
		return
	}
	if kind == websocket.FrameBinary {
		r.BinaryFrames++
	} else {
		r.TextFrames++
	}
	r.BytesIn += int64(size)
}

func (m *Module) SessionClosed(s *websocket.Session, code int, reason string) {
	m.mu.Lock()
	r, ok := m.counters[s.ID()]
	delete(m.counters, s.ID())
	m.mu.Unlock()
	if !ok {
		return
	}
	r.ClosedAt = time.Now()
	r.CloseCode = code
	r.CloseReason = reason
	m.emit(event{kind: eventClose, record: *r})
}
