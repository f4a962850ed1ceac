package websocket

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait = 10 * time.Second
	// closeWait bounds how long a session waits for the peer to answer a
	// close frame before the connection is dropped.
	closeWait = 5 * time.Second
)

type outbound struct {
	kind   int
	data   []byte
	final  bool
	code   int
	reason string
	res    *Result
}

// Session is one live connection. Its Send methods may be called from any
// goroutine; writes are queued and flushed in issue order by a dedicated
// writer goroutine.
type Session struct {
	id     string
	path   string
	remote string
	conn   *websocket.Conn
	logger zerolog.Logger

	mu     sync.Mutex
	queue  []*outbound
	limit  int
	closed bool
	notify chan struct{}
	quit   chan struct{}
	// writerDone is closed when the writer goroutine has exited.
	writerDone chan struct{}

	// cur is the open writer of a fragmented outbound message.
	cur     io.WriteCloser
	curKind int

	goingAway  atomic.Bool
	closeTimer atomic.Pointer[time.Timer]
	err        error
}

func newSession(conn *websocket.Conn, path string, queueLimit int, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		id:         id,
		path:       path,
		remote:     conn.RemoteAddr().String(),
		conn:       conn,
		limit:      queueLimit,
		notify:     make(chan struct{}, 1),
		quit:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	s.logger = logger.With().
		Str("session", id).
		Str("path", path).
		Str("remote", s.remote).
		Logger()
	go s.writeLoop()
	return s
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Path() string       { return s.path }
func (s *Session) RemoteAddr() string { return s.remote }

// Err is the error that ended the session, nil for a clean close. It is set
// before OnClose is called.
func (s *Session) Err() error { return s.err }

func (s *Session) SendText(message string, isFinal bool) *Result {
	return s.enqueue(&outbound{kind: websocket.TextMessage, data: []byte(message), final: isFinal})
}

func (s *Session) SendBinary(data []byte, isFinal bool) *Result {
	return s.enqueue(&outbound{kind: websocket.BinaryMessage, data: append([]byte(nil), data...), final: isFinal})
}

func (s *Session) SendPing(data []byte) *Result {
	return s.enqueue(&outbound{kind: websocket.PingMessage, data: append([]byte(nil), data...), final: true})
}

func (s *Session) SendPong(data []byte) *Result {
	return s.enqueue(&outbound{kind: websocket.PongMessage, data: append([]byte(nil), data...), final: true})
}

// SendClose queues a close frame. Writes queued after it fail with
// ErrSessionClosed. The session ends when the peer answers, or after a grace
// period.
func (s *Session) SendClose(code int, reason string) *Result {
	return s.enqueue(&outbound{kind: websocket.CloseMessage, code: code, reason: reason, final: true})
}

// Abort drops the connection without a close handshake.
func (s *Session) Abort() {
	s.logger.Debug().Msg("ws session aborted")
	_ = s.conn.Close()
}

func (s *Session) enqueue(m *outbound) *Result {
	m.res = newResult()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return failedResult(ErrSessionClosed)
	}
	if len(s.queue) >= s.limit {
		s.mu.Unlock()
		return failedResult(ErrSendQueueFull)
	}
	s.queue = append(s.queue, m)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return m.res
}

// take returns the pending writes and whether the queue was shut.
func (s *Session) take() ([]*outbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q, s.closed
}

// shut stops accepting writes and fails the pending ones.
func (s *Session) shut() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, m := range pending {
		m.res.drop(ErrSessionClosed)
	}
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case <-s.notify:
		case <-s.quit:
			s.shut()
			s.finishFragment()
			return
		}
		batch, closed := s.take()
		sentClose := false
		for _, m := range batch {
			if sentClose {
				m.res.drop(ErrSessionClosed)
				continue
			}
			if !m.res.begin() {
				continue
			}
			err := s.write(m)
			m.res.finish(err)
			if err != nil {
				s.logger.Debug().Err(err).Msg("ws write failed")
			}
			if m.kind == websocket.CloseMessage {
				sentClose = true
				s.shut()
			}
		}
		closed = closed || sentClose
		if closed {
			// drain anything shut() left behind
			for {
				select {
				case <-s.quit:
					return
				case <-s.notify:
				}
			}
		}
	}
}

func (s *Session) write(m *outbound) error {
	switch m.kind {
	case websocket.PingMessage, websocket.PongMessage:
		return s.conn.WriteControl(m.kind, m.data, time.Now().Add(writeWait))
	case websocket.CloseMessage:
		s.finishFragment()
		err := s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(m.code, m.reason), time.Now().Add(writeWait))
		s.armCloseTimer(closeWait)
		return err
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if s.cur != nil && s.curKind != m.kind {
		s.finishFragment()
	}
	if s.cur == nil && m.final {
		return s.conn.WriteMessage(m.kind, m.data)
	}
	if s.cur == nil {
		w, err := s.conn.NextWriter(m.kind)
		if err != nil {
			return err
		}
		s.cur, s.curKind = w, m.kind
	}
	if _, err := s.cur.Write(m.data); err != nil {
		s.cur = nil
		return err
	}
	if m.final {
		w := s.cur
		s.cur = nil
		return w.Close()
	}
	return nil
}

func (s *Session) finishFragment() {
	if s.cur == nil {
		return
	}
	if err := s.cur.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("ws closing partial message failed")
	}
	s.cur = nil
}

// goAway starts a server-initiated close with 1001.
func (s *Session) goAway(timeout time.Duration) {
	s.goingAway.Store(true)
	s.shut()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "going away")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.logger.Debug().Err(err).Msg("ws going-away close failed")
		_ = s.conn.Close()
		return
	}
	s.armCloseTimer(timeout)
}

func (s *Session) armCloseTimer(d time.Duration) {
	t := time.AfterFunc(d, func() { _ = s.conn.Close() })
	if old := s.closeTimer.Swap(t); old != nil {
		old.Stop()
	}
}

// release stops the writer and the connection once the read loop is done.
func (s *Session) release() {
	if t := s.closeTimer.Swap(nil); t != nil {
		t.Stop()
	}
	s.shut()
	close(s.quit)
	<-s.writerDone
	_ = s.conn.Close()
}
