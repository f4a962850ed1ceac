package websocket

import (
	"io"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// readLoop is the only goroutine that reads from the session and the only
// one that calls its handler.
func (s *Server) readLoop(sess *Session, h PathHandler) {
	defer s.releaseSlot()
	defer s.pool.Remove(sess)

	sess.logger.Debug().Msg("ws connected")
	for _, o := range s.observers {
		s.guard(sess, "observer open", func() { o.SessionOpened(sess) })
	}
	if op, ok := h.(SessionOpener); ok {
		s.guard(sess, "open", func() { op.OnOpen(sess) })
	}

	var code int
	var reason string
	for {
		kind, r, err := sess.conn.NextReader()
		if err == nil {
			err = s.deliver(sess, h, kind, r)
		}
		if err != nil {
			code, reason, sess.err = closeStatus(sess, err)
			break
		}
	}

	sess.release()
	if sess.err != nil {
		sess.logger.Debug().Err(sess.err).Int("code", code).Msg("ws read loop end")
	}
	s.guard(sess, "close", func() { h.OnClose(sess, code, reason) })
	for _, o := range s.observers {
		s.guard(sess, "observer close", func() { o.SessionClosed(sess, code, reason) })
	}
	sess.logger.Debug().Int("code", code).Str("reason", reason).Msg("ws disconnected")
}

// deliver hands one inbound message to h, whole or in FragmentSize chunks.
func (s *Server) deliver(sess *Session, h PathHandler, kind int, r io.Reader) error {
	fk := FrameText
	if kind == websocket.BinaryMessage {
		fk = FrameBinary
	}
	emit := func(chunk []byte, final bool) {
		for _, o := range s.observers {
			s.guard(sess, "observer frame", func() { o.FrameReceived(sess, fk, len(chunk)) })
		}
		if fk == FrameText {
			s.guard(sess, "text", func() { h.OnText(sess, string(chunk), final) })
		} else {
			s.guard(sess, "binary", func() { h.OnBinary(sess, chunk, final) })
		}
	}

	if s.settings.FragmentSize <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		emit(data, true)
		return nil
	}

	// hold one chunk back so the last one can be flagged final
	var pending []byte
	for {
		buf := make([]byte, s.settings.FragmentSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if pending != nil {
				emit(pending, false)
			}
			pending = buf[:n]
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	if pending == nil {
		pending = []byte{}
	}
	emit(pending, true)
	return nil
}

// guard runs a handler callback, turning a panic into a 1011 close.
func (s *Server) guard(sess *Session, what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			sess.logger.Error().Interface("panic", p).Str("callback", what).Msg("ws handler panicked")
			sess.SendClose(websocket.CloseInternalServerErr, "internal error")
		}
	}()
	fn()
}

// closeStatus maps the error that ended a read loop to the code and reason
// reported to OnClose, plus the error to keep on the session.
func closeStatus(sess *Session, err error) (int, string, error) {
	if sess.goingAway.Load() {
		return websocket.CloseGoingAway, "going away", nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, nil
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return websocket.CloseMessageTooBig, "message too big", err
	}
	// gorilla reports every framing violation as a plain "websocket: ..."
	// error, after answering the peer with 1002 itself
	if reason, ok := strings.CutPrefix(err.Error(), "websocket: "); ok {
		return websocket.CloseProtocolError, reason, &UnsupportedFrameError{SessionID: sess.id, Err: err}
	}
	return websocket.CloseAbnormalClosure, "", err
}
