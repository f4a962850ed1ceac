package echo

import (
	"context"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/plugin"
	"github.com/go-go-golems/wisp/pkg/websocket"
)

func startEcho(t *testing.T, ws map[string]any) *gorilla.Conn {
	t.Helper()
	ws["host"] = "127.0.0.1"
	ws["port"] = 0
	cfg := config.FromMap("test", map[string]any{"wisp": map[string]any{"websocket": ws}})

	srv := websocket.NewServer()
	reg := plugin.NewRegistry()
	reg.MustRegister(srv)
	reg.MustRegister(New())
	ctx := context.Background()
	require.NoError(t, reg.LinkAll(ctx))
	require.NoError(t, reg.ConfigureAll(ctx, cfg))
	require.NoError(t, reg.StartAll(ctx))
	t.Cleanup(func() { reg.DestroyAll(context.Background()) })

	conn, resp, err := gorilla.DefaultDialer.Dial("ws://"+srv.Addr()+Path, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *gorilla.Conn, kind int, payload []byte) (int, []byte) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(kind, payload))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	k, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return k, data
}

func TestEchoUppercasesText(t *testing.T) {
	conn := startEcho(t, map[string]any{})

	kind, data := roundTrip(t, conn, gorilla.TextMessage, []byte("hello"))
	assert.Equal(t, gorilla.TextMessage, kind)
	assert.Equal(t, "HELLO", string(data))

	_, data = roundTrip(t, conn, gorilla.TextMessage, []byte("straße"))
	assert.Equal(t, "STRASSE", string(data))
}

func TestEchoReturnsBinaryUnchanged(t *testing.T) {
	conn := startEcho(t, map[string]any{})
	kind, data := roundTrip(t, conn, gorilla.BinaryMessage, []byte{0xde, 0xad})
	assert.Equal(t, gorilla.BinaryMessage, kind)
	assert.Equal(t, []byte{0xde, 0xad}, data)
}

func TestEchoReassemblesChunks(t *testing.T) {
	conn := startEcho(t, map[string]any{"fragment-size": 3})

	_, data := roundTrip(t, conn, gorilla.TextMessage, []byte("fragmented message"))
	assert.Equal(t, "FRAGMENTED MESSAGE", string(data))

	// the buffer is reset between messages
	_, data = roundTrip(t, conn, gorilla.TextMessage, []byte("ok"))
	assert.Equal(t, "OK", string(data))
}

func TestCollectInterleavesKinds(t *testing.T) {
	h := New()
	text := func(p *partial) *[]byte { return &p.text }
	bin := func(p *partial) *[]byte { return &p.binary }

	_, done := h.collect("s", []byte("ab"), false, text)
	require.False(t, done)
	_, done = h.collect("s", []byte{1}, false, bin)
	require.False(t, done)

	msg, done := h.collect("s", []byte("c"), true, text)
	require.True(t, done)
	assert.Equal(t, "abc", string(msg))
	assert.Contains(t, h.pending, "s")

	msg, done = h.collect("s", []byte{2}, true, bin)
	require.True(t, done)
	assert.Equal(t, []byte{1, 2}, msg)
	assert.NotContains(t, h.pending, "s")
}
