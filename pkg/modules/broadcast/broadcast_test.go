package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/modules/bus"
	"github.com/go-go-golems/wisp/pkg/plugin"
	"github.com/go-go-golems/wisp/pkg/websocket"
)

func wsConfig() config.Configuration {
	return config.FromMap("test", map[string]any{
		"wisp.websocket.host": "127.0.0.1",
		"wisp.websocket.port": 0,
	})
}

func TestBroadcastReachesEverySession(t *testing.T) {
	srv := websocket.NewServer()
	h := New()
	reg := plugin.NewRegistry()
	reg.MustRegister(bus.New())
	reg.MustRegister(srv)
	reg.MustRegister(h)

	ctx := context.Background()
	require.NoError(t, reg.LinkAll(ctx))
	require.NoError(t, reg.ConfigureAll(ctx, wsConfig()))
	require.NoError(t, reg.StartAll(ctx))
	defer reg.DestroyAll(ctx)

	var conns []*gorilla.Conn
	for range 3 {
		c, resp, err := gorilla.DefaultDialer.Dial("ws://"+srv.Addr()+Path, nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
		defer c.Close()
		conns = append(conns, c)
	}
	require.Eventually(t, func() bool { return h.Count() == 3 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conns[1].WriteMessage(gorilla.TextMessage, []byte("hello all")))
	for i, c := range conns {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := c.ReadMessage()
		require.NoError(t, err, "conn %d", i)
		assert.Equal(t, "hello all", string(data))
	}

	require.NoError(t, conns[0].Close())
	require.Eventually(t, func() bool { return h.Count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastKeepsSenderOrder(t *testing.T) {
	srv := websocket.NewServer()
	h := New()
	reg := plugin.NewRegistry()
	reg.MustRegister(bus.New())
	reg.MustRegister(srv)
	reg.MustRegister(h)

	ctx := context.Background()
	require.NoError(t, reg.LinkAll(ctx))
	require.NoError(t, reg.ConfigureAll(ctx, wsConfig()))
	require.NoError(t, reg.StartAll(ctx))
	defer reg.DestroyAll(ctx)

	sender, resp, err := gorilla.DefaultDialer.Dial("ws://"+srv.Addr()+Path, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer sender.Close()
	listener, resp, err := gorilla.DefaultDialer.Dial("ws://"+srv.Addr()+Path, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer listener.Close()
	require.Eventually(t, func() bool { return h.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	var want []string
	for i := range 30 {
		msg := fmt.Sprintf("m%02d", i)
		want = append(want, msg)
		require.NoError(t, sender.WriteMessage(gorilla.TextMessage, []byte(msg)))
	}
	var got []string
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(5*time.Second)))
	for range want {
		_, data, err := listener.ReadMessage()
		require.NoError(t, err)
		got = append(got, string(data))
	}
	assert.Equal(t, want, got)
}

func TestLinkFailsWithoutBus(t *testing.T) {
	reg := plugin.NewRegistry()
	reg.MustRegister(websocket.NewServer())
	reg.MustRegister(New())

	err := reg.LinkAll(context.Background())
	var nf *plugin.CapabilityNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "wisp-bus-broker", nf.Capability)

	var lpe *plugin.LifecyclePhaseError
	require.True(t, errors.As(err, &lpe))
	assert.Equal(t, "wisp-broadcast", lpe.Module)
}
