package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/modules/echo"
	"github.com/go-go-golems/wisp/pkg/plugin"
	"github.com/go-go-golems/wisp/pkg/websocket"
)

func scrape(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsCountSessionsAndFrames(t *testing.T) {
	cfg := config.FromMap("test", map[string]any{
		"wisp": map[string]any{
			"metrics":   map[string]any{"enabled": true, "addr": "127.0.0.1:0"},
			"websocket": map[string]any{"host": "127.0.0.1", "port": 0},
		},
	})
	m := New()
	srv := websocket.NewServer()
	reg := plugin.NewRegistry()
	reg.MustRegister(m)
	reg.MustRegister(srv)
	reg.MustRegister(echo.New())
	ctx := context.Background()
	require.NoError(t, reg.LinkAll(ctx))
	require.NoError(t, reg.ConfigureAll(ctx, cfg))
	require.NoError(t, reg.StartAll(ctx))
	defer reg.DestroyAll(ctx)
	require.NotEmpty(t, m.Addr())

	conn, resp, err := gorilla.DefaultDialer.Dial("ws://"+srv.Addr()+echo.Path, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte("hey")))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	body := scrape(t, m.Addr())
	assert.Contains(t, body, "wisp_sessions_active 1")
	assert.Contains(t, body, "wisp_sessions_total 1")
	assert.Contains(t, body, `wisp_frames_total{kind="text",path="/echo"} 1`)
	assert.Contains(t, body, `wisp_received_bytes_total{path="/echo"} 3`)

	require.NoError(t, conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	require.Eventually(t, func() bool { return srv.SessionCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	body = scrape(t, m.Addr())
	assert.Contains(t, body, "wisp_sessions_active 0")
	assert.Contains(t, body, `wisp_session_closes_total{code="1000",path="/echo"} 1`)
}

func TestDisabledMetricsDoNotListen(t *testing.T) {
	m := New()
	ctx := context.Background()
	require.NoError(t, m.Configure(ctx, config.FromMap("test", map[string]any{})))
	require.NoError(t, m.Start(ctx))
	assert.Empty(t, m.Addr())
	require.NoError(t, m.Stop(ctx))
}

func TestCloseCodeLabel(t *testing.T) {
	assert.Equal(t, "1001", closeCodeLabel(1001))
	assert.Equal(t, "4xxx", closeCodeLabel(4321))
	assert.Equal(t, "other", closeCodeLabel(3000))
}
