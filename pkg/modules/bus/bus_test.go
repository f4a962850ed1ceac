package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/go-go-golems/wisp/pkg/plugin"
)

func TestPublishSubscribeInProcess(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Configure(ctx, config.FromMap("test", map[string]any{})))
	require.NoError(t, m.Start(ctx))
	defer func() { _ = m.Stop(context.Background()) }()

	ch, err := m.Subscribe(ctx, "room")
	require.NoError(t, err)

	want := make([]string, 50)
	for i := range want {
		want[i] = fmt.Sprintf("msg-%02d", i)
	}
	published := make(chan error, 1)
	go func() {
		for _, p := range want {
			if err := m.Publish(ctx, "room", []byte(p)); err != nil {
				published <- err
				return
			}
		}
		published <- nil
	}()

	var got []string
	for range want {
		select {
		case msg := <-ch:
			got = append(got, string(msg.Payload))
			msg.Ack()
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	assert.Equal(t, want, got)
	require.NoError(t, <-published)
}

func TestNotRunningBeforeStartAndAfterStop(t *testing.T) {
	m := New()
	ctx := context.Background()
	require.ErrorIs(t, m.Publish(ctx, "t", nil), ErrNotRunning)

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))
	_, err := m.Subscribe(ctx, "t")
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestRegisteredAsBroker(t *testing.T) {
	reg := plugin.NewRegistry()
	m := New()
	reg.MustRegister(m)

	b, err := plugin.FirstOf(reg, Capability)
	require.NoError(t, err)
	assert.Same(t, m, b)
}

func TestRedisUnreachableFailsStart(t *testing.T) {
	m := New()
	cfg := config.FromMap("test", map[string]any{
		"wisp.bus.redis.enabled": true,
		// reserved port, nothing listens there
		"wisp.bus.redis.addr": "127.0.0.1:1",
	})
	require.NoError(t, m.Configure(context.Background(), cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, m.Start(ctx))
}
