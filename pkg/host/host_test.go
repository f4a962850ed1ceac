package host

import (
	"context"
	"os"
	"path/filepath"
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

var testEnv = []string{
	"WISP_WEBSOCKET_HOST=127.0.0.1",
	"WISP_WEBSOCKET_PORT=0",
	"WISP_LOGGER_LEVEL=warn",
}

func serverOf(t *testing.T, h *Host) *websocket.Server {
	t.Helper()
	srv, err := plugin.FirstOf(h.Registry(), websocket.ServerCapability)
	require.NoError(t, err)
	return srv
}

func TestBootDefaultCatalogServesEcho(t *testing.T) {
	h := New(Options{BaseDir: t.TempDir(), Environ: testEnv})
	ctx := context.Background()
	require.NoError(t, h.Boot(ctx))
	defer h.Shutdown(ctx)

	assert.Equal(t, DefaultCatalog().Names(), registeredNames(h))
	assert.Equal(t, plugin.PhaseStarted, h.Registry().Phase())

	srv := serverOf(t, h)
	assert.ElementsMatch(t, []string{"/echo", "/broadcast"}, srv.Paths())

	conn, resp, err := gorilla.DefaultDialer.Dial("ws://"+srv.Addr()+echo.Path, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte("hello")))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(msg))

	require.Error(t, h.Boot(ctx))
}

func registeredNames(h *Host) []string {
	var names []string
	for _, m := range h.Registry().Modules() {
		names = append(names, m.Name()[len("wisp-"):])
	}
	return names
}

func TestBundlesFromModuleDir(t *testing.T) {
	base := t.TempDir()
	mods := filepath.Join(base, "modules")
	for _, d := range []string{"00-logger", "10-websocket", "20-echo", "30-broadcast"} {
		require.NoError(t, os.MkdirAll(filepath.Join(mods, d), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(mods, "30-broadcast", plugin.ManifestFile),
		[]byte("enabled: false\n"), 0o644))

	h := New(Options{BaseDir: base, Environ: testEnv})
	dir, ok, err := h.ModuleDir()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, mods, dir)

	ctx := context.Background()
	require.NoError(t, h.Boot(ctx))
	defer h.Shutdown(ctx)
	assert.Equal(t, []string{"logger", "websocket", "echo"}, registeredNames(h))
	assert.Equal(t, []string{"/echo"}, serverOf(t, h).Paths())
}

func TestMissingExplicitModuleDir(t *testing.T) {
	h := New(Options{ModuleDir: filepath.Join(t.TempDir(), "nope"), Environ: testEnv})
	_, _, err := h.ModuleDir()
	require.Error(t, err)
	require.Error(t, h.Boot(context.Background()))
}

func TestUnknownFactoryFailsBoot(t *testing.T) {
	mods := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mods, "mystery"), 0o755))
	h := New(Options{ModuleDir: mods, Environ: testEnv})
	err := h.Boot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

type otherEcho struct{ *echo.Handler }

func (otherEcho) Name() string { return "wisp-echo-2" }

func TestStartupFailureShutsDown(t *testing.T) {
	cat := plugin.NewCatalog()
	cat.MustAdd("websocket", func() (plugin.Module, error) { return websocket.NewServer(), nil })
	cat.MustAdd("echo", func() (plugin.Module, error) { return echo.New(), nil })
	cat.MustAdd("echo-2", func() (plugin.Module, error) { return otherEcho{echo.New()}, nil })

	h := New(Options{BaseDir: t.TempDir(), Environ: testEnv, Catalog: cat})
	err := h.Boot(context.Background())
	var dup *websocket.DuplicatePathError
	require.ErrorAs(t, err, &dup)
	var phase *plugin.LifecyclePhaseError
	require.ErrorAs(t, err, &phase)
	assert.Equal(t, plugin.PhaseDestroyed, h.Registry().Phase())
	assert.Empty(t, serverOf(t, h).Addr())
}

func TestLoadConfigLayers(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wisp.toml")
	require.NoError(t, os.WriteFile(file, []byte("[wisp.websocket]\nport = 9000\nfragment-size = 16\n"), 0o644))

	h := New(Options{
		ConfigFile: file,
		Environ:    []string{"WISP_WEBSOCKET_PORT=9100"},
		Overrides:  config.Map{"wisp": map[string]any{"logger": map[string]any{"level": "debug"}}},
	})
	cfg, err := h.LoadConfig()
	require.NoError(t, err)

	port, err := cfg.GetInt("wisp.websocket.port")
	require.NoError(t, err)
	assert.Equal(t, 9100, port)
	fs, err := cfg.GetInt("wisp.websocket.fragment-size")
	require.NoError(t, err)
	assert.Equal(t, 16, fs)
	lvl, err := cfg.GetString("wisp.logger.level")
	require.NoError(t, err)
	assert.Equal(t, "debug", lvl)

	_, err = cfg.GetString("wisp.nope")
	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
}

func TestEmbeddedConfig(t *testing.T) {
	h := New(Options{Environ: []string{}})
	cfg, err := h.LoadConfig()
	require.NoError(t, err)
	d, err := cfg.GetDuration("wisp.websocket.shutdown-timeout")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
	assert.False(t, cfg.HasPath("wisp.websocket.port"))

	s, err := websocket.LoadSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, websocket.DefaultPort, s.Port)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	h := New(Options{BaseDir: t.TempDir(), Environ: testEnv})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool { return h.Registry().Phase() == plugin.PhaseStarted },
		5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, plugin.PhaseDestroyed, h.Registry().Phase())
}
