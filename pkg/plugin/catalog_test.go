package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	for _, n := range []string{"logger", "websocket", "echo"} {
		name := n
		require.NoError(t, c.Add(name, func() (Module, error) {
			return &stubModule{name: name}, nil
		}))
	}
	return c
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	c := testCatalog(t)
	err := c.Add("echo", func() (Module, error) { return &stubModule{name: "x"}, nil })
	require.Error(t, err)
	assert.Equal(t, []string{"logger", "websocket", "echo"}, c.Names())
}

func TestCatalogInstantiateDefaultOrder(t *testing.T) {
	c := testCatalog(t)
	mods, err := c.Instantiate(c.Bundles())
	require.NoError(t, err)
	require.Len(t, mods, 3)
	assert.Equal(t, "logger", mods[0].Name())
	assert.Equal(t, "echo", mods[2].Name())

	_, err = c.New("missing")
	require.Error(t, err)
}

func writeBundle(t *testing.T, root, dir, manifest string) {
	t.Helper()
	p := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(p, 0o755))
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(p, ManifestFile), []byte(manifest), 0o644))
	}
}

func TestDiscoverBundles(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "20-echo", "")
	writeBundle(t, root, "10-websocket", "")
	writeBundle(t, root, "30-extra", "name: extra\nfactory: logger\n")
	writeBundle(t, root, "40-off", "enabled: false\n")
	writeBundle(t, root, ".hidden", "")
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644))

	bundles, err := DiscoverBundles(root)
	require.NoError(t, err)
	require.Len(t, bundles, 4)

	assert.Equal(t, "websocket", bundles[0].Factory)
	assert.Equal(t, "10-websocket", bundles[0].Name)
	assert.Equal(t, "echo", bundles[1].Factory)
	assert.Equal(t, "extra", bundles[2].Name)
	assert.Equal(t, "logger", bundles[2].Factory)
	assert.False(t, bundles[3].Enabled)

	c := testCatalog(t)
	_, err = c.Instantiate(bundles)
	// "off" is disabled, so its unknown factory is never looked up
	require.NoError(t, err)

	writeBundle(t, root, "50-nope", "")
	bundles, err = DiscoverBundles(root)
	require.NoError(t, err)
	_, err = c.Instantiate(bundles)
	require.Error(t, err)
}

func TestDiscoverBundlesBadManifest(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "echo", "name: [unterminated\n")
	_, err := DiscoverBundles(root)
	require.Error(t, err)
}

func TestStripOrderPrefix(t *testing.T) {
	assert.Equal(t, "echo", stripOrderPrefix("10-echo"))
	assert.Equal(t, "echo", stripOrderPrefix("echo"))
	assert.Equal(t, "2024", stripOrderPrefix("2024"))
	assert.Equal(t, "web_socket", stripOrderPrefix("05_web_socket"))
}
