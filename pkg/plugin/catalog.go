package plugin

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Factory builds a fresh module instance.
type Factory func() (Module, error)

// Catalog is the compiled-in set of module factories, keyed by name and kept
// in insertion order. That order is the default discovery order.
type Catalog struct {
	names     []string
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: map[string]Factory{}}
}

// Add registers a factory under name. Names are unique.
func (c *Catalog) Add(name string, f Factory) error {
	if name == "" {
		return errors.New("factory name is empty")
	}
	if f == nil {
		return errors.Errorf("factory %s is nil", name)
	}
	if _, ok := c.factories[name]; ok {
		return errors.Errorf("factory %s already registered", name)
	}
	c.names = append(c.names, name)
	c.factories[name] = f
	return nil
}

// MustAdd is Add for package-level wiring; it panics on error.
func (c *Catalog) MustAdd(name string, f Factory) {
	if err := c.Add(name, f); err != nil {
		panic(err)
	}
}

func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.factories[name]
	return ok
}

// New instantiates the module registered under name.
func (c *Catalog) New(name string) (Module, error) {
	f, ok := c.factories[name]
	if !ok {
		return nil, errors.Errorf("unknown module factory %q", name)
	}
	m, err := f()
	if err != nil {
		return nil, errors.Wrapf(err, "create module %s", name)
	}
	if m == nil {
		return nil, errors.Errorf("factory %s returned nil module", name)
	}
	return m, nil
}

// Bundles returns one enabled bundle per catalog entry, in catalog order.
func (c *Catalog) Bundles() []Bundle {
	out := make([]Bundle, 0, len(c.names))
	for _, n := range c.names {
		out = append(out, Bundle{Name: n, Factory: n, Enabled: true})
	}
	return out
}

// Instantiate builds a module for every enabled bundle, preserving order. An
// unknown factory fails the whole call.
func (c *Catalog) Instantiate(bundles []Bundle) ([]Module, error) {
	var out []Module
	for _, b := range bundles {
		if !b.Enabled {
			continue
		}
		m, err := c.New(b.Factory)
		if err != nil {
			return nil, errors.Wrapf(err, "bundle %s", b.Name)
		}
		out = append(out, m)
	}
	return out, nil
}

// Bundle is one packaged module: a directory under the module dir.
type Bundle struct {
	Dir     string
	Name    string
	Factory string
	Enabled bool
}

// ManifestFile is the optional per-bundle descriptor.
const ManifestFile = "module.yaml"

type manifest struct {
	Name    string `yaml:"name"`
	Factory string `yaml:"factory"`
	Enabled *bool  `yaml:"enabled"`
}

// DiscoverBundles lists the bundles under dir, one per sub-directory, sorted
// by directory name. A directory name may carry an ordering prefix such as
// "10-websocket"; the prefix is stripped to derive the default factory name.
// A module.yaml inside the bundle overrides name, factory and enabled.
func DiscoverBundles(dir string) ([]Bundle, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read module dir %s", dir)
	}

	var out []Bundle
	for _, de := range des {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		b := Bundle{
			Dir:     filepath.Join(dir, de.Name()),
			Name:    de.Name(),
			Factory: stripOrderPrefix(de.Name()),
			Enabled: true,
		}
		if err := readManifest(&b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func readManifest(b *Bundle) error {
	path := filepath.Join(b.Dir, ManifestFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	if m.Name != "" {
		b.Name = m.Name
	}
	if m.Factory != "" {
		b.Factory = m.Factory
	}
	if m.Enabled != nil {
		b.Enabled = *m.Enabled
	}
	return nil
}

func stripOrderPrefix(name string) string {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i == 0 || i == len(name) {
		return name
	}
	rest := strings.TrimLeft(name[i:], "-_.")
	if rest == "" {
		return name
	}
	return rest
}
