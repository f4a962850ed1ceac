package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/magiconair/properties"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Factory parses one configuration file format.
type Factory interface {
	Name() string
	CanHandle(path string) bool
	Parse(r io.Reader) (Source, error)
}

// DefaultFactories returns the formats understood out of the box.
func DefaultFactories() []Factory {
	return []Factory{YAMLFactory{}, TOMLFactory{}, PropertiesFactory{}}
}

// ErrUnsupportedFormat is returned when no factory accepts a file.
var ErrUnsupportedFormat = errors.New("unsupported configuration format")

// OpenFile parses path with the first factory that can handle it.
func OpenFile(path string, factories ...Factory) (Source, error) {
	if len(factories) == 0 {
		factories = DefaultFactories()
	}
	for _, f := range factories {
		if !f.CanHandle(path) {
			continue
		}
		fh, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = fh.Close() }()
		src, err := f.Parse(fh)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s as %s", path, f.Name())
		}
		return src, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "unable to handle configuration type: %s", path)
}

// LoadFile parses path and returns it as a Configuration.
func LoadFile(path string, factories ...Factory) (Configuration, error) {
	src, err := OpenFile(path, factories...)
	if err != nil {
		return nil, err
	}
	return New(path, src), nil
}

func hasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// YAMLFactory handles .yaml, .yml and .json files (JSON being a YAML subset).
type YAMLFactory struct{}

func (YAMLFactory) Name() string { return "yaml" }

func (YAMLFactory) CanHandle(path string) bool {
	return hasExt(path, ".yaml", ".yml", ".json")
}

func (YAMLFactory) Parse(r io.Reader) (Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return Map(m), nil
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return Map(m), nil
}

// TOMLFactory handles .toml files.
type TOMLFactory struct{}

func (TOMLFactory) Name() string { return "toml" }

func (TOMLFactory) CanHandle(path string) bool { return hasExt(path, ".toml") }

func (TOMLFactory) Parse(r io.Reader) (Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return Map(m), nil
}

// PropertiesFactory handles Java-style .properties files. Keys stay flat
// (foo.int = 5 is stored under "foo.int").
type PropertiesFactory struct{}

func (PropertiesFactory) Name() string { return "properties" }

func (PropertiesFactory) CanHandle(path string) bool { return hasExt(path, ".properties") }

func (PropertiesFactory) Parse(r io.Reader) (Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p, err := properties.Load(data, properties.UTF8)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, p.Len())
	for _, k := range p.Keys() {
		if v, ok := p.Get(k); ok {
			m[k] = v
		}
	}
	return Map(m), nil
}
