package config

import (
	"strings"
)

// Map is a Source over a parsed tree of nested maps. Keys may themselves
// contain dots (the flat layout used by properties files); both layouts and
// mixtures of the two resolve.
type Map map[string]any

func (m Map) Lookup(path string) (any, bool) {
	if m == nil || path == "" {
		return nil, false
	}
	return lookupSegments(map[string]any(m), strings.Split(path, "."))
}

func lookupSegments(node map[string]any, segs []string) (any, bool) {
	if v, ok := node[strings.Join(segs, ".")]; ok {
		return v, true
	}
	for i := 1; i < len(segs); i++ {
		child, ok := node[strings.Join(segs[:i], ".")]
		if !ok {
			continue
		}
		sub, ok := asMap(child)
		if !ok {
			continue
		}
		if v, ok := lookupSegments(sub, segs[i:]); ok {
			return v, true
		}
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case Map:
		return map[string]any(x), true
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			ks, err := toString(k)
			if err != nil {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

// Layered resolves a path against each source in turn; earlier sources win.
func Layered(sources ...Source) Source {
	return layered(sources)
}

type layered []Source

func (l layered) Lookup(path string) (any, bool) {
	for _, s := range l {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(path); ok {
			return v, true
		}
	}
	return nil, false
}

// Env is a Source over environment entries in KEY=value form (os.Environ).
// A path maps to a variable by upper-casing it and replacing dots and dashes
// with underscores: wisp.websocket.cert-file reads WISP_WEBSOCKET_CERT_FILE.
type Env map[string]string

// NewEnv indexes environ entries.
func NewEnv(environ []string) Env {
	e := make(Env, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		e[k] = v
	}
	return e
}

// EnvName returns the variable consulted for path.
func EnvName(path string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(path))
}

func (e Env) Lookup(path string) (any, bool) {
	v, ok := e[EnvName(path)]
	return v, ok
}
