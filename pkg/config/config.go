package config

import (
	"fmt"
	"time"
)

// Configuration is typed access to a node in a configuration tree. Paths are
// dot-delimited (for example wisp.websocket.port); how the path maps onto the
// underlying file format is up to the Source.
//
// Every getter fails with a *ConfigurationError when the path is missing or the
// value cannot be converted. No getter ever returns a silent default.
type Configuration interface {
	HasPath(path string) bool
	GetString(path string) (string, error)
	GetInt(path string) (int, error)
	GetLong(path string) (int64, error)
	GetDouble(path string) (float64, error)
	GetBoolean(path string) (bool, error)
	GetDuration(path string) (time.Duration, error)
	GetPeriod(path string) (Period, error)
}

// Source resolves a raw value for a path.
type Source interface {
	Lookup(path string) (any, bool)
}

// ConfigurationError reports a missing path or a value of the wrong type.
type ConfigurationError struct {
	Origin string
	Path   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("config %s: %s: %s", e.Origin, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type tree struct {
	origin string
	src    Source
}

// New wraps a Source as a Configuration. origin names the source in errors,
// usually the file it was parsed from.
func New(origin string, src Source) Configuration {
	return &tree{origin: origin, src: src}
}

// FromMap builds a Configuration over an in-memory tree.
func FromMap(origin string, m map[string]any) Configuration {
	return New(origin, Map(m))
}

func (t *tree) HasPath(path string) bool {
	v, ok := t.src.Lookup(path)
	return ok && v != nil
}

func (t *tree) lookup(path string) (any, error) {
	v, ok := t.src.Lookup(path)
	if !ok || v == nil {
		return nil, &ConfigurationError{Origin: t.origin, Path: path, Reason: "missing path"}
	}
	return v, nil
}

func (t *tree) mismatch(path, want string, v any, err error) error {
	return &ConfigurationError{
		Origin: t.origin,
		Path:   path,
		Reason: fmt.Sprintf("cannot convert %T to %s", v, want),
		Err:    err,
	}
}

func (t *tree) GetString(path string) (string, error) {
	v, err := t.lookup(path)
	if err != nil {
		return "", err
	}
	s, err := toString(v)
	if err != nil {
		return "", t.mismatch(path, "string", v, err)
	}
	return s, nil
}

func (t *tree) GetInt(path string) (int, error) {
	n, err := t.GetLong(path)
	if err != nil {
		return 0, err
	}
	if int64(int(n)) != n {
		return 0, &ConfigurationError{Origin: t.origin, Path: path, Reason: "value overflows int"}
	}
	return int(n), nil
}

func (t *tree) GetLong(path string) (int64, error) {
	v, err := t.lookup(path)
	if err != nil {
		return 0, err
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, t.mismatch(path, "integer", v, err)
	}
	return n, nil
}

func (t *tree) GetDouble(path string) (float64, error) {
	v, err := t.lookup(path)
	if err != nil {
		return 0, err
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, t.mismatch(path, "number", v, err)
	}
	return f, nil
}

func (t *tree) GetBoolean(path string) (bool, error) {
	v, err := t.lookup(path)
	if err != nil {
		return false, err
	}
	b, err := toBool(v)
	if err != nil {
		return false, t.mismatch(path, "boolean", v, err)
	}
	return b, nil
}

func (t *tree) GetDuration(path string) (time.Duration, error) {
	v, err := t.lookup(path)
	if err != nil {
		return 0, err
	}
	d, err := toDuration(v)
	if err != nil {
		return 0, t.mismatch(path, "duration", v, err)
	}
	return d, nil
}

func (t *tree) GetPeriod(path string) (Period, error) {
	v, err := t.lookup(path)
	if err != nil {
		return Period{}, err
	}
	p, err := toPeriod(v)
	if err != nil {
		return Period{}, t.mismatch(path, "period", v, err)
	}
	return p, nil
}

// GetEnum reads a string value and checks it against the allowed constants.
// Matching is exact first, then case-insensitive.
func GetEnum[T ~string](c Configuration, path string, allowed ...T) (T, error) {
	var zero T
	s, err := c.GetString(path)
	if err != nil {
		return zero, err
	}
	for _, a := range allowed {
		if string(a) == s {
			return a, nil
		}
	}
	for _, a := range allowed {
		if equalFold(string(a), s) {
			return a, nil
		}
	}
	return zero, &ConfigurationError{
		Path:   path,
		Origin: originOf(c),
		Reason: fmt.Sprintf("%q is not one of %v", s, allowed),
	}
}

func originOf(c Configuration) string {
	if t, ok := c.(*tree); ok {
		return t.origin
	}
	return "configuration"
}
