package plugin

import (
	"iter"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handle is the stable identity of a registered module: its position in
// registration order.
type Handle int

type entry struct {
	module Module
	caps   []Capability
	state  State
	// failedIn is the hook that moved the module to StateFailed.
	failedIn string
}

// Registry owns the registered modules, indexes them by capability and drives
// their lifecycle. Lookups are safe from any goroutine once linking has begun.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	index   *Index
	phase   Phase

	// lifecycle serializes phase transitions; mu guards the data.
	lifecycle sync.Mutex
}

var _ Locator = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{index: newIndex()}
}

// logger is derived on each use so a logger module configured during the
// lifecycle takes effect.
func (r *Registry) logger() *zerolog.Logger {
	l := log.With().Str("component", "plugin").Logger()
	return &l
}

// Register adds m to the registry and indexes it under its declared
// capabilities, their ancestors and ServiceModule. It fails once linking has
// begun or when m does not implement a declared contract.
func (r *Registry) Register(m Module) (Handle, error) {
	if m == nil {
		return -1, errors.New("cannot register nil module")
	}
	caps := append(slices.Clone(m.Capabilities()), ServiceModule)
	if err := r.index.verify(m, caps); err != nil {
		return -1, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseRegistering {
		return -1, errors.Wrapf(ErrRegistrationClosed, "register %s", m.Name())
	}
	h := Handle(len(r.entries))
	r.entries = append(r.entries, &entry{module: m, caps: caps, state: StateRegistered})
	r.index.add(h, caps)

	r.logger().Debug().Str("module", m.Name()).Int("handle", int(h)).Msg("Registered module")
	return h, nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(m Module) Handle {
	h, err := r.Register(m)
	if err != nil {
		panic(err)
	}
	return h
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Module returns the module behind h.
func (r *Registry) Module(h Handle) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h < 0 || int(h) >= len(r.entries) {
		return nil, false
	}
	return r.entries[h].module, true
}

// State returns the lifecycle state of the module behind h.
func (r *Registry) State(h Handle) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h < 0 || int(h) >= len(r.entries) {
		return StateUnregistered
	}
	return r.entries[h].state
}

func (r *Registry) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// FirstImplementing returns the earliest registered module providing c.
func (r *Registry) FirstImplementing(c Capability) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.index.lookup(c)
	if len(hs) == 0 {
		return nil, &CapabilityNotFoundError{Capability: capabilityName(c)}
	}
	return r.entries[hs[0]].module, nil
}

// AllImplementing yields providers of c in registration order. Each range
// over the sequence takes a fresh snapshot.
func (r *Registry) AllImplementing(c Capability) iter.Seq[Module] {
	return func(yield func(Module) bool) {
		for _, m := range r.snapshot(c) {
			if !yield(m) {
				return
			}
		}
	}
}

func (r *Registry) Modules() iter.Seq2[Handle, Module] {
	return func(yield func(Handle, Module) bool) {
		r.mu.RLock()
		mods := make([]Module, len(r.entries))
		for i, e := range r.entries {
			mods[i] = e.module
		}
		r.mu.RUnlock()
		for i, m := range mods {
			if !yield(Handle(i), m) {
				return
			}
		}
	}
}

func (r *Registry) snapshot(c Capability) []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hs := r.index.lookup(c)
	out := make([]Module, 0, len(hs))
	for _, h := range hs {
		out = append(out, r.entries[h].module)
	}
	return out
}

func capabilityName(c Capability) string {
	if c == nil {
		return "<nil>"
	}
	return c.Name()
}

// FirstOf returns the first provider of c, already converted to T.
func FirstOf[T any](loc Locator, c *Contract[T]) (T, error) {
	var zero T
	m, err := loc.FirstImplementing(c)
	if err != nil {
		return zero, err
	}
	v, ok := c.Cast(m)
	if !ok {
		return zero, errors.Errorf("module %s does not implement %s", m.Name(), c.Name())
	}
	return v, nil
}

// AllOf yields every provider of c converted to T.
func AllOf[T any](loc Locator, c *Contract[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for m := range loc.AllImplementing(c) {
			v, ok := c.Cast(m)
			if !ok {
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}
