package plugin

import (
	"slices"

	"github.com/pkg/errors"
)

// Capability is a contract a module declares it fulfils. Capabilities are
// compared by identity, so each one is defined once as a package-level
// variable and shared by providers and consumers.
type Capability interface {
	Name() string
	// Parents lists the capabilities implied by this one.
	Parents() []Capability
	// Accepts reports whether m actually satisfies the contract.
	Accepts(m Module) bool
}

// Contract is a Capability backed by the Go interface T. A module declaring a
// Contract[T] must implement T; the registry rejects it otherwise.
type Contract[T any] struct {
	name    string
	parents []Capability
}

// NewContract defines a capability for interface T. parents are implied
// capabilities; a module indexed under this contract is also indexed under
// every parent, transitively.
func NewContract[T any](name string, parents ...Capability) *Contract[T] {
	return &Contract[T]{name: name, parents: slices.Clone(parents)}
}

func (c *Contract[T]) Name() string { return c.name }

func (c *Contract[T]) Parents() []Capability { return slices.Clone(c.parents) }

func (c *Contract[T]) Accepts(m Module) bool {
	_, ok := any(m).(T)
	return ok
}

// Cast converts m to the contract type.
func (c *Contract[T]) Cast(m Module) (T, bool) {
	v, ok := any(m).(T)
	return v, ok
}

func (c *Contract[T]) String() string { return c.name }

// ServiceModule is implied by every registered module, so
// AllImplementing(ServiceModule) enumerates the whole registry.
var ServiceModule = NewContract[Module]("service-module")

// closure returns caps plus every transitive parent, each once, in
// breadth-first declaration order.
func closure(caps []Capability) []Capability {
	seen := map[Capability]struct{}{}
	var out []Capability
	queue := slices.Clone(caps)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
		queue = append(queue, c.Parents()...)
	}
	return out
}

// Index maps capabilities to the handles of modules providing them, in
// registration order. The Registry is its only writer.
type Index struct {
	byCap map[Capability][]Handle
}

func newIndex() *Index {
	return &Index{byCap: map[Capability][]Handle{}}
}

// verify checks that m satisfies every capability it would be indexed under.
func (ix *Index) verify(m Module, caps []Capability) error {
	for _, c := range closure(caps) {
		if !c.Accepts(m) {
			return errors.Errorf("module %s declares capability %s but does not implement it", m.Name(), c.Name())
		}
	}
	return nil
}

func (ix *Index) add(h Handle, caps []Capability) {
	for _, c := range closure(caps) {
		ix.byCap[c] = append(ix.byCap[c], h)
	}
}

func (ix *Index) lookup(c Capability) []Handle {
	return ix.byCap[c]
}
