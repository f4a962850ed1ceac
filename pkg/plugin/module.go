package plugin

import (
	"context"
	"iter"

	"github.com/go-go-golems/wisp/pkg/config"
)

// Module is a pluggable unit driven through the host lifecycle. The registry
// calls the hooks in a fixed global order: Link, Configure, Start, then Stop
// and Destroy. A module never calls its own hooks.
//
// Start must not block: long-running work belongs on goroutines owned by the
// module and torn down in Stop.
type Module interface {
	Name() string
	// Capabilities declares the contracts this module provides. The result
	// must not change after registration.
	Capabilities() []Capability

	Link(ctx context.Context, loc Locator) error
	Configure(ctx context.Context, cfg config.Configuration) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// Locator is the lookup surface handed to modules during Link.
type Locator interface {
	// FirstImplementing returns the earliest registered provider of c, or a
	// *CapabilityNotFoundError.
	FirstImplementing(c Capability) (Module, error)
	// AllImplementing yields every provider of c in registration order. The
	// sequence may be ranged over any number of times.
	AllImplementing(c Capability) iter.Seq[Module]
	// Modules yields every registered module in registration order.
	Modules() iter.Seq2[Handle, Module]
}

// Base provides no-op lifecycle hooks. Modules embed it and override the
// hooks they need.
type Base struct{}

func (Base) Capabilities() []Capability { return nil }
func (Base) Link(context.Context, Locator) error { return nil }
func (Base) Configure(context.Context, config.Configuration) error { return nil }
func (Base) Start(context.Context) error { return nil }
func (Base) Stop(context.Context) error { return nil }
func (Base) Destroy(context.Context) error { return nil }
