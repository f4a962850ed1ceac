package plugin

import (
	"context"
	"slices"

	"github.com/go-go-golems/wisp/pkg/config"
	"github.com/pkg/errors"
)

// LinkAll closes registration and calls Link on every module in registration
// order, handing each the registry as its Locator. The first failure aborts
// the phase and is returned as a *LifecyclePhaseError.
func (r *Registry) LinkAll(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if err := r.enterPhase(hookLink, PhaseLinking, PhaseRegistering); err != nil {
		return err
	}
	return r.forward(ctx, hookLink, StateLinked, PhaseLinked, func(m Module) error {
		return m.Link(ctx, r)
	})
}

// ConfigureAll hands cfg to every module in registration order.
func (r *Registry) ConfigureAll(ctx context.Context, cfg config.Configuration) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if err := r.enterPhase(hookConfigure, PhaseLinked, PhaseLinked); err != nil {
		return err
	}
	return r.forward(ctx, hookConfigure, StateConfigured, PhaseConfigured, func(m Module) error {
		return m.Configure(ctx, cfg)
	})
}

// StartAll starts every module in registration order. It is valid after
// ConfigureAll and again after StopAll.
func (r *Registry) StartAll(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if err := r.enterPhase(hookStart, PhaseStarted, PhaseConfigured, PhaseStopped); err != nil {
		return err
	}
	return r.forward(ctx, hookStart, StateStarted, PhaseStarted, func(m Module) error {
		return m.Start(ctx)
	})
}

// StopAll stops started modules in reverse registration order. Modules whose
// Start failed are stopped too so they can release partial state. Errors are
// logged and do not interrupt the sequence.
func (r *Registry) StopAll(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.stopAll(ctx)
}

// DestroyAll stops anything still running, then destroys every module in
// registration order. Errors are logged and do not interrupt the sequence.
func (r *Registry) DestroyAll(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.Phase() == PhaseDestroyed {
		return
	}
	r.stopAll(ctx)

	for h, e := range r.snapshotEntries() {
		st, _ := r.stateOf(Handle(h))
		if st == StateDestroyed || st == StateUnregistered {
			continue
		}
		if err := callHook(func() error { return e.module.Destroy(ctx) }); err != nil {
			r.logger().Warn().Err(err).Str("module", e.module.Name()).Str("phase", hookDestroy).Msg("Destroy failed")
		}
		r.transition(Handle(h), StateDestroyed, "")
	}
	r.setPhase(PhaseDestroyed)
	r.logger().Debug().Msg("All modules destroyed")
}

func (r *Registry) stopAll(ctx context.Context) {
	if r.Phase() == PhaseDestroyed {
		return
	}
	entries := r.snapshotEntries()
	for h := len(entries) - 1; h >= 0; h-- {
		e := entries[h]
		st, failedIn := r.stateOf(Handle(h))
		if st != StateStarted && !(st == StateFailed && failedIn == hookStart) {
			continue
		}
		if err := callHook(func() error { return e.module.Stop(ctx) }); err != nil {
			r.logger().Warn().Err(err).Str("module", e.module.Name()).Str("phase", hookStop).Msg("Stop failed")
		}
		r.transition(Handle(h), StateStopped, "")
	}
	// only a running registry becomes stoppable-and-restartable
	if r.Phase() == PhaseStarted {
		r.setPhase(PhaseStopped)
	}
}

// forward runs hook over every module in registration order.
func (r *Registry) forward(ctx context.Context, hook string, to State, done Phase, fn func(Module) error) error {
	for h, e := range r.snapshotEntries() {
		handle := Handle(h)
		err := ctx.Err()
		if err == nil {
			if st, _ := r.stateOf(handle); !st.CanTransitionTo(to) {
				err = errors.Wrapf(ErrPhaseOrder, "%s requested while module is %s", hook, st)
			}
		}
		if err == nil {
			err = callHook(func() error { return fn(e.module) })
		}
		if err != nil {
			r.transition(handle, StateFailed, hook)
			r.setPhase(PhaseFailed)
			r.logger().Error().Err(err).Str("module", e.module.Name()).Str("phase", hook).Msg("Lifecycle phase failed")
			return &LifecyclePhaseError{Phase: hook, Module: e.module.Name(), Handle: handle, Err: err}
		}
		r.transition(handle, to, "")
		r.logger().Debug().Str("module", e.module.Name()).Str("state", to.String()).Msg("Module transitioned")
	}
	r.setPhase(done)
	return nil
}

// enterPhase checks that the registry is in one of allowed and moves it to
// next.
func (r *Registry) enterPhase(hook string, next Phase, allowed ...Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(allowed, r.phase) {
		return errors.Wrapf(ErrPhaseOrder, "%s requested while %s", hook, r.phase)
	}
	r.phase = next
	return nil
}

func (r *Registry) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

func (r *Registry) snapshotEntries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

func (r *Registry) stateOf(h Handle) (State, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.entries[h]
	return e.state, e.failedIn
}

// transition applies h -> next if the state machine allows it.
func (r *Registry) transition(h Handle, next State, failedIn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[h]
	if !e.state.CanTransitionTo(next) {
		r.logger().Warn().
			Str("module", e.module.Name()).
			Str("from", e.state.String()).
			Str("to", next.String()).
			Msg("Refusing module state transition")
		return false
	}
	e.state = next
	e.failedIn = failedIn
	return true
}
