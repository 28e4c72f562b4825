package machc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/statomic/machc/internal/log"
)

// InvalidTransitionError reports a trigger fired from a state with no
// transition declared for it, under PolicyError.
type InvalidTransitionError struct {
	Machine string
	State   string
	Trigger string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("machc: machine %q has no transition from state %q on trigger %q",
		e.Machine, e.State, e.Trigger)
}

// GuardRejectedError reports a guard that evaluated to false, under
// PolicyError.
type GuardRejectedError struct {
	Machine   string
	State     string
	Trigger   string
	Predicate string
}

func (e *GuardRejectedError) Error() string {
	return fmt.Sprintf("machc: machine %q: guard %q rejected trigger %q in state %q",
		e.Machine, e.Predicate, e.Trigger, e.State)
}

var (
	// ErrSyncNotSynthesized is returned by Fire on a machine compiled from
	// a specification containing suspending callables; such machines are
	// async-only.
	ErrSyncNotSynthesized = errors.New("machc: synchronous dispatch not synthesized for this machine")
	// ErrAsyncNotSynthesized is returned by FireAsync when the
	// specification is all-sync and async generation was not forced.
	ErrAsyncNotSynthesized = errors.New("machc: suspending dispatch not synthesized for this machine")
)

// Machine is a synthesized dispatcher: a compiled Table plus the single
// mutable current-State cell. It holds no other state and performs no
// locking; callers that dispatch concurrently must serialize access
// themselves or the step ordering guarantees do not hold.
type Machine struct {
	table    *Table
	cfg      Config
	current  State
	hasSync  bool
	hasAsync bool
}

// Compile validates spec, builds the dispatch table, and synthesizes the
// dispatcher. On validation failure it returns a nil Machine and the full,
// deterministically ordered diagnostic list; no table is built.
//
// Entry-point synthesis: Fire exists iff the specification is all-sync;
// FireAsync exists iff the specification contains a suspending callable or
// cfg.ForceAsync is set.
func Compile(spec *Specification, cfg Config) (*Machine, []Diagnostic) {
	logger := log.WithComponent("compile")

	if diags := Validate(spec, cfg); diags != nil {
		logger.Debug().Str("machine", spec.name).Int("diagnostics", len(diags)).Msg("specification rejected")
		return nil, diags
	}

	suspending := spec.hasSuspending()
	m := &Machine{
		table:    buildTable(spec),
		cfg:      cfg,
		current:  State(0),
		hasSync:  !suspending,
		hasAsync: suspending || cfg.ForceAsync,
	}
	logger.Debug().
		Str("machine", spec.name).
		Int("states", spec.NumStates()).
		Int("transitions", len(spec.transitions)).
		Bool("sync", m.hasSync).
		Bool("async", m.hasAsync).
		Msg("dispatcher synthesized")
	return m, nil
}

// Name returns the compiled machine's name.
func (m *Machine) Name() string { return m.table.spec.name }

// State returns the current state.
func (m *Machine) State() State { return m.current }

// StateName returns the current state's declared name.
func (m *Machine) StateName() string { return m.table.spec.StateName(m.current) }

// Reset repositions the current-State cell without running hooks or actions.
// Like dispatch, it is not safe for concurrent use.
func (m *Machine) Reset(s State) {
	if s < 0 || int(s) >= m.table.spec.NumStates() {
		panic(fmt.Sprintf("machc: reset to state ordinal %d outside compiled domain", s))
	}
	m.current = s
}

// CanFire reports whether firing t from the current state would reach the
// action step. No entry: false. Entry without guard: true. Synchronous
// guard: its result, with no state mutation. Suspending guard: CanFire is
// synchronous and cannot evaluate it, so it deterministically returns false;
// this conservatism is a documented limitation, not a defect.
func (m *Machine) CanFire(t Trigger) bool {
	e := m.table.lookup(m.current, t)
	if e == nil {
		return false
	}
	if e.guard == nil {
		return true
	}
	p := e.guard.Predicate
	if p.Shape == ShapeSuspending {
		return false
	}
	return p.Test()
}

// Fire dispatches t synchronously: table lookup, guard, then ExitHooks(from)
// in declaration order, the action, the current-State update, and
// EntryHooks(to) in declaration order. Each step runs to completion before
// the next begins. Misses and guard rejections follow the compiled policies.
func (m *Machine) Fire(t Trigger) error {
	if !m.hasSync {
		return ErrSyncNotSynthesized
	}
	e := m.table.lookup(m.current, t)
	if e == nil {
		return m.invalidTrigger(t)
	}
	if e.guard != nil {
		p := e.guard.Predicate
		// Validation guarantees an all-sync table here.
		if p.Test == nil {
			panic("machc: internal: suspending guard in synchronous table")
		}
		if !p.Test() {
			return m.guardRejected(t, e.guard)
		}
	}
	for _, h := range e.exitHooks {
		m.runSync(h.Run, h.Name)
	}
	m.runSync(e.action.Run, e.action.Name)
	m.current = e.to
	for _, h := range e.entryHooks {
		m.runSync(h.Run, h.Name)
	}
	return nil
}

// FireAsync dispatches t with the same four steps as Fire, awaiting
// suspending callables and running synchronous ones inline. Cancellation is
// cooperative: ctx.Err is checked immediately before each hook and action
// invocation, and a cancellation observed before the action completes leaves
// the current-State cell unchanged. Once the cell has been updated, a
// cancellation skips the remaining entry hooks and propagates; the state
// change is not rolled back.
func (m *Machine) FireAsync(ctx context.Context, t Trigger) error {
	if !m.hasAsync {
		return ErrAsyncNotSynthesized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := m.table.lookup(m.current, t)
	if e == nil {
		return m.invalidTrigger(t)
	}
	if e.guard != nil {
		if !m.evalGuard(ctx, e.guard.Predicate) {
			return m.guardRejected(t, e.guard)
		}
	}
	for _, h := range e.exitHooks {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.invoke(ctx, h.Run, h.RunCtx, h.Name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.invoke(ctx, e.action.Run, e.action.RunCtx, e.action.Name)
	m.current = e.to
	for _, h := range e.entryHooks {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.invoke(ctx, h.Run, h.RunCtx, h.Name)
	}
	return nil
}

func (m *Machine) evalGuard(ctx context.Context, p PredicateRef) bool {
	if p.TestCtx != nil {
		return p.TestCtx(ctx)
	}
	if p.Test == nil {
		panic("machc: internal: guard predicate " + p.Name + " has no implementation")
	}
	return p.Test()
}

func (m *Machine) runSync(fn func(), name string) {
	if fn == nil {
		panic("machc: internal: callable " + name + " has no synchronous implementation")
	}
	fn()
}

func (m *Machine) invoke(ctx context.Context, fn func(), fnCtx func(context.Context), name string) {
	switch {
	case fnCtx != nil:
		fnCtx(ctx)
	case fn != nil:
		fn()
	default:
		panic("machc: internal: callable " + name + " has no implementation")
	}
}

func (m *Machine) invalidTrigger(t Trigger) error {
	if m.cfg.InvalidTrigger == PolicyIgnore {
		return nil
	}
	return &InvalidTransitionError{
		Machine: m.table.spec.name,
		State:   m.table.spec.StateName(m.current),
		Trigger: m.table.spec.TriggerName(t),
	}
}

func (m *Machine) guardRejected(t Trigger, g *Guard) error {
	if m.cfg.GuardFailure == PolicyIgnore {
		return nil
	}
	return &GuardRejectedError{
		Machine:   m.table.spec.name,
		State:     m.table.spec.StateName(m.current),
		Trigger:   m.table.spec.TriggerName(t),
		Predicate: g.Predicate.Name,
	}
}

// MachineInfo is the introspectable view of a compiled machine: the abstract
// operation set handed to emission stages and visualizers.
type MachineInfo struct {
	Name        string           `json:"name"`
	States      []string         `json:"states"`
	Triggers    []string         `json:"triggers"`
	Current     string           `json:"current"`
	Sync        bool             `json:"sync"`
	Async       bool             `json:"async"`
	Transitions []TransitionInfo `json:"transitions"`
}

// TransitionInfo describes one compiled dispatch entry by name.
type TransitionInfo struct {
	From       string   `json:"from"`
	On         string   `json:"on"`
	To         string   `json:"to"`
	Action     string   `json:"action"`
	Guard      string   `json:"guard,omitempty"`
	ExitHooks  []string `json:"exitHooks,omitempty"`
	EntryHooks []string `json:"entryHooks,omitempty"`
}

// Info returns a snapshot of the compiled table, transitions ordered by
// (from, trigger) declaration ordinals.
func (m *Machine) Info() MachineInfo {
	spec := m.table.spec
	info := MachineInfo{
		Name:     spec.name,
		States:   append([]string(nil), spec.stateNames...),
		Triggers: append([]string(nil), spec.triggerNames...),
		Current:  spec.StateName(m.current),
		Sync:     m.hasSync,
		Async:    m.hasAsync,
	}
	for from, row := range m.table.entries {
		for on, e := range row {
			ti := TransitionInfo{
				From:   spec.StateName(from),
				On:     spec.TriggerName(on),
				To:     spec.StateName(e.to),
				Action: e.action.Name,
			}
			if e.guard != nil {
				ti.Guard = e.guard.Predicate.Name
			}
			for _, h := range e.exitHooks {
				ti.ExitHooks = append(ti.ExitHooks, h.Name)
			}
			for _, h := range e.entryHooks {
				ti.EntryHooks = append(ti.EntryHooks, h.Name)
			}
			info.Transitions = append(info.Transitions, ti)
		}
	}
	sort.Slice(info.Transitions, func(i, j int) bool {
		a, b := info.Transitions[i], info.Transitions[j]
		if a.From != b.From {
			return spec.stateOrdinal(a.From) < spec.stateOrdinal(b.From)
		}
		return spec.triggerOrdinal(a.On) < spec.triggerOrdinal(b.On)
	})
	return info
}
