package machc

import "context"

// State identifies a state in the machine's closed state domain. Values are
// ordinals into the Specification's declaration-ordered name table; obtain
// them from Builder.DefineState.
type State int

// Trigger identifies a trigger in the closed trigger domain, distinct from
// the state domain. Obtain values from Builder.DefineTrigger.
type Trigger int

// Shape classifies a callable as synchronous (runs to completion without
// yielding) or suspending (context-aware, may yield control before
// completing).
type Shape int

const (
	ShapeSync Shape = iota
	ShapeSuspending
)

func (s Shape) String() string {
	switch s {
	case ShapeSync:
		return "sync"
	case ShapeSuspending:
		return "suspending"
	default:
		return "invalid"
	}
}

// ActionRef references an externally supplied transition action. Exactly one
// of Run (sync) or RunCtx (suspending) must be populated, and it must match
// the declared Shape; the validator rejects anything else. Construct via
// SyncAction or SuspendingAction.
type ActionRef struct {
	Name   string
	Shape  Shape
	Run    func()
	RunCtx func(context.Context)
}

// SyncAction builds a synchronous ActionRef.
func SyncAction(name string, fn func()) ActionRef {
	return ActionRef{Name: name, Shape: ShapeSync, Run: fn}
}

// SuspendingAction builds a suspending ActionRef. The context carries the
// cancellation signal; it is the only parameter a callable may accept.
func SuspendingAction(name string, fn func(context.Context)) ActionRef {
	return ActionRef{Name: name, Shape: ShapeSuspending, RunCtx: fn}
}

// PredicateRef references a guard predicate. Exactly one of Test (sync) or
// TestCtx (suspending) must be populated, matching Shape.
type PredicateRef struct {
	Name    string
	Shape   Shape
	Test    func() bool
	TestCtx func(context.Context) bool
}

// SyncPredicate builds a synchronous PredicateRef.
func SyncPredicate(name string, fn func() bool) PredicateRef {
	return PredicateRef{Name: name, Shape: ShapeSync, Test: fn}
}

// SuspendingPredicate builds a suspending PredicateRef.
func SuspendingPredicate(name string, fn func(context.Context) bool) PredicateRef {
	return PredicateRef{Name: name, Shape: ShapeSuspending, TestCtx: fn}
}

// HookRef references an entry or exit hook. Same slot rules as ActionRef.
type HookRef struct {
	Name   string
	Shape  Shape
	Run    func()
	RunCtx func(context.Context)
}

// SyncHook builds a synchronous HookRef.
func SyncHook(name string, fn func()) HookRef {
	return HookRef{Name: name, Shape: ShapeSync, Run: fn}
}

// SuspendingHook builds a suspending HookRef.
func SuspendingHook(name string, fn func(context.Context)) HookRef {
	return HookRef{Name: name, Shape: ShapeSuspending, RunCtx: fn}
}

// Transition declares a (From, On) -> (To, Action) rule. At most one
// Transition may exist per (From, On) pair in a valid Specification.
type Transition struct {
	From   State
	On     Trigger
	To     State
	Action ActionRef

	decl int // declaration index, drives diagnostic ordering
}

// Guard attaches a boolean precondition to the transition for (From, On).
// At most one Guard per pair; a Guard with no matching Transition is inert.
type Guard struct {
	From      State
	On        Trigger
	Predicate PredicateRef

	decl int
}

// EntryHook runs after the state cell is updated to State. Multiple hooks on
// one state run in declaration order.
type EntryHook struct {
	State State
	Hook  HookRef

	decl int
}

// ExitHook runs before the machine leaves State, in declaration order.
type ExitHook struct {
	State State
	Hook  HookRef

	decl int
}

// Policy selects the dispatch-time behavior for a recoverable condition
// (invalid trigger, guard failure). Go has no exceptions, so the source
// model's Throw maps to a returned error and Ignore/ReturnFalse collapse
// into PolicyIgnore. Fixed at compile time.
type Policy int

const (
	// PolicyError surfaces the condition as an *InvalidTransitionError or
	// *GuardRejectedError naming the current state and attempted trigger.
	PolicyError Policy = iota
	// PolicyIgnore returns nil without mutating the current state.
	PolicyIgnore
)

func (p Policy) String() string {
	switch p {
	case PolicyError:
		return "error"
	case PolicyIgnore:
		return "ignore"
	default:
		return "invalid"
	}
}

// Config fixes the synthesized dispatcher's behavior at compile time.
type Config struct {
	// InvalidTrigger applies when Fire/FireAsync sees a trigger with no
	// table entry for the current state.
	InvalidTrigger Policy
	// GuardFailure applies when a present guard evaluates to false.
	GuardFailure Policy
	// GenerateAsync permits FireAsync synthesis. Required whenever the
	// specification contains any suspending callable; without it such a
	// specification fails validation (a synchronous Fire is never
	// synthesized over a suspending table).
	GenerateAsync bool
	// ForceAsync synthesizes FireAsync even for an all-sync specification.
	ForceAsync bool
}

// Specification is the immutable aggregate of one machine's domains,
// transitions, guards, and hooks. Build it with a Builder; it is consumed by
// Compile and not retained by the resulting Machine.
type Specification struct {
	name         string
	stateNames   []string
	triggerNames []string
	transitions  []Transition
	guards       []Guard
	entryHooks   []EntryHook
	exitHooks    []ExitHook
}

// Name returns the machine name given to NewBuilder.
func (s *Specification) Name() string { return s.name }

// NumStates returns the size of the state domain.
func (s *Specification) NumStates() int { return len(s.stateNames) }

// NumTriggers returns the size of the trigger domain.
func (s *Specification) NumTriggers() int { return len(s.triggerNames) }

// StateName resolves a state ordinal to its declared name. Ordinals outside
// the compiled domain are a defect in the caller and panic.
func (s *Specification) StateName(st State) string {
	if st < 0 || int(st) >= len(s.stateNames) {
		panic("machc: state ordinal outside compiled domain")
	}
	return s.stateNames[st]
}

// TriggerName resolves a trigger ordinal to its declared name.
func (s *Specification) TriggerName(t Trigger) string {
	if t < 0 || int(t) >= len(s.triggerNames) {
		panic("machc: trigger ordinal outside compiled domain")
	}
	return s.triggerNames[t]
}

// stateOrdinal is the reverse of StateName; unknown names sort last.
func (s *Specification) stateOrdinal(name string) int {
	for i, n := range s.stateNames {
		if n == name {
			return i
		}
	}
	return len(s.stateNames)
}

func (s *Specification) triggerOrdinal(name string) int {
	for i, n := range s.triggerNames {
		if n == name {
			return i
		}
	}
	return len(s.triggerNames)
}

// hasSuspending reports whether any declared callable is suspending.
func (s *Specification) hasSuspending() bool {
	for _, t := range s.transitions {
		if t.Action.Shape == ShapeSuspending {
			return true
		}
	}
	for _, g := range s.guards {
		if g.Predicate.Shape == ShapeSuspending {
			return true
		}
	}
	for _, h := range s.entryHooks {
		if h.Hook.Shape == ShapeSuspending {
			return true
		}
	}
	for _, h := range s.exitHooks {
		if h.Hook.Shape == ShapeSuspending {
			return true
		}
	}
	return false
}

// suspendingNames lists the names of all suspending callables in declaration
// order, for the async-generation diagnostic.
func (s *Specification) suspendingNames() []string {
	var names []string
	for _, t := range s.transitions {
		if t.Action.Shape == ShapeSuspending {
			names = append(names, t.Action.Name)
		}
	}
	for _, g := range s.guards {
		if g.Predicate.Shape == ShapeSuspending {
			names = append(names, g.Predicate.Name)
		}
	}
	for _, h := range s.exitHooks {
		if h.Hook.Shape == ShapeSuspending {
			names = append(names, h.Hook.Name)
		}
	}
	for _, h := range s.entryHooks {
		if h.Hook.Shape == ShapeSuspending {
			names = append(names, h.Hook.Name)
		}
	}
	return names
}
