package machc

import "fmt"

// Builder constructs a Specification through explicit registration calls.
// Declarative front ends (annotation scanners, document loaders) should
// funnel their raw records through a Builder rather than constructing
// Specifications by hand: the Builder owns deterministic ordinal assignment
// and declaration indexing, which diagnostics and hook ordering depend on.
//
// Builder methods return the Builder for chaining. A Builder is not safe for
// concurrent use.
type Builder struct {
	name         string
	stateIDs     map[string]State
	stateNames   []string
	triggerIDs   map[string]Trigger
	triggerNames []string
	transitions  []Transition
	guards       []Guard
	entryHooks   []EntryHook
	exitHooks    []ExitHook
	decl         int
}

// NewBuilder creates a Builder for the named machine.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:       name,
		stateIDs:   make(map[string]State),
		triggerIDs: make(map[string]Trigger),
	}
}

// DefineState registers a state name and returns its ordinal. Registering an
// already-known name returns the existing ordinal, so definition is
// idempotent and ordinals are stable in declaration order.
func (b *Builder) DefineState(name string) State {
	if id, ok := b.stateIDs[name]; ok {
		return id
	}
	id := State(len(b.stateNames))
	b.stateIDs[name] = id
	b.stateNames = append(b.stateNames, name)
	return id
}

// DefineTrigger registers a trigger name and returns its ordinal.
func (b *Builder) DefineTrigger(name string) Trigger {
	if id, ok := b.triggerIDs[name]; ok {
		return id
	}
	id := Trigger(len(b.triggerNames))
	b.triggerIDs[name] = id
	b.triggerNames = append(b.triggerNames, name)
	return id
}

// AddTransition declares a (from, on) -> (to, action) rule. Duplicate pairs
// are recorded as declared and rejected later by the validator, which names
// every conflicting action.
func (b *Builder) AddTransition(from State, on Trigger, to State, action ActionRef) *Builder {
	b.checkState(from)
	b.checkState(to)
	b.checkTrigger(on)
	b.transitions = append(b.transitions, Transition{From: from, On: on, To: to, Action: action, decl: b.nextDecl()})
	return b
}

// AddGuard attaches a predicate to the transition for (from, on).
func (b *Builder) AddGuard(from State, on Trigger, predicate PredicateRef) *Builder {
	b.checkState(from)
	b.checkTrigger(on)
	b.guards = append(b.guards, Guard{From: from, On: on, Predicate: predicate, decl: b.nextDecl()})
	return b
}

// AddEntryHook registers a hook that runs after the machine enters state.
func (b *Builder) AddEntryHook(state State, hook HookRef) *Builder {
	b.checkState(state)
	b.entryHooks = append(b.entryHooks, EntryHook{State: state, Hook: hook, decl: b.nextDecl()})
	return b
}

// AddExitHook registers a hook that runs before the machine leaves state.
func (b *Builder) AddExitHook(state State, hook HookRef) *Builder {
	b.checkState(state)
	b.exitHooks = append(b.exitHooks, ExitHook{State: state, Hook: hook, decl: b.nextDecl()})
	return b
}

// Spec freezes the accumulated declarations into a Specification. The
// Builder may continue to accumulate afterwards; the returned Specification
// does not alias the Builder's slices.
func (b *Builder) Spec() *Specification {
	return &Specification{
		name:         b.name,
		stateNames:   append([]string(nil), b.stateNames...),
		triggerNames: append([]string(nil), b.triggerNames...),
		transitions:  append([]Transition(nil), b.transitions...),
		guards:       append([]Guard(nil), b.guards...),
		entryHooks:   append([]EntryHook(nil), b.entryHooks...),
		exitHooks:    append([]ExitHook(nil), b.exitHooks...),
	}
}

func (b *Builder) nextDecl() int {
	d := b.decl
	b.decl++
	return d
}

// checkState panics on a state value that did not come from DefineState.
// That is a programming error in the caller, not a specification diagnostic.
func (b *Builder) checkState(s State) {
	if s < 0 || int(s) >= len(b.stateNames) {
		panic(fmt.Sprintf("machc: state ordinal %d not defined on builder %q", s, b.name))
	}
}

func (b *Builder) checkTrigger(t Trigger) {
	if t < 0 || int(t) >= len(b.triggerNames) {
		panic(fmt.Sprintf("machc: trigger ordinal %d not defined on builder %q", t, b.name))
	}
}
