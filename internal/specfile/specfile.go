// Package specfile is the file-based extraction front end: it parses YAML
// specification documents into machc Specifications, resolving callable
// names against a Registry of registered Go functions.
//
// The document layer carries names only; the Registry decides each
// callable's shape (sync or suspending) at registration time. Parsing with a
// nil Registry stubs every callable as a synchronous no-op, which lets
// tooling run structural validation over a document without linking the real
// implementations.
package specfile

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/statomic/machc"
)

// Document mirrors the on-disk YAML schema for one machine specification.
type Document struct {
	Machine       string          `yaml:"machine"`
	States        []string        `yaml:"states"`
	Triggers      []string        `yaml:"triggers"`
	Transitions   []TransitionDoc `yaml:"transitions"`
	Guards        []GuardDoc      `yaml:"guards,omitempty"`
	EntryHooks    []HookDoc       `yaml:"entryHooks,omitempty"`
	ExitHooks     []HookDoc       `yaml:"exitHooks,omitempty"`
	Policies      PolicyDoc       `yaml:"policies,omitempty"`
	GenerateAsync bool            `yaml:"generateAsync,omitempty"`
	ForceAsync    bool            `yaml:"forceAsync,omitempty"`
}

// TransitionDoc declares one transition by name.
type TransitionDoc struct {
	From   string `yaml:"from"`
	On     string `yaml:"on"`
	To     string `yaml:"to"`
	Action string `yaml:"action"`
}

// GuardDoc declares one guard by name.
type GuardDoc struct {
	From      string `yaml:"from"`
	On        string `yaml:"on"`
	Predicate string `yaml:"predicate"`
}

// HookDoc declares one entry or exit hook by name.
type HookDoc struct {
	State string `yaml:"state"`
	Hook  string `yaml:"hook"`
}

// PolicyDoc selects dispatch policies by name: "error" (default) or
// "ignore".
type PolicyDoc struct {
	InvalidTrigger string `yaml:"invalidTrigger,omitempty"`
	GuardFailure   string `yaml:"guardFailure,omitempty"`
}

// Registry maps callable names to registered Go functions. Registration
// methods chain; registering a name twice replaces the earlier entry.
type Registry struct {
	actions    map[string]machc.ActionRef
	predicates map[string]machc.PredicateRef
	hooks      map[string]machc.HookRef
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions:    make(map[string]machc.ActionRef),
		predicates: make(map[string]machc.PredicateRef),
		hooks:      make(map[string]machc.HookRef),
	}
}

// Action registers a synchronous action under name.
func (r *Registry) Action(name string, fn func()) *Registry {
	r.actions[name] = machc.SyncAction(name, fn)
	return r
}

// SuspendingAction registers a context-aware action under name.
func (r *Registry) SuspendingAction(name string, fn func(context.Context)) *Registry {
	r.actions[name] = machc.SuspendingAction(name, fn)
	return r
}

// Predicate registers a synchronous guard predicate under name.
func (r *Registry) Predicate(name string, fn func() bool) *Registry {
	r.predicates[name] = machc.SyncPredicate(name, fn)
	return r
}

// SuspendingPredicate registers a context-aware guard predicate under name.
func (r *Registry) SuspendingPredicate(name string, fn func(context.Context) bool) *Registry {
	r.predicates[name] = machc.SuspendingPredicate(name, fn)
	return r
}

// Hook registers a synchronous hook under name.
func (r *Registry) Hook(name string, fn func()) *Registry {
	r.hooks[name] = machc.SyncHook(name, fn)
	return r
}

// SuspendingHook registers a context-aware hook under name.
func (r *Registry) SuspendingHook(name string, fn func(context.Context)) *Registry {
	r.hooks[name] = machc.SuspendingHook(name, fn)
	return r
}

// Load reads and parses a YAML specification document from path.
func Load(path string, reg *Registry) (*machc.Specification, machc.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, machc.Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data, reg)
}

// Save writes a Document back to path as YAML.
func Save(path string, doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Parse converts a YAML document into a Specification and its compile
// Config. Name-resolution problems (unknown states or triggers, unresolved
// callables, bad policy names) are reported together in one error; shape and
// duplicate problems are left to the machc validator.
func Parse(data []byte, reg *Registry) (*machc.Specification, machc.Config, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, machc.Config{}, fmt.Errorf("yaml unmarshal: %w", err)
	}

	if doc.Machine == "" {
		return nil, machc.Config{}, fmt.Errorf("machine name is required")
	}
	if len(doc.States) == 0 {
		return nil, machc.Config{}, fmt.Errorf("machine %q declares no states", doc.Machine)
	}

	cfg := machc.Config{
		GenerateAsync: doc.GenerateAsync,
		ForceAsync:    doc.ForceAsync,
	}
	var err error
	if cfg.InvalidTrigger, err = parsePolicy(doc.Policies.InvalidTrigger); err != nil {
		return nil, machc.Config{}, fmt.Errorf("invalidTrigger: %w", err)
	}
	if cfg.GuardFailure, err = parsePolicy(doc.Policies.GuardFailure); err != nil {
		return nil, machc.Config{}, fmt.Errorf("guardFailure: %w", err)
	}

	b := machc.NewBuilder(doc.Machine)
	states := make(map[string]machc.State, len(doc.States))
	for _, s := range doc.States {
		states[s] = b.DefineState(s)
	}
	triggers := make(map[string]machc.Trigger, len(doc.Triggers))
	for _, t := range doc.Triggers {
		triggers[t] = b.DefineTrigger(t)
	}

	res := &resolver{doc: doc, reg: reg, states: states, triggers: triggers}

	for i, t := range doc.Transitions {
		from, on, ok := res.pair(fmt.Sprintf("transition %d", i), t.From, t.On)
		to, tok := res.state(fmt.Sprintf("transition %d", i), t.To)
		if ok && tok {
			b.AddTransition(from, on, to, res.action(t.Action))
		}
	}
	for i, g := range doc.Guards {
		if from, on, ok := res.pair(fmt.Sprintf("guard %d", i), g.From, g.On); ok {
			b.AddGuard(from, on, res.predicate(g.Predicate))
		}
	}
	for i, h := range doc.EntryHooks {
		if s, ok := res.state(fmt.Sprintf("entryHook %d", i), h.State); ok {
			b.AddEntryHook(s, res.hook(h.Hook))
		}
	}
	for i, h := range doc.ExitHooks {
		if s, ok := res.state(fmt.Sprintf("exitHook %d", i), h.State); ok {
			b.AddExitHook(s, res.hook(h.Hook))
		}
	}

	if err := res.err(); err != nil {
		return nil, machc.Config{}, err
	}
	return b.Spec(), cfg, nil
}

func parsePolicy(name string) (machc.Policy, error) {
	switch strings.ToLower(name) {
	case "", "error", "throw":
		return machc.PolicyError, nil
	case "ignore", "returnfalse":
		return machc.PolicyIgnore, nil
	default:
		return machc.PolicyError, fmt.Errorf("unknown policy %q (want error or ignore)", name)
	}
}

// resolver accumulates name-resolution failures across the whole document so
// one pass reports everything.
type resolver struct {
	doc      Document
	reg      *Registry
	states   map[string]machc.State
	triggers map[string]machc.Trigger
	problems []string
	missing  map[string]bool
}

func (r *resolver) state(where, name string) (machc.State, bool) {
	s, ok := r.states[name]
	if !ok {
		r.problems = append(r.problems, fmt.Sprintf("%s: unknown state %q", where, name))
	}
	return s, ok
}

func (r *resolver) pair(where, stateName, triggerName string) (machc.State, machc.Trigger, bool) {
	s, sok := r.state(where, stateName)
	t, tok := r.triggers[triggerName]
	if !tok {
		r.problems = append(r.problems, fmt.Sprintf("%s: unknown trigger %q", where, triggerName))
	}
	return s, t, sok && tok
}

func (r *resolver) action(name string) machc.ActionRef {
	if r.reg == nil {
		return machc.SyncAction(name, func() {})
	}
	ref, ok := r.reg.actions[name]
	if !ok {
		r.unresolved(name)
		return machc.ActionRef{Name: name}
	}
	return ref
}

func (r *resolver) predicate(name string) machc.PredicateRef {
	if r.reg == nil {
		return machc.SyncPredicate(name, func() bool { return true })
	}
	ref, ok := r.reg.predicates[name]
	if !ok {
		r.unresolved(name)
		return machc.PredicateRef{Name: name}
	}
	return ref
}

func (r *resolver) hook(name string) machc.HookRef {
	if r.reg == nil {
		return machc.SyncHook(name, func() {})
	}
	ref, ok := r.reg.hooks[name]
	if !ok {
		r.unresolved(name)
		return machc.HookRef{Name: name}
	}
	return ref
}

func (r *resolver) unresolved(name string) {
	if r.missing == nil {
		r.missing = make(map[string]bool)
	}
	r.missing[name] = true
}

func (r *resolver) err() error {
	if len(r.problems) == 0 && len(r.missing) == 0 {
		return nil
	}
	msgs := append([]string(nil), r.problems...)
	if len(r.missing) > 0 {
		names := make([]string, 0, len(r.missing))
		for n := range r.missing {
			names = append(names, n)
		}
		sort.Strings(names)
		msgs = append(msgs, fmt.Sprintf("unresolved callables: %s", strings.Join(names, ", ")))
	}
	return fmt.Errorf("machine %q: %s", r.doc.Machine, strings.Join(msgs, "; "))
}
