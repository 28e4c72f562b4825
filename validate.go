package machc

import (
	"fmt"
	"sort"
	"strings"
)

// Diagnostic codes. Stable identifiers; tooling keys off them.
const (
	// CodeDuplicateTransition: more than one Transition for one (from,
	// trigger) pair.
	CodeDuplicateTransition = "MC001"
	// CodeBadAction: an action or hook whose populated slot does not match
	// its declared shape, or with zero/both slots, or an empty name.
	CodeBadAction = "MC002"
	// CodeBadPredicate: same rules over a guard predicate's Test/TestCtx.
	CodeBadPredicate = "MC003"
	// CodeDuplicateGuard: more than one Guard for one (from, trigger) pair.
	CodeDuplicateGuard = "MC004"
	// CodeSuspendingNeedsAsync: the specification contains suspending
	// callables but async generation is disabled; a synchronous Fire is
	// never synthesized over a suspending table.
	CodeSuspendingNeedsAsync = "MC005"
)

// Diagnostic describes one specification error. Element names the offending
// state/trigger pair or callable.
type Diagnostic struct {
	Code    string
	Message string
	Element string
}

func (d Diagnostic) String() string {
	return d.Code + " " + d.Element + ": " + d.Message
}

// orderedDiag pairs a Diagnostic with its deterministic sort key.
type orderedDiag struct {
	d    Diagnostic
	decl int
	st   string
	tr   string
}

// Validate checks a Specification against cfg and returns nil on acceptance
// or every diagnostic found, in a stable order: code, then declaration
// index, tie-broken by state and trigger name. Validation never partially
// accepts; any diagnostic means no table or dispatcher may be built.
func Validate(spec *Specification, cfg Config) []Diagnostic {
	var out []orderedDiag

	out = append(out, duplicateTransitions(spec)...)
	out = append(out, callableShapes(spec)...)
	out = append(out, duplicateGuards(spec)...)

	if spec.hasSuspending() && !cfg.GenerateAsync && !cfg.ForceAsync {
		out = append(out, orderedDiag{
			d: Diagnostic{
				Code:    CodeSuspendingNeedsAsync,
				Element: spec.name,
				Message: fmt.Sprintf("suspending callables (%s) require async generation; enable GenerateAsync or ForceAsync",
					strings.Join(spec.suspendingNames(), ", ")),
			},
		})
	}

	if len(out) == 0 {
		return nil
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.d.Code != b.d.Code {
			return a.d.Code < b.d.Code
		}
		if a.decl != b.decl {
			return a.decl < b.decl
		}
		if a.st != b.st {
			return a.st < b.st
		}
		return a.tr < b.tr
	})

	diags := make([]Diagnostic, len(out))
	for i, o := range out {
		diags[i] = o.d
	}
	return diags
}

// duplicateTransitions groups transitions by (from, trigger) and reports one
// diagnostic per conflicting pair, naming every action involved.
func duplicateTransitions(spec *Specification) []orderedDiag {
	type key struct {
		from State
		on   Trigger
	}
	groups := make(map[key][]Transition)
	var order []key
	for _, t := range spec.transitions {
		k := key{t.From, t.On}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	var out []orderedDiag
	for _, k := range order {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		actions := make([]string, len(group))
		for i, t := range group {
			actions[i] = t.Action.Name
		}
		st := spec.StateName(k.from)
		tr := spec.TriggerName(k.on)
		out = append(out, orderedDiag{
			d: Diagnostic{
				Code:    CodeDuplicateTransition,
				Element: st + "/" + tr,
				Message: fmt.Sprintf("%d transitions declared for (%s, %s): actions %s",
					len(group), st, tr, strings.Join(actions, ", ")),
			},
			decl: group[0].decl,
			st:   st,
			tr:   tr,
		})
	}
	return out
}

// callableShapes checks every action, hook, and predicate: non-empty name,
// exactly one populated slot, and slot agreement with the declared shape.
func callableShapes(spec *Specification) []orderedDiag {
	var out []orderedDiag

	badRef := func(name string, shape Shape, hasSync, hasCtx bool) (string, bool) {
		switch {
		case name == "":
			return "callable has no name", true
		case !hasSync && !hasCtx:
			return fmt.Sprintf("callable %s has no implementation slot", name), true
		case hasSync && hasCtx:
			return fmt.Sprintf("callable %s populates both sync and suspending slots", name), true
		case shape == ShapeSync && hasCtx:
			return fmt.Sprintf("callable %s declared sync but implemented as suspending", name), true
		case shape == ShapeSuspending && hasSync:
			return fmt.Sprintf("callable %s declared suspending but implemented as sync", name), true
		}
		return "", false
	}

	addAction := func(code string, decl int, st, tr string, name string, shape Shape, hasSync, hasCtx bool) {
		if msg, bad := badRef(name, shape, hasSync, hasCtx); bad {
			element := name
			if element == "" {
				element = st + "/" + tr
			}
			out = append(out, orderedDiag{
				d:    Diagnostic{Code: code, Element: element, Message: msg},
				decl: decl,
				st:   st,
				tr:   tr,
			})
		}
	}

	for _, t := range spec.transitions {
		a := t.Action
		addAction(CodeBadAction, t.decl, spec.StateName(t.From), spec.TriggerName(t.On),
			a.Name, a.Shape, a.Run != nil, a.RunCtx != nil)
	}
	for _, h := range spec.entryHooks {
		addAction(CodeBadAction, h.decl, spec.StateName(h.State), "",
			h.Hook.Name, h.Hook.Shape, h.Hook.Run != nil, h.Hook.RunCtx != nil)
	}
	for _, h := range spec.exitHooks {
		addAction(CodeBadAction, h.decl, spec.StateName(h.State), "",
			h.Hook.Name, h.Hook.Shape, h.Hook.Run != nil, h.Hook.RunCtx != nil)
	}
	for _, g := range spec.guards {
		p := g.Predicate
		addAction(CodeBadPredicate, g.decl, spec.StateName(g.From), spec.TriggerName(g.On),
			p.Name, p.Shape, p.Test != nil, p.TestCtx != nil)
	}
	return out
}

// duplicateGuards rejects multiple guards on one (from, trigger) pair. The
// alternative, silently taking the first declared, hides a specification
// ambiguity.
func duplicateGuards(spec *Specification) []orderedDiag {
	type key struct {
		from State
		on   Trigger
	}
	groups := make(map[key][]Guard)
	var order []key
	for _, g := range spec.guards {
		k := key{g.From, g.On}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], g)
	}

	var out []orderedDiag
	for _, k := range order {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		preds := make([]string, len(group))
		for i, g := range group {
			preds[i] = g.Predicate.Name
		}
		st := spec.StateName(k.from)
		tr := spec.TriggerName(k.on)
		out = append(out, orderedDiag{
			d: Diagnostic{
				Code:    CodeDuplicateGuard,
				Element: st + "/" + tr,
				Message: fmt.Sprintf("%d guards declared for (%s, %s): predicates %s",
					len(group), st, tr, strings.Join(preds, ", ")),
			},
			decl: group[0].decl,
			st:   st,
			tr:   tr,
		})
	}
	return out
}
