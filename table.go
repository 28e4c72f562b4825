package machc

import (
	"fmt"

	"github.com/statomic/machc/internal/log"
)

// entry is one compiled dispatch slot: everything Fire needs for a
// (state, trigger) pair, resolved once at compile time.
type entry struct {
	guard      *Guard
	exitHooks  []HookRef
	action     ActionRef
	to         State
	entryHooks []HookRef
}

// Table is the validated Specification reorganized for dispatch: a total
// materialization of the (from, trigger) partial function. Pairs with no
// declared Transition have no entry.
type Table struct {
	spec    *Specification
	entries map[State]map[Trigger]*entry
}

// buildTable regroups a validated Specification. It performs no validation
// of its own: encountering a duplicate here means the Validator let one
// through, which is a defect, so it aborts loudly.
func buildTable(spec *Specification) *Table {
	logger := log.WithComponent("table")

	// Hook slices per state, declaration order preserved.
	entryHooks := make(map[State][]HookRef)
	for _, h := range spec.entryHooks {
		entryHooks[h.State] = append(entryHooks[h.State], h.Hook)
	}
	exitHooks := make(map[State][]HookRef)
	for _, h := range spec.exitHooks {
		exitHooks[h.State] = append(exitHooks[h.State], h.Hook)
	}

	t := &Table{
		spec:    spec,
		entries: make(map[State]map[Trigger]*entry),
	}
	for _, tr := range spec.transitions {
		row := t.entries[tr.From]
		if row == nil {
			row = make(map[Trigger]*entry)
			t.entries[tr.From] = row
		}
		if _, dup := row[tr.On]; dup {
			panic(fmt.Sprintf("machc: internal: duplicate transition (%s, %s) reached table builder",
				spec.StateName(tr.From), spec.TriggerName(tr.On)))
		}
		row[tr.On] = &entry{
			exitHooks:  exitHooks[tr.From],
			action:     tr.Action,
			to:         tr.To,
			entryHooks: entryHooks[tr.To],
		}
	}

	for i := range spec.guards {
		g := &spec.guards[i]
		e := t.lookup(g.From, g.On)
		if e == nil {
			// Inert guard: no matching transition. Not an error.
			logger.Debug().
				Str("machine", spec.name).
				Str("state", spec.StateName(g.From)).
				Str("trigger", spec.TriggerName(g.On)).
				Str("predicate", g.Predicate.Name).
				Msg("guard has no matching transition")
			continue
		}
		if e.guard != nil {
			panic(fmt.Sprintf("machc: internal: duplicate guard (%s, %s) reached table builder",
				spec.StateName(g.From), spec.TriggerName(g.On)))
		}
		e.guard = g
	}

	return t
}

// lookup returns the entry for (from, on), or nil when the pair has no
// declared transition.
func (t *Table) lookup(from State, on Trigger) *entry {
	row := t.entries[from]
	if row == nil {
		return nil
	}
	return row[on]
}
