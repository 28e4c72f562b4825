// Package viz renders a compiled machine's dispatch table for emission
// stages and tooling: Graphviz DOT for humans, indented JSON for machines.
package viz

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/statomic/machc"
)

// ExportDOT generates Graphviz DOT source for the compiled table. The
// current state is drawn with a double border. Guarded transitions carry the
// predicate name in the edge label.
func ExportDOT(info machc.MachineInfo) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph %q {\n", info.Name)
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, fontsize=10, style=rounded];\n")
	buf.WriteString("  edge [fontsize=9];\n")

	for _, state := range info.States {
		if state == info.Current {
			fmt.Fprintf(&buf, "  %q [peripheries=2];\n", state)
		} else {
			fmt.Fprintf(&buf, "  %q;\n", state)
		}
	}

	for _, t := range info.Transitions {
		label := t.On
		if t.Guard != "" {
			label = fmt.Sprintf("%s [%s]", t.On, t.Guard)
		}
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", t.From, t.To, label)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ExportJSON serializes the machine info to indented JSON.
func ExportJSON(info machc.MachineInfo) ([]byte, error) {
	return json.MarshalIndent(info, "", "  ")
}
