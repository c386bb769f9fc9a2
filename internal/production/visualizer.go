// Package production provides production integrations: a dispatch trace
// publisher, race snapshots and Graphviz export of the running machines.
package production

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/comalice/racekart"
)

// Visualizer renders the active configuration of the state machine
// hierarchy.
type Visualizer struct{}

// MachineView is a serializable summary of one machine.
type MachineView struct {
	Name    string   `json:"name" yaml:"name"`
	Current string   `json:"current" yaml:"current"`
	States  []string `json:"states,omitempty" yaml:"states,omitempty"`
}

// Edge represents a transition edge.
type Edge struct {
	From  string
	To    string
	Label string
	Style string
}

// Describe summarizes machines in the given order.
func Describe(machines []*racekart.Machine) []MachineView {
	views := make([]MachineView, 0, len(machines))
	for _, m := range machines {
		v := MachineView{Name: m.Name(), Current: m.CurrentName()}
		for _, s := range m.States() {
			v.States = append(v.States, s.Name)
		}
		views = append(views, v)
	}
	return views
}

// ExportDOT generates Graphviz DOT source. machines is the active
// configuration from the top down, as returned by Master.Machines: each
// becomes a cluster, and a dotted edge links a parent's current state to the
// current state of the machine below it.
func (v *Visualizer) ExportDOT(machines []*racekart.Machine) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph Racekart {
  rankdir=LR;
  compound=true;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)

	var edges []Edge
	for _, m := range machines {
		renderMachine(&buf, m)
		edges = append(edges, collectEdges(m)...)
	}
	for i := 1; i < len(machines); i++ {
		parent, child := machines[i-1], machines[i]
		if parent.Current() == racekart.NoState || child.Current() == racekart.NoState {
			continue
		}
		edges = append(edges, Edge{
			From:  nodeID(parent, parent.CurrentName()),
			To:    nodeID(child, child.CurrentName()),
			Style: "dotted",
		})
	}

	for _, e := range edges {
		attrs := fmt.Sprintf(`label="%s"`, e.Label)
		if e.Style != "" {
			attrs += " style=" + e.Style
		}
		buf.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", e.From, e.To, attrs))
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ExportJSON serializes the configuration summary to JSON.
func (v *Visualizer) ExportJSON(machines []*racekart.Machine) ([]byte, error) {
	return json.MarshalIndent(Describe(machines), "", "  ")
}

func nodeID(m *racekart.Machine, state string) string {
	return m.Name() + "." + state
}

// collectEdges lists external transitions, then internal ones as dashed
// self loops. Repeated (from, to, event) triples collapse into one edge.
func collectEdges(m *racekart.Machine) []Edge {
	names := make(map[racekart.StateID]string)
	for _, s := range m.States() {
		names[s.ID] = s.Name
	}

	seen := make(map[Edge]bool)
	var edges []Edge
	for _, s := range m.States() {
		for _, t := range s.Transitions {
			if t == nil {
				continue
			}
			e := Edge{From: nodeID(m, s.Name), Label: t.On.String()}
			if t.Target == racekart.NoState {
				e.To, e.Style = e.From, "dashed"
			} else {
				e.To = nodeID(m, names[t.Target])
				if t.History {
					e.Label += " (H)"
				}
			}
			if seen[e] {
				continue
			}
			seen[e] = true
			edges = append(edges, e)
		}
	}
	return edges
}

func renderMachine(buf *bytes.Buffer, m *racekart.Machine) {
	buf.WriteString(fmt.Sprintf("  subgraph %q {\n", "cluster_"+m.Name()))
	buf.WriteString(fmt.Sprintf("    label=%q;\n", m.Name()))
	for _, s := range m.States() {
		style := ""
		if s.ID == m.Current() {
			style = ` style=filled fillcolor=lightgreen`
		}
		buf.WriteString(fmt.Sprintf("    %q [label=%q%s];\n", nodeID(m, s.Name), s.Name, style))
	}
	buf.WriteString("  }\n")
}
