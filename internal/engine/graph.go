package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/petrijr/pocketflow/pkg/api"
)

// GraphFormat selects the output of WriteGraph.
type GraphFormat string

const (
	GraphDOT     GraphFormat = "dot"
	GraphMermaid GraphFormat = "mermaid"
)

// ParseGraphFormat accepts "dot" and "mermaid"; empty means dot.
func ParseGraphFormat(s string) (GraphFormat, error) {
	switch GraphFormat(strings.ToLower(s)) {
	case "", GraphDOT:
		return GraphDOT, nil
	case GraphMermaid:
		return GraphMermaid, nil
	}
	return "", fmt.Errorf("unknown graph format %q (want dot or mermaid)", s)
}

// WriteGraph writes the flow's nodes and routes in format. Nodes appear in
// sorted order with the start node marked; routes are labelled with their
// action and, when present, their condition.
func (f *Flow) WriteGraph(w io.Writer, format GraphFormat) error {
	bw := bufio.NewWriter(w)
	switch format {
	case GraphDOT, "":
		f.writeDOT(bw)
	case GraphMermaid:
		f.writeMermaid(bw)
	default:
		return fmt.Errorf("unknown graph format %q", format)
	}
	return bw.Flush()
}

func routeLabel(r api.Route) string {
	if r.Condition == nil {
		return r.Action
	}
	return r.Action + " [" + r.Condition.String() + "]"
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func dotQuote(s string) string { return `"` + dotEscaper.Replace(s) + `"` }

func (f *Flow) writeDOT(w *bufio.Writer) {
	name := f.name
	if name == "" {
		name = "flow"
	}
	fmt.Fprintf(w, "digraph %s {\n", dotQuote(name))
	w.WriteString("  rankdir=TB;\n")
	w.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=lightblue];\n")
	for _, id := range f.NodeIDs() {
		if id == f.config.StartNodeID {
			fmt.Fprintf(w, "  %s [penwidth=2];\n", dotQuote(id))
			continue
		}
		fmt.Fprintf(w, "  %s;\n", dotQuote(id))
	}
	for _, r := range f.AllRoutes() {
		fmt.Fprintf(w, "  %s -> %s [label=%s];\n", dotQuote(r.Source), dotQuote(r.Target), dotQuote(routeLabel(r)))
	}
	w.WriteString("}\n")
}

var mermaidEscaper = strings.NewReplacer(`"`, "#quot;", "\n", " ")

func (f *Flow) writeMermaid(w *bufio.Writer) {
	ids := make(map[string]string)
	ref := func(node string) string {
		if id, ok := ids[node]; ok {
			return id
		}
		id := fmt.Sprintf("n%d", len(ids))
		ids[node] = id
		return id
	}

	w.WriteString("flowchart TD\n")
	for _, id := range f.NodeIDs() {
		label := mermaidEscaper.Replace(id)
		if id == f.config.StartNodeID {
			fmt.Fprintf(w, "  %s([\"%s\"])\n", ref(id), label)
			continue
		}
		fmt.Fprintf(w, "  %s[\"%s\"]\n", ref(id), label)
	}
	for _, r := range f.AllRoutes() {
		fmt.Fprintf(w, "  %s -->|\"%s\"| %s\n", ref(r.Source), mermaidEscaper.Replace(routeLabel(r)), ref(r.Target))
	}
}

// RenderPath draws an execution path as a vertical chain of boxes.
func RenderPath(path []string) string {
	var b strings.Builder
	for i, id := range path {
		if i > 0 {
			b.WriteString("   |\n   v\n")
		}
		fmt.Fprintf(&b, "[ %s ]\n", id)
	}
	return b.String()
}
