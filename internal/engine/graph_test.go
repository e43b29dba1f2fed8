package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/pocketflow/pkg/api"
)

func reviewFlow() *Flow {
	high := api.Expression("score > 10")
	approved := api.KeyExists("approved")
	return NewFlow(Config{
		Name: "review",
		Flow: api.DefaultFlowConfig(),
		Nodes: map[string]api.Node{
			"start":   newActionNode("start", "check"),
			"publish": newActionNode("publish", "end"),
			"reject":  newActionNode("reject", "end"),
		},
		Routes: []api.Route{
			{Source: "start", Action: "check", Target: "publish", Condition: &high},
			{Source: "start", Action: "check", Target: "reject"},
			{Source: "reject", Action: "retry", Target: "start", Condition: &approved},
		},
	})
}

func TestFlow_WriteGraphDOT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reviewFlow().WriteGraph(&buf, GraphDOT))

	want := `digraph "review" {
  rankdir=TB;
  node [shape=box, style="rounded,filled", fillcolor=lightblue];
  "publish";
  "reject";
  "start" [penwidth=2];
  "reject" -> "start" [label="retry [exists(approved)]"];
  "start" -> "publish" [label="check [(score > 10)]"];
  "start" -> "reject" [label="check"];
}
`
	require.Equal(t, want, buf.String())
}

func TestFlow_WriteGraphMermaid(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reviewFlow().WriteGraph(&buf, GraphMermaid))

	want := `flowchart TD
  n0["publish"]
  n1["reject"]
  n2(["start"])
  n1 -->|"retry [exists(approved)]"| n2
  n2 -->|"check [(score > 10)]"| n0
  n2 -->|"check"| n1
`
	require.Equal(t, want, buf.String())
}

func TestFlow_WriteGraphEscapesQuotes(t *testing.T) {
	eq := api.KeyEquals("status", "ok")
	f := NewFlow(Config{
		Name:   `say "hi"`,
		Flow:   api.DefaultFlowConfig(),
		Nodes:  map[string]api.Node{"start": newActionNode("start", "go"), "done": newActionNode("done", "end")},
		Routes: []api.Route{{Source: "start", Action: "go", Target: "done", Condition: &eq}},
	})

	var buf bytes.Buffer
	require.NoError(t, f.WriteGraph(&buf, GraphDOT))
	require.Contains(t, buf.String(), `digraph "say \"hi\"" {`)
	require.NotContains(t, buf.String(), `label="go [status == "ok"]"`)
}

func TestParseGraphFormat(t *testing.T) {
	for in, want := range map[string]GraphFormat{"": GraphDOT, "dot": GraphDOT, "Mermaid": GraphMermaid} {
		got, err := ParseGraphFormat(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseGraphFormat("svg")
	require.Error(t, err)
}

func TestRenderPath(t *testing.T) {
	require.Equal(t, "[ start ]\n   |\n   v\n[ reject ]\n", RenderPath([]string{"start", "reject"}))
	require.Empty(t, RenderPath(nil))
}
