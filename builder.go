package pocketflow

import (
	"fmt"
	"slices"

	"github.com/petrijr/pocketflow/internal/engine"
	"github.com/petrijr/pocketflow/pkg/api"
)

// FlowBuilder provides a fluent API for defining flows:
//
//	flow := pocketflow.New("Onboarding").
//	    Node("start", createAccount).
//	    Node("welcome", sendWelcomeEmail).
//	    Route("start", "created", "welcome").
//	    ConditionalRoute("welcome", "sent", "start", pocketflow.KeyEquals("retry", true)).
//	    Build()
type FlowBuilder struct {
	name     string
	config   api.FlowConfig
	nodes    map[string]api.Node
	routes   []api.Route
	observer api.Observer
}

// New creates a builder with the default flow configuration.
func New(name string) *FlowBuilder {
	return &FlowBuilder{
		name:   name,
		config: api.DefaultFlowConfig(),
		nodes:  make(map[string]api.Node),
	}
}

// Name returns the flow name.
func (b *FlowBuilder) Name() string {
	return b.name
}

// StartNode sets the node a run begins at.
func (b *FlowBuilder) StartNode(id string) *FlowBuilder {
	b.config.StartNodeID = id
	return b
}

// MaxSteps caps the number of node executions per run. n <= 0 restores the
// default.
func (b *FlowBuilder) MaxSteps(n int) *FlowBuilder {
	b.config.MaxSteps = n
	return b
}

// TerminalAction adds name to the terminal actions.
func (b *FlowBuilder) TerminalAction(name string) *FlowBuilder {
	if !slices.Contains(b.config.TerminalActions, name) {
		b.config.TerminalActions = append(b.config.TerminalActions, name)
	}
	return b
}

// TerminalActions replaces the terminal actions.
func (b *FlowBuilder) TerminalActions(names ...string) *FlowBuilder {
	b.config.TerminalActions = slices.Clone(names)
	return b
}

// DetectCycles turns revisit detection on or off. With it off, loops are
// bounded only by MaxSteps.
func (b *FlowBuilder) DetectCycles(on bool) *FlowBuilder {
	b.config.DetectCycles = on
	return b
}

// Node registers node under id, replacing any node registered earlier.
func (b *FlowBuilder) Node(id string, node api.Node) *FlowBuilder {
	if id == "" {
		panic("pocketflow: node id must not be empty")
	}
	if node == nil {
		panic(fmt.Sprintf("pocketflow: node %q is nil", id))
	}
	b.nodes[id] = node
	return b
}

// Route sends the flow from -> to when from returns an action named action.
func (b *FlowBuilder) Route(from, action, to string) *FlowBuilder {
	b.routes = append(b.routes, api.Route{Source: from, Action: action, Target: to})
	return b
}

// ConditionalRoute is like Route but only taken when cond holds at routing
// time. Routes for the same (from, action) pair are tried in the order they
// were added.
func (b *FlowBuilder) ConditionalRoute(from, action, to string, cond api.Condition) *FlowBuilder {
	b.routes = append(b.routes, api.Route{Source: from, Action: action, Target: to, Condition: &cond})
	return b
}

// Observer sets the observer notified of every run of the built flow.
func (b *FlowBuilder) Observer(obs api.Observer) *FlowBuilder {
	b.observer = obs
	return b
}

// Build returns the flow. It does not validate or run anything; call
// Validate on the result to check references.
func (b *FlowBuilder) Build() *Flow {
	return engine.NewFlow(engine.Config{
		Name:     b.name,
		Flow:     b.config,
		Nodes:    b.nodes,
		Routes:   b.routes,
		Observer: b.observer,
	})
}

// MustBuild is like Build but panics when the flow fails validation.
// Useful for initialization in main().
func (b *FlowBuilder) MustBuild() *Flow {
	f := b.Build()
	if err := f.Validate(); err != nil {
		panic(err)
	}
	return f
}
