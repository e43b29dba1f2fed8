package engine

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/pocketflow/pkg/api"
)

// Config describes a flow to construct. Only used inside this module;
// external callers use pocketflow.FlowBuilder.
type Config struct {
	Name     string
	Flow     api.FlowConfig
	Nodes    map[string]api.Node
	Routes   []api.Route
	Observer api.Observer
}

// Flow is an immutable node graph. It holds no state between runs and may
// be executed concurrently against different stores.
type Flow struct {
	name     string
	config   api.FlowConfig
	nodes    map[string]api.Node
	routes   map[string][]api.Route
	observer api.Observer
}

var _ api.Flow = (*Flow)(nil)

// NewFlow copies cfg into a new Flow. Routes keep their declaration order
// per source node.
func NewFlow(cfg Config) *Flow {
	fc := cfg.Flow
	if fc.MaxSteps <= 0 {
		fc.MaxSteps = api.DefaultMaxSteps
	}
	if fc.StartNodeID == "" {
		fc.StartNodeID = api.DefaultStartNodeID
	}
	fc.TerminalActions = slices.Clone(fc.TerminalActions)

	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}

	routes := make(map[string][]api.Route)
	for _, r := range cfg.Routes {
		routes[r.Source] = append(routes[r.Source], r)
	}

	return &Flow{
		name:     cfg.Name,
		config:   fc,
		nodes:    maps.Clone(cfg.Nodes),
		routes:   routes,
		observer: obs,
	}
}

func (f *Flow) Name() string { return f.name }

// Config returns a copy of the run settings.
func (f *Flow) Config() api.FlowConfig {
	c := f.config
	c.TerminalActions = slices.Clone(c.TerminalActions)
	return c
}

// NodeIDs returns the registered node ids in sorted order.
func (f *Flow) NodeIDs() []string {
	return slices.Sorted(maps.Keys(f.nodes))
}

func (f *Flow) Node(id string) (api.Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// Routes returns the routes leaving id in declaration order.
func (f *Flow) Routes(id string) []api.Route {
	return slices.Clone(f.routes[id])
}

// AllRoutes returns every route, grouped by source in sorted source order.
func (f *Flow) AllRoutes() []api.Route {
	var out []api.Route
	for _, src := range slices.Sorted(maps.Keys(f.routes)) {
		out = append(out, f.routes[src]...)
	}
	return out
}

// Validate checks that the start node and both ends of every route are
// registered. It never runs a node.
func (f *Flow) Validate() error {
	if _, ok := f.nodes[f.config.StartNodeID]; !ok {
		return api.NewInvalidConfiguration("start node '%s' not found", f.config.StartNodeID)
	}
	for _, src := range slices.Sorted(maps.Keys(f.routes)) {
		for _, r := range f.routes[src] {
			if _, ok := f.nodes[r.Source]; !ok {
				return api.NewInvalidConfiguration("route source node '%s' not found", r.Source)
			}
			if _, ok := f.nodes[r.Target]; !ok {
				return api.NewInvalidConfiguration("route target node '%s' not found (from '%s' on '%s')", r.Target, r.Source, r.Action)
			}
		}
	}
	return nil
}

// Execute runs the flow from its configured start node.
func (f *Flow) Execute(ctx context.Context, store api.Store) (*api.ExecutionResult, error) {
	return f.ExecuteFrom(ctx, store, f.config.StartNodeID)
}

// ExecuteFrom runs the flow from nodeID.
func (f *Flow) ExecuteFrom(ctx context.Context, store api.Store, nodeID string) (*api.ExecutionResult, error) {
	run := api.RunInfo{
		Flow:  f.name,
		RunID: uuid.NewString(),
		Depth: api.FlowDepthFromContext(ctx),
	}

	f.observer.OnFlowStart(ctx, run, nodeID)

	res, err := f.run(ctx, store, nodeID, run)
	if err != nil {
		f.observer.OnFlowFailed(ctx, run, err)
		return nil, err
	}

	f.observer.OnFlowCompleted(ctx, run, res)
	return res, nil
}

func (f *Flow) run(ctx context.Context, store api.Store, start string, run api.RunInfo) (*api.ExecutionResult, error) {
	current := start
	path := make([]string, 0, 8)
	steps := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if steps >= f.config.MaxSteps {
			return nil, &api.FlowError{
				Kind:   api.ErrMaxStepsExceeded,
				NodeID: current,
				Limit:  f.config.MaxSteps,
				Path:   slices.Clone(path),
			}
		}
		if f.config.DetectCycles && slices.Contains(path, current) {
			return nil, &api.FlowError{
				Kind:   api.ErrCycleDetected,
				NodeID: current,
				Path:   append(slices.Clone(path), current),
			}
		}
		path = append(path, current)

		node, ok := f.nodes[current]
		if !ok {
			return nil, &api.FlowError{Kind: api.ErrNodeNotFound, NodeID: current}
		}

		f.observer.OnNodeStart(ctx, run, current, steps)
		started := time.Now()

		action, err := runNode(ctx, current, node, store, run, f.observer)

		f.observer.OnNodeCompleted(ctx, run, current, steps, action, err, time.Since(started))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, ctxErr
			}
			return nil, &api.FlowError{Kind: api.ErrNodeFailed, NodeID: current, Err: err}
		}
		steps++

		name := action.Name()
		if f.config.IsTerminal(name) {
			return &api.ExecutionResult{
				FinalAction:   action,
				LastNodeID:    current,
				StepsExecuted: steps,
				Success:       true,
				ExecutionPath: path,
			}, nil
		}

		next, err := f.nextNode(ctx, store, current, name)
		if err != nil {
			return nil, err
		}
		current = next
	}
}

// nextNode returns the target of the first route leaving current for
// action whose condition holds.
func (f *Flow) nextNode(ctx context.Context, store api.Store, current, action string) (string, error) {
	for _, r := range f.routes[current] {
		if r.Action != action {
			continue
		}
		if r.Condition != nil {
			ok, err := r.Condition.Evaluate(ctx, store)
			if err != nil {
				return "", &api.FlowError{
					Kind:    api.ErrStore,
					NodeID:  current,
					Action:  action,
					Message: "evaluate route condition " + r.Condition.String(),
					Err:     err,
				}
			}
			if !ok {
				continue
			}
		}
		return r.Target, nil
	}
	return "", &api.FlowError{Kind: api.ErrNoRouteFound, NodeID: current, Action: action}
}
