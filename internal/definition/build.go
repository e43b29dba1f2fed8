package definition

import (
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/petrijr/pocketflow/internal/engine"
	"github.com/petrijr/pocketflow/pkg/api"
	"github.com/petrijr/pocketflow/pkg/nodes"
)

// DefaultAction is returned by builtin nodes whose definition sets no
// action.
const DefaultAction = "next"

// NodeFactory builds a node of a custom type.
type NodeFactory func(id string, def NodeDef, opts BuildOptions) (api.Node, error)

// BuildOptions supplies what definitions cannot carry themselves.
type BuildOptions struct {
	// LLMClient serves llm nodes. Nil makes them answer with mock
	// responses.
	LLMClient    *openai.Client
	DefaultModel string

	Logger   *slog.Logger
	Observer api.Observer

	// MaxSteps applies when the definition sets none.
	MaxSteps int

	// Factories add or override node types.
	Factories map[string]NodeFactory
}

// Build turns a definition into a flow. The flow is not validated.
func Build(def *Definition, opts BuildOptions) (*engine.Flow, error) {
	if def == nil {
		return nil, fmt.Errorf("nil flow definition")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := def.Check(); err != nil {
		return nil, err
	}

	built := make(map[string]api.Node, len(def.Nodes))
	for _, id := range def.NodeIDs() {
		node, err := buildNode(id, def.Nodes[id], opts)
		if err != nil {
			return nil, fmt.Errorf("flow %q: node %q: %w", def.Name, id, err)
		}
		built[id] = node
	}

	routes := make([]api.Route, 0, len(def.Routes))
	for _, r := range def.Routes {
		route := api.Route{Source: r.From, Action: r.Action, Target: r.To}
		if r.When != nil {
			cond, err := r.When.Condition()
			if err != nil {
				return nil, err
			}
			route.Condition = &cond
		}
		routes = append(routes, route)
	}

	cfg := def.Config()
	if def.MaxSteps == 0 && opts.MaxSteps > 0 {
		cfg.MaxSteps = opts.MaxSteps
	}

	return engine.NewFlow(engine.Config{
		Name:     def.Name,
		Flow:     cfg,
		Nodes:    built,
		Routes:   routes,
		Observer: opts.Observer,
	}), nil
}

func buildNode(id string, def NodeDef, opts BuildOptions) (api.Node, error) {
	if f, ok := opts.Factories[def.Type]; ok {
		return f(id, def, opts)
	}

	nodeOpts := []nodes.Option{nodes.WithLogger(opts.Logger), nodes.WithRetry(def.Retry.Policy())}
	if def.Name != "" {
		nodeOpts = append(nodeOpts, nodes.WithName(def.Name))
	} else {
		nodeOpts = append(nodeOpts, nodes.WithName(id))
	}
	action := api.Simple(orDefault(def.Action, DefaultAction))

	switch def.Type {
	case "log":
		return nodes.NewLogNode(def.Message, action, nodeOpts...), nil

	case "set_value":
		if def.Key == "" {
			return nil, fmt.Errorf("set_value: key is required")
		}
		return nodes.NewSetValueNode(def.Key, def.Value, action, nodeOpts...), nil

	case "get_value":
		if def.Key == "" || def.OutputKey == "" {
			return nil, fmt.Errorf("get_value: key and output_key are required")
		}
		return nodes.NewGetValueNode(def.Key, def.OutputKey, nil, action, nodeOpts...), nil

	case "conditional":
		if def.When == nil {
			return nil, fmt.Errorf("conditional: when is required")
		}
		cond, err := def.When.Condition()
		if err != nil {
			return nil, err
		}
		return nodes.NewConditionalNode(cond,
			api.Simple(orDefault(def.IfTrue, "true")),
			api.Simple(orDefault(def.IfFalse, "false")),
			nodeOpts...), nil

	case "delay":
		if def.Duration < 0 {
			return nil, fmt.Errorf("delay: duration must not be negative")
		}
		return nodes.NewDelayNode(def.Duration, action, nodeOpts...), nil

	case "llm":
		return nodes.NewLLMNode(opts.LLMClient, nodes.LLMConfig{
			Model:           orDefault(def.Model, opts.DefaultModel),
			SystemPrompt:    def.SystemPrompt,
			InputKey:        def.InputKey,
			OutputKey:       def.OutputKey,
			Temperature:     def.Temperature,
			MaxTokens:       def.MaxTokens,
			FallbackOnError: def.FallbackOnError,
		}, action, nodeOpts...), nil

	case "flow":
		if def.Flow == nil {
			return nil, fmt.Errorf("flow: nested flow definition is required")
		}
		inner, err := Build(def.Flow, opts)
		if err != nil {
			return nil, err
		}
		flowOpts := []engine.FlowNodeOption{engine.WithNodeName(orDefault(def.Name, id))}
		if def.ResultKey != "" {
			flowOpts = append(flowOpts, engine.WithResultKey(def.ResultKey))
		}
		if def.ScopedResult {
			flowOpts = append(flowOpts, engine.WithExecutionScopedResult())
		}
		return engine.NewFlowNode(inner, flowOpts...), nil

	default:
		return nil, fmt.Errorf("unknown node type %q", def.Type)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
