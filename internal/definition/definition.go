// Package definition describes flows as YAML documents and builds them
// into runnable flows from the builtin node types.
package definition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/pocketflow/pkg/api"
)

// Definition is the YAML form of a flow.
type Definition struct {
	Name            string             `yaml:"name"`
	Description     string             `yaml:"description,omitempty"`
	Start           string             `yaml:"start,omitempty"`
	MaxSteps        int                `yaml:"max_steps,omitempty"`
	DetectCycles    *bool              `yaml:"detect_cycles,omitempty"`
	TerminalActions []string           `yaml:"terminal_actions,omitempty"`
	Nodes           map[string]NodeDef `yaml:"nodes"`
	Routes          []RouteDef         `yaml:"routes,omitempty"`
}

// NodeDef configures one node. Which fields apply depends on Type.
type NodeDef struct {
	Type   string    `yaml:"type"`
	Name   string    `yaml:"name,omitempty"`
	Action string    `yaml:"action,omitempty"`
	Retry  *RetryDef `yaml:"retry,omitempty"`

	// log
	Message string `yaml:"message,omitempty"`

	// set_value, get_value
	Key       string `yaml:"key,omitempty"`
	Value     any    `yaml:"value,omitempty"`
	OutputKey string `yaml:"output_key,omitempty"`

	// conditional
	When    *ConditionDef `yaml:"when,omitempty"`
	IfTrue  string        `yaml:"if_true,omitempty"`
	IfFalse string        `yaml:"if_false,omitempty"`

	// delay
	Duration time.Duration `yaml:"duration,omitempty"`

	// llm
	Model           string  `yaml:"model,omitempty"`
	SystemPrompt    string  `yaml:"system_prompt,omitempty"`
	InputKey        string  `yaml:"input_key,omitempty"`
	Temperature     float32 `yaml:"temperature,omitempty"`
	MaxTokens       int     `yaml:"max_tokens,omitempty"`
	FallbackOnError bool    `yaml:"fallback_on_error,omitempty"`

	// flow
	Flow         *Definition `yaml:"flow,omitempty"`
	ResultKey    string      `yaml:"result_key,omitempty"`
	ScopedResult bool        `yaml:"scoped_result,omitempty"`

	// Params are passed to custom node factories untouched.
	Params map[string]any `yaml:"params,omitempty"`
}

// RetryDef is the YAML form of api.RetryPolicy.
type RetryDef struct {
	Attempts   int           `yaml:"attempts"`
	Delay      time.Duration `yaml:"delay,omitempty"`
	Multiplier float64       `yaml:"multiplier,omitempty"`
	MaxDelay   time.Duration `yaml:"max_delay,omitempty"`
}

// Policy converts the definition to a retry policy.
func (r *RetryDef) Policy() api.RetryPolicy {
	if r == nil {
		return api.RetryPolicy{}
	}
	return api.RetryPolicy{
		MaxRetries: r.Attempts,
		Delay:      r.Delay,
		Multiplier: r.Multiplier,
		MaxDelay:   r.MaxDelay,
	}
}

// RouteDef connects two nodes on an action, optionally guarded by When.
type RouteDef struct {
	From   string        `yaml:"from"`
	Action string        `yaml:"action"`
	To     string        `yaml:"to"`
	When   *ConditionDef `yaml:"when,omitempty"`
}

// Parse decodes a YAML definition and checks its structure.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse flow definition: %w", err)
	}
	if err := def.Check(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFile reads and parses the definition at path.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Check validates what can be validated without building: required fields,
// known route endpoints and well-formed conditions. Node types are checked
// by Build since custom factories may add types.
func (d *Definition) Check() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("flow name is required"))
	}
	if len(d.Nodes) == 0 {
		errs = append(errs, errors.New("flow has no nodes"))
	}
	if d.MaxSteps < 0 {
		errs = append(errs, errors.New("max_steps must not be negative"))
	}

	for _, id := range d.NodeIDs() {
		n := d.Nodes[id]
		if n.Type == "" {
			errs = append(errs, fmt.Errorf("node %q: type is required", id))
		}
		if n.When != nil {
			if _, err := n.When.Condition(); err != nil {
				errs = append(errs, fmt.Errorf("node %q: %w", id, err))
			}
		}
		if n.Flow != nil {
			if err := n.Flow.Check(); err != nil {
				errs = append(errs, fmt.Errorf("node %q: nested flow: %w", id, err))
			}
		}
	}

	for i, r := range d.Routes {
		if r.From == "" || r.Action == "" || r.To == "" {
			errs = append(errs, fmt.Errorf("route %d: from, action and to are required", i))
			continue
		}
		if _, ok := d.Nodes[r.From]; !ok {
			errs = append(errs, fmt.Errorf("route %d: unknown source node %q", i, r.From))
		}
		if _, ok := d.Nodes[r.To]; !ok {
			errs = append(errs, fmt.Errorf("route %d: unknown target node %q", i, r.To))
		}
		if r.When != nil {
			if _, err := r.When.Condition(); err != nil {
				errs = append(errs, fmt.Errorf("route %d: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// NodeIDs returns the node ids in sorted order.
func (d *Definition) NodeIDs() []string {
	ids := make([]string, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Config returns the flow settings, filling unset fields from the defaults.
func (d *Definition) Config() api.FlowConfig {
	cfg := api.DefaultFlowConfig()
	if d.Start != "" {
		cfg.StartNodeID = d.Start
	}
	if d.MaxSteps > 0 {
		cfg.MaxSteps = d.MaxSteps
	}
	if d.DetectCycles != nil {
		cfg.DetectCycles = *d.DetectCycles
	}
	if d.TerminalActions != nil {
		cfg.TerminalActions = slices.Clone(d.TerminalActions)
	}
	return cfg
}

// LoadDir parses every .yaml and .yml file in dir, keyed by flow name.
func LoadDir(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read flows dir: %w", err)
	}
	defs := make(map[string]*Definition)
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := defs[def.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate flow name %q", e.Name(), def.Name)
		}
		defs[def.Name] = def
	}
	return defs, nil
}
