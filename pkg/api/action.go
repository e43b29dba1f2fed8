package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// ActionKind identifies the variant of an Action.
type ActionKind string

const (
	ActionSimple        ActionKind = "simple"
	ActionParameterized ActionKind = "parameterized"
	ActionConditional   ActionKind = "conditional"
	ActionMultiple      ActionKind = "multiple"
	ActionPrioritized   ActionKind = "prioritized"
	ActionWithMetadata  ActionKind = "with_metadata"
)

// Action is the outcome label a node returns from Post.
//
// Actions are immutable values. Only Name is used for routing; the richer
// variants exist for producers and observers.
type Action struct {
	kind     ActionKind
	name     string
	params   map[string]any
	cond     *Condition
	ifTrue   *Action
	ifFalse  *Action
	actions  []Action
	inner    *Action
	priority int
	metadata map[string]any
}

// Simple returns an action that is just a name.
func Simple(name string) Action {
	return Action{kind: ActionSimple, name: name}
}

// Parameterized returns a named action carrying parameters.
func Parameterized(name string, params map[string]any) Action {
	return Action{kind: ActionParameterized, name: name, params: maps.Clone(params)}
}

// ConditionalAction returns an action holding a condition and two branches.
// Its Name is the name of ifTrue; the router never evaluates cond.
func ConditionalAction(cond Condition, ifTrue, ifFalse Action) Action {
	return Action{kind: ActionConditional, cond: &cond, ifTrue: &ifTrue, ifFalse: &ifFalse}
}

// Multiple returns an ordered list of actions. Its Name is the name of the
// first element, or "empty".
func Multiple(actions ...Action) Action {
	return Action{kind: ActionMultiple, actions: slices.Clone(actions)}
}

// Prioritized wraps action with an integer priority.
func Prioritized(action Action, priority int) Action {
	return Action{kind: ActionPrioritized, inner: &action, priority: priority}
}

// WithMetadata wraps action with arbitrary metadata.
func WithMetadata(action Action, metadata map[string]any) Action {
	return Action{kind: ActionWithMetadata, inner: &action, metadata: maps.Clone(metadata)}
}

// Kind returns the variant of a. The zero Action is simple.
func (a Action) Kind() ActionKind {
	if a.kind == "" {
		return ActionSimple
	}
	return a.kind
}

// Name returns the primary name used for routing.
func (a Action) Name() string {
	switch a.Kind() {
	case ActionConditional:
		return a.ifTrue.Name()
	case ActionMultiple:
		if len(a.actions) == 0 {
			return "empty"
		}
		return a.actions[0].Name()
	case ActionPrioritized, ActionWithMetadata:
		return a.inner.Name()
	default:
		return a.name
	}
}

// Params returns the parameters of a parameterized action, looking through
// priority and metadata wrappers. It returns nil for every other variant.
func (a Action) Params() map[string]any {
	switch a.Kind() {
	case ActionParameterized:
		return maps.Clone(a.params)
	case ActionPrioritized, ActionWithMetadata:
		return a.inner.Params()
	default:
		return nil
	}
}

// HasParams reports whether Params would return a parameter set.
func (a Action) HasParams() bool {
	switch a.Kind() {
	case ActionParameterized:
		return true
	case ActionPrioritized, ActionWithMetadata:
		return a.inner.HasParams()
	default:
		return false
	}
}

// Priority returns the priority of a prioritized action, looking through a
// metadata wrapper.
func (a Action) Priority() (int, bool) {
	switch a.Kind() {
	case ActionPrioritized:
		return a.priority, true
	case ActionWithMetadata:
		return a.inner.Priority()
	default:
		return 0, false
	}
}

// Metadata returns the metadata of a with_metadata action, or nil.
func (a Action) Metadata() map[string]any {
	if a.Kind() != ActionWithMetadata {
		return nil
	}
	return maps.Clone(a.metadata)
}

func (a Action) IsSimple() bool      { return a.Kind() == ActionSimple }
func (a Action) IsConditional() bool { return a.Kind() == ActionConditional }
func (a Action) IsMultiple() bool    { return a.Kind() == ActionMultiple }

// Actions returns the elements of a multiple action.
func (a Action) Actions() []Action {
	if a.Kind() != ActionMultiple {
		return nil
	}
	return slices.Clone(a.actions)
}

// Inner returns the action wrapped by a prioritized or with_metadata action.
func (a Action) Inner() (Action, bool) {
	if a.inner == nil {
		return Action{}, false
	}
	return *a.inner, true
}

// Branches returns the condition and branches of a conditional action.
func (a Action) Branches() (cond Condition, ifTrue, ifFalse Action, ok bool) {
	if a.Kind() != ActionConditional {
		return Condition{}, Action{}, Action{}, false
	}
	return *a.cond, *a.ifTrue, *a.ifFalse, true
}

// Equal reports structural equality. Parameter and metadata values are
// compared after JSON normalisation.
func (a Action) Equal(b Action) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	var l, r any
	if json.Unmarshal(left, &l) != nil || json.Unmarshal(right, &r) != nil {
		return false
	}
	return reflect.DeepEqual(l, r)
}

func (a Action) String() string {
	switch a.Kind() {
	case ActionParameterized:
		keys := slices.Sorted(maps.Keys(a.params))
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+formatValue(a.params[k]))
		}
		return fmt.Sprintf("%s(%s)", a.name, strings.Join(parts, ", "))
	case ActionConditional:
		return fmt.Sprintf("if %s then %s else %s", a.cond, a.ifTrue, a.ifFalse)
	case ActionMultiple:
		parts := make([]string, 0, len(a.actions))
		for _, child := range a.actions {
			parts = append(parts, child.String())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ActionPrioritized:
		return fmt.Sprintf("%s@%d", a.inner, a.priority)
	case ActionWithMetadata:
		return a.inner.String()
	default:
		return a.name
	}
}

type actionJSON struct {
	Kind      ActionKind     `json:"kind"`
	Name      string         `json:"name,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Condition *Condition     `json:"condition,omitempty"`
	IfTrue    *Action        `json:"if_true,omitempty"`
	IfFalse   *Action        `json:"if_false,omitempty"`
	Actions   []Action       `json:"actions,omitempty"`
	Action    *Action        `json:"action,omitempty"`
	Priority  *int           `json:"priority,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	out := actionJSON{Kind: a.Kind()}
	switch out.Kind {
	case ActionSimple:
		out.Name = a.name
	case ActionParameterized:
		out.Name = a.name
		out.Params = a.params
		if out.Params == nil {
			out.Params = map[string]any{}
		}
	case ActionConditional:
		out.Condition, out.IfTrue, out.IfFalse = a.cond, a.ifTrue, a.ifFalse
	case ActionMultiple:
		out.Actions = a.actions
		if out.Actions == nil {
			out.Actions = []Action{}
		}
	case ActionPrioritized:
		p := a.priority
		out.Action, out.Priority = a.inner, &p
	case ActionWithMetadata:
		out.Action, out.Metadata = a.inner, a.metadata
	}
	return json.Marshal(out)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	// A bare JSON string decodes as a simple action.
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*a = Simple(name)
		return nil
	}

	var in actionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case ActionSimple, "":
		*a = Simple(in.Name)
	case ActionParameterized:
		*a = Parameterized(in.Name, in.Params)
	case ActionConditional:
		if in.Condition == nil || in.IfTrue == nil || in.IfFalse == nil {
			return errors.New("conditional action requires condition, if_true and if_false")
		}
		*a = ConditionalAction(*in.Condition, *in.IfTrue, *in.IfFalse)
	case ActionMultiple:
		*a = Multiple(in.Actions...)
	case ActionPrioritized:
		if in.Action == nil {
			return errors.New("prioritized action requires action")
		}
		priority := 0
		if in.Priority != nil {
			priority = *in.Priority
		}
		*a = Prioritized(*in.Action, priority)
	case ActionWithMetadata:
		if in.Action == nil {
			return errors.New("with_metadata action requires action")
		}
		*a = WithMetadata(*in.Action, in.Metadata)
	default:
		return fmt.Errorf("unknown action kind %q", in.Kind)
	}
	return nil
}

// formatValue renders v the way it would appear in JSON.
func formatValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
