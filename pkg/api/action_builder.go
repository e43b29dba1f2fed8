package api

import "maps"

// ActionBuilder composes richer actions fluently:
//
//	action := api.NewActionBuilder("llm_call").
//	    WithParam("temperature", 0.7).
//	    WithPriority(5).
//	    Build()
type ActionBuilder struct {
	action Action
}

// NewActionBuilder starts from a simple action with the given name.
func NewActionBuilder(name string) *ActionBuilder {
	return &ActionBuilder{action: Simple(name)}
}

// WithParams replaces the current action with a parameterized action that
// keeps the current name.
func (b *ActionBuilder) WithParams(params map[string]any) *ActionBuilder {
	b.action = Parameterized(b.action.Name(), params)
	return b
}

// WithParam adds a single parameter, keeping parameters set earlier.
func (b *ActionBuilder) WithParam(key string, value any) *ActionBuilder {
	params := b.action.Params()
	if params == nil {
		params = map[string]any{}
	}
	params[key] = value
	return b.WithParams(params)
}

// WithPriority wraps the current action with a priority.
func (b *ActionBuilder) WithPriority(priority int) *ActionBuilder {
	b.action = Prioritized(b.action, priority)
	return b
}

// WithMetadata wraps the current action with metadata.
func (b *ActionBuilder) WithMetadata(metadata map[string]any) *ActionBuilder {
	b.action = WithMetadata(b.action, maps.Clone(metadata))
	return b
}

// Build returns the composed action.
func (b *ActionBuilder) Build() Action {
	return b.action
}
