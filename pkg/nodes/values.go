package nodes

import (
	"context"
	"fmt"

	"github.com/petrijr/pocketflow/pkg/api"
)

// SetValueNode writes a fixed value to the store.
type SetValueNode struct {
	api.BaseNode
	key    string
	value  any
	action api.Action
}

func NewSetValueNode(key string, value any, action api.Action, opts ...Option) *SetValueNode {
	s := applyOptions("set_value", opts)
	return &SetValueNode{BaseNode: s.base(), key: key, value: value, action: action}
}

func (n *SetValueNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	if err := store.Set(ctx, n.key, n.value); err != nil {
		return api.Action{}, fmt.Errorf("set %q: %w", n.key, err)
	}
	return n.action, nil
}

// Transform maps the value read by a GetValueNode. value is nil when the
// key is missing.
type Transform func(value any) (any, error)

// GetValueNode reads a key, transforms the value and writes the result to
// another key.
type GetValueNode struct {
	api.BaseNode
	key       string
	outputKey string
	transform Transform
	action    api.Action
}

// NewGetValueNode copies key to outputKey through transform. A nil
// transform copies the value unchanged.
func NewGetValueNode(key, outputKey string, transform Transform, action api.Action, opts ...Option) *GetValueNode {
	s := applyOptions("get_value", opts)
	if transform == nil {
		transform = func(v any) (any, error) { return v, nil }
	}
	return &GetValueNode{BaseNode: s.base(), key: key, outputKey: outputKey, transform: transform, action: action}
}

func (n *GetValueNode) Prep(ctx context.Context, store api.Store, ec *api.ExecutionContext) (any, error) {
	v, _, err := store.Get(ctx, n.key)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", n.key, err)
	}
	return v, nil
}

func (n *GetValueNode) Exec(ctx context.Context, prep any, ec *api.ExecutionContext) (any, error) {
	return n.transform(prep)
}

func (n *GetValueNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	if err := store.Set(ctx, n.outputKey, exec); err != nil {
		return api.Action{}, fmt.Errorf("set %q: %w", n.outputKey, err)
	}
	return n.action, nil
}
