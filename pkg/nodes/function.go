package nodes

import (
	"context"
	"fmt"

	"github.com/petrijr/pocketflow/pkg/api"
)

// FunctionNode adapts typed closures to the Node contract. P is the prep
// result and E the exec result. Nil phases behave like api.BaseNode.
type FunctionNode[P, E any] struct {
	api.BaseNode

	PrepFunc     func(ctx context.Context, store api.Store, ec *api.ExecutionContext) (P, error)
	ExecFunc     func(ctx context.Context, prep P, ec *api.ExecutionContext) (E, error)
	FallbackFunc func(ctx context.Context, prep P, err error, ec *api.ExecutionContext) (E, error)
	PostFunc     func(ctx context.Context, store api.Store, prep P, exec E, ec *api.ExecutionContext) (api.Action, error)
}

// NewFunctionNode returns a node running exec between a nil prep and a post
// that returns action.
func NewFunctionNode[P, E any](exec func(ctx context.Context, prep P, ec *api.ExecutionContext) (E, error), action api.Action, opts ...Option) *FunctionNode[P, E] {
	s := applyOptions("function", opts)
	return &FunctionNode[P, E]{
		BaseNode: s.base(),
		ExecFunc: exec,
		PostFunc: func(context.Context, api.Store, P, E, *api.ExecutionContext) (api.Action, error) {
			return action, nil
		},
	}
}

func (n *FunctionNode[P, E]) Prep(ctx context.Context, store api.Store, ec *api.ExecutionContext) (any, error) {
	if n.PrepFunc == nil {
		var zero P
		return zero, nil
	}
	return n.PrepFunc(ctx, store, ec)
}

func (n *FunctionNode[P, E]) Exec(ctx context.Context, prep any, ec *api.ExecutionContext) (any, error) {
	if n.ExecFunc == nil {
		var zero E
		return zero, nil
	}
	p, err := cast[P](prep)
	if err != nil {
		return nil, err
	}
	return n.ExecFunc(ctx, p, ec)
}

func (n *FunctionNode[P, E]) ExecFallback(ctx context.Context, prep any, err error, ec *api.ExecutionContext) (any, error) {
	if n.FallbackFunc == nil {
		return nil, err
	}
	p, castErr := cast[P](prep)
	if castErr != nil {
		return nil, castErr
	}
	return n.FallbackFunc(ctx, p, err, ec)
}

func (n *FunctionNode[P, E]) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	if n.PostFunc == nil {
		return n.BaseNode.Post(ctx, store, prep, exec, ec)
	}
	p, err := cast[P](prep)
	if err != nil {
		return api.Action{}, err
	}
	e, err := cast[E](exec)
	if err != nil {
		return api.Action{}, err
	}
	return n.PostFunc(ctx, store, p, e, ec)
}

// cast converts v to T, treating nil as the zero value.
func cast[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected value type %T, want %T", v, zero)
	}
	return t, nil
}
