package nodes

import (
	"context"

	"github.com/petrijr/pocketflow/pkg/api"
)

// Predicate decides a ConditionalNode's branch from the store.
type Predicate func(ctx context.Context, store api.Store) (bool, error)

// ConditionalNode returns one of two actions depending on the store.
type ConditionalNode struct {
	api.BaseNode
	predicate Predicate
	ifTrue    api.Action
	ifFalse   api.Action
}

// NewConditionalNode branches on cond, evaluated in Prep.
func NewConditionalNode(cond api.Condition, ifTrue, ifFalse api.Action, opts ...Option) *ConditionalNode {
	return NewPredicateNode(cond.Evaluate, ifTrue, ifFalse, append([]Option{WithName("conditional")}, opts...)...)
}

// NewPredicateNode branches on an arbitrary predicate.
func NewPredicateNode(pred Predicate, ifTrue, ifFalse api.Action, opts ...Option) *ConditionalNode {
	s := applyOptions("predicate", opts)
	return &ConditionalNode{BaseNode: s.base(), predicate: pred, ifTrue: ifTrue, ifFalse: ifFalse}
}

func (n *ConditionalNode) Prep(ctx context.Context, store api.Store, ec *api.ExecutionContext) (any, error) {
	return n.predicate(ctx, store)
}

func (n *ConditionalNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	if ok, _ := prep.(bool); ok {
		return n.ifTrue, nil
	}
	return n.ifFalse, nil
}
