package nodes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/petrijr/pocketflow/pkg/api"
)

// LogNode logs a message and returns a fixed action.
type LogNode struct {
	api.BaseNode
	message string
	action  api.Action
	logger  *slog.Logger
}

// NewLogNode returns a node logging message at info level.
func NewLogNode(message string, action api.Action, opts ...Option) *LogNode {
	s := applyOptions("log", opts)
	return &LogNode{BaseNode: s.base(), message: message, action: action, logger: s.logger}
}

func (n *LogNode) Prep(ctx context.Context, store api.Store, ec *api.ExecutionContext) (any, error) {
	return fmt.Sprintf("Execution %s: %s", ec.ExecutionID, n.message), nil
}

func (n *LogNode) Exec(ctx context.Context, prep any, ec *api.ExecutionContext) (any, error) {
	n.logger.InfoContext(ctx, fmt.Sprint(prep), slog.String("node", n.Name()))
	return prep, nil
}

func (n *LogNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	return n.action, nil
}
