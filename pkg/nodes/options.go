// Package nodes provides ready-made nodes for common flow steps: logging,
// reading and writing store values, branching, waiting, typed closures and
// chat-completion calls.
//
// Every constructor accepts Options; WithRetry sets how often Exec is
// attempted.
package nodes

import (
	"log/slog"

	"github.com/petrijr/pocketflow/pkg/api"
)

// Option configures a builtin node.
type Option func(*settings)

type settings struct {
	name   string
	retry  api.RetryPolicy
	logger *slog.Logger
}

// WithName overrides the node name reported in errors and logs.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithRetry sets the Exec retry policy.
func WithRetry(p api.RetryPolicy) Option {
	return func(s *settings) { s.retry = p }
}

// WithLogger sets the logger used by nodes that log.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func applyOptions(defaultName string, opts []Option) settings {
	s := settings{name: defaultName}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s settings) base() api.BaseNode {
	return api.BaseNode{NodeName: s.name, Retry: s.retry}
}
