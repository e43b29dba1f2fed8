package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/petrijr/pocketflow/pkg/api"
)

// DefaultLLMModel is used when LLMConfig.Model is empty.
const DefaultLLMModel = openai.GPT4oMini

// LLMConfig controls how an LLMNode calls the model.
type LLMConfig struct {
	Model        string
	SystemPrompt string
	// InputKey holds either a prompt string or a list of {role, content}
	// messages.
	InputKey    string
	OutputKey   string
	Temperature float32
	MaxTokens   int
	Stop        []string

	// FallbackOnError stores an error description as the answer instead of
	// failing the node once retries are exhausted.
	FallbackOnError bool
}

// NewOpenAIClient returns a client for any OpenAI-compatible endpoint.
// baseURL may be empty for the default API.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// LLMNode sends a chat completion request and stores the answer. With a nil
// client it answers with a mock response, which keeps flows runnable
// without credentials.
type LLMNode struct {
	api.BaseNode
	client *openai.Client
	cfg    LLMConfig
	action api.Action
}

func NewLLMNode(client *openai.Client, cfg LLMConfig, action api.Action, opts ...Option) *LLMNode {
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.InputKey == "" {
		cfg.InputKey = "prompt"
	}
	if cfg.OutputKey == "" {
		cfg.OutputKey = "llm_output"
	}
	s := applyOptions("llm", opts)
	return &LLMNode{BaseNode: s.base(), client: client, cfg: cfg, action: action}
}

func (n *LLMNode) Prep(ctx context.Context, store api.Store, ec *api.ExecutionContext) (any, error) {
	raw, ok, err := store.Get(ctx, n.cfg.InputKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("input key %q not found in store", n.cfg.InputKey)
	}

	var messages []openai.ChatCompletionMessage
	if n.cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: n.cfg.SystemPrompt,
		})
	}

	switch v := raw.(type) {
	case string:
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: v})
	case []any:
		for i, item := range v {
			msg, err := parseMessage(item)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			messages = append(messages, msg)
		}
	default:
		return nil, fmt.Errorf("input must be a prompt string or a list of messages, got %T", raw)
	}

	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}
	return messages, nil
}

func parseMessage(item any) (openai.ChatCompletionMessage, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return openai.ChatCompletionMessage{}, fmt.Errorf("expected object, got %T", item)
	}
	role, _ := m["role"].(string)
	content, hasContent := m["content"].(string)
	if role == "" {
		return openai.ChatCompletionMessage{}, errors.New("message must have a 'role' field")
	}
	if !hasContent {
		return openai.ChatCompletionMessage{}, errors.New("message must have a 'content' field")
	}
	switch role {
	case openai.ChatMessageRoleSystem, openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant:
	default:
		return openai.ChatCompletionMessage{}, fmt.Errorf("unsupported message role: %s", role)
	}
	name, _ := m["name"].(string)
	return openai.ChatCompletionMessage{Role: role, Content: content, Name: name}, nil
}

func (n *LLMNode) Exec(ctx context.Context, prep any, ec *api.ExecutionContext) (any, error) {
	messages, _ := prep.([]openai.ChatCompletionMessage)

	if n.client == nil {
		return fmt.Sprintf("mock response for %s", lastUserContent(messages)), nil
	}

	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       n.cfg.Model,
		Messages:    messages,
		Temperature: n.cfg.Temperature,
		MaxTokens:   n.cfg.MaxTokens,
		Stop:        n.cfg.Stop,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion (attempt %d): %w", ec.Attempt(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (n *LLMNode) ExecFallback(ctx context.Context, prep any, err error, ec *api.ExecutionContext) (any, error) {
	if !n.cfg.FallbackOnError {
		return nil, err
	}
	return fmt.Sprintf("LLM request failed: %v", err), nil
}

func (n *LLMNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	if err := store.Set(ctx, n.cfg.OutputKey, exec); err != nil {
		return api.Action{}, fmt.Errorf("set %q: %w", n.cfg.OutputKey, err)
	}
	return n.action, nil
}

func lastUserContent(messages []openai.ChatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			return messages[i].Content
		}
	}
	return ""
}
