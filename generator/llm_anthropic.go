package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// reviewOpener 用于首条消息是 assistant 的对话；Messages API 要求以 user 开头。
const reviewOpener = "Here is the material to work on."

// AnthropicLLM implements LLMClient on the Anthropic Messages API.
type AnthropicLLM struct {
	Model       string
	Temperature float64
	MaxTokens   int

	client *anthropic.Client
}

func NewAnthropicLLMFromConfig(cfg *LLMSettings) (*AnthropicLLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key missing; provide llm.api_key")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicLLM{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   maxTokens,
		client:      anthropic.NewClient(cfg.APIKey, opts...),
	}, nil
}

func (a *AnthropicLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(a.Model),
		System:    prompt.System,
		Messages:  toAnthropicMessages(prompt.messages()),
		MaxTokens: a.MaxTokens,
	}
	if a.Temperature > 0 {
		t := float32(a.Temperature)
		req.Temperature = &t
	}

	resp, err := a.client.CreateMessages(ctx, req)
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) && (apiErr.IsAuthenticationErr() || apiErr.IsPermissionErr()) {
			return "", fmt.Errorf("anthropic: %w: %v", ErrUnauthorized, err)
		}
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}
	return sb.String(), nil
}

// toAnthropicMessages 合并相邻的同角色消息，并保证对话以 user 开头。
func toAnthropicMessages(msgs []Message) []anthropic.Message {
	var out []anthropic.Message
	var lastRole anthropic.ChatRole
	for _, m := range msgs {
		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		if len(out) == 0 && role == anthropic.RoleAssistant {
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(reviewOpener)},
			})
			lastRole = anthropic.RoleUser
		}
		if len(out) > 0 && role == lastRole {
			last := &out[len(out)-1]
			last.Content = append(last.Content, anthropic.NewTextMessageContent(m.Content))
			continue
		}
		out = append(out, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)},
		})
		lastRole = role
	}
	return out
}
