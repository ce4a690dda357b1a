package engine

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/dlmm-scout/core"
)

// Default upstream model settings.
const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024
)

// ClaudeCompleter streams completions from the Anthropic Messages API.
type ClaudeCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeCompleter creates a completer. Extra request options (base URL,
// HTTP client, retries) are passed through to the SDK client.
func NewClaudeCompleter(apiKey, model string, maxTokens int64, opts ...option.RequestOption) *ClaudeCompleter {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &ClaudeCompleter{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

// StreamText sends system and messages upstream and calls onText with each
// text fragment as it arrives. An error from onText stops the stream and is
// returned as is; upstream failures are returned as *core.GatewayError.
func (c *ClaudeCompleter) StreamText(ctx context.Context, system string, messages []core.Message, onText func(string) error) error {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  toMessageParams(messages),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		switch evt := stream.Current().AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				if err := onText(delta.Text); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		gwErr := &core.GatewayError{Op: "anthropic stream", Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			gwErr.StatusCode = apiErr.StatusCode
		}
		return gwErr
	}
	return nil
}

func toMessageParams(messages []core.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == core.RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	return params
}
