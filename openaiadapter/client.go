// Package openaiadapter connects the tool-calling loop to OpenAI-compatible
// chat-completion APIs via the go-openai SDK. A custom BaseURL supports
// self-hosted and third-party endpoints that speak the same wire format.
package openaiadapter

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/petal-labs/pollen/core"
)

// Config carries the connection settings for an OpenAI-compatible endpoint.
type Config struct {
	// APIKey authenticates requests. Required by hosted endpoints.
	APIKey string

	// BaseURL overrides the default API endpoint. Leave empty for OpenAI.
	BaseURL string

	// Model is used when a request does not name one.
	Model string
}

// Client implements core.ModelClient on top of the OpenAI chat completion API.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a client from connection settings.
func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(apiCfg),
		model: cfg.Model,
	}
}

// Complete sends the conversation to the chat completion endpoint and maps
// the first choice back into a ModelResponse.
func (c *Client) Complete(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toMessages(req),
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toAPITools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return core.ModelResponse{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.ModelResponse{}, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	out := core.ModelResponse{
		Text:  choice.Message.Content,
		Model: resp.Model,
		Usage: core.ModelUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Meta: map[string]any{"provider": "openai"},
	}
	if resp.ID != "" {
		out.Meta["response_id"] = resp.ID
	}
	if choice.FinishReason != "" {
		out.Meta["finish_reason"] = string(choice.FinishReason)
	}

	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args) // Best effort parsing.
		out.ToolCalls = append(out.ToolCalls, core.ModelToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

// toMessages converts the request conversation to the SDK message format.
// A tool message carrying results expands into one API message per result,
// since the chat completion API pairs each result with its tool_call_id.
func toMessages(req core.ModelRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		if m.Role == core.RoleTool && len(m.ToolResults) > 0 {
			for _, r := range m.ToolResults {
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    stringifyContent(r.Content),
					ToolCallID: r.CallID,
				})
			}
			continue
		}

		msg := openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		messages = append(messages, msg)
	}
	return messages
}

// toAPITools converts adapter-produced schemas into SDK tool definitions.
// Schemas in the nested function-calling shape are unwrapped; flat schemas
// with a top-level name are accepted as the function definition directly.
func toAPITools(schemas []map[string]any) []openai.Tool {
	tools := make([]openai.Tool, 0, len(schemas))
	for _, schema := range schemas {
		fn := schema
		if nested, ok := schema["function"].(map[string]any); ok {
			fn = nested
		}
		name, _ := fn["name"].(string)
		description, _ := fn["description"].(string)
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: description,
				Parameters:  fn["parameters"],
			},
		})
	}
	return tools
}

// stringifyContent renders a tool result as message content. Strings pass
// through unchanged; everything else is marshalled to JSON.
func stringifyContent(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// Ensure interface compliance at compile time.
var _ core.ModelClient = (*Client)(nil)
