// Package irisadapter bridges pollen to iris: a core.ModelClient backed
// by an iris provider, and a protocol Adapter whose converted tool
// schemas ride iris chat requests as JSON-schema tool definitions.
package irisadapter

import (
	"context"
	"encoding/json"
	"fmt"

	iriscore "github.com/petal-labs/iris/core"
	"github.com/petal-labs/iris/providers"
	iristools "github.com/petal-labs/iris/tools"

	// Auto-register common providers.
	_ "github.com/petal-labs/iris/providers/anthropic"
	_ "github.com/petal-labs/iris/providers/ollama"
	_ "github.com/petal-labs/iris/providers/openai"

	"github.com/petal-labs/pollen/core"
)

// Client wraps an iris Provider to implement core.ModelClient.
type Client struct {
	provider iriscore.Provider
}

// NewClient wraps an existing iris provider.
func NewClient(provider iriscore.Provider) *Client {
	return &Client{provider: provider}
}

// NewProviderClient creates a client for the named provider through the
// iris provider registry. The common providers are registered by
// import; others must be registered by the caller before use.
func NewProviderClient(name, apiKey string) (*Client, error) {
	provider, err := providers.Create(name, apiKey)
	if err != nil {
		return nil, fmt.Errorf("creating provider %q: %w", name, err)
	}
	return &Client{provider: provider}, nil
}

// ProviderID returns the underlying provider's ID.
func (c *Client) ProviderID() string {
	return c.provider.ID()
}

// Complete sends a synchronous completion request via the iris provider.
func (c *Client) Complete(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
	chatReq := c.toRequest(req)

	chatResp, err := c.provider.Chat(ctx, chatReq)
	if err != nil {
		return core.ModelResponse{}, fmt.Errorf("provider chat failed: %w", err)
	}

	return c.fromResponse(chatResp), nil
}

// toRequest converts a core.ModelRequest to an iris ChatRequest.
func (c *Client) toRequest(req core.ModelRequest) *iriscore.ChatRequest {
	messages := make([]iriscore.Message, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, iriscore.Message{
			Role:    iriscore.RoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		msg := iriscore.Message{
			Role:    toIrisRole(m.Role),
			Content: m.Content,
		}

		if len(m.ToolCalls) > 0 {
			msg.ToolCalls = make([]iriscore.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				msg.ToolCalls[i] = iriscore.ToolCall{
					ID:        tc.ID,
					Name:      tc.Name,
					Arguments: args,
				}
			}
		}

		if len(m.ToolResults) > 0 {
			msg.ToolResults = make([]iriscore.ToolResult, len(m.ToolResults))
			for i, tr := range m.ToolResults {
				msg.ToolResults[i] = iriscore.ToolResult{
					CallID:  tr.CallID,
					Content: tr.Content,
					IsError: tr.IsError,
				}
			}
		}

		messages = append(messages, msg)
	}

	chatReq := &iriscore.ChatRequest{
		Model:    iriscore.ModelID(req.Model),
		Messages: messages,
	}

	if len(req.Tools) > 0 {
		chatReq.Tools = make([]iriscore.Tool, 0, len(req.Tools))
		for _, schema := range req.Tools {
			chatReq.Tools = append(chatReq.Tools, newSchemaTool(schema))
		}
	}

	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		chatReq.Temperature = &temp
	}
	if req.MaxTokens != nil {
		chatReq.MaxTokens = req.MaxTokens
	}

	return chatReq
}

// fromResponse converts an iris ChatResponse to a core.ModelResponse.
func (c *Client) fromResponse(resp *iriscore.ChatResponse) core.ModelResponse {
	result := core.ModelResponse{
		Text:  resp.Output,
		Model: string(resp.Model),
		Usage: core.ModelUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Meta: map[string]any{"provider": c.provider.ID()},
	}

	if resp.ID != "" {
		result.Meta["response_id"] = resp.ID
	}

	if len(resp.ToolCalls) > 0 {
		result.ToolCalls = make([]core.ModelToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			args := make(map[string]any)
			if len(tc.Arguments) > 0 {
				_ = json.Unmarshal(tc.Arguments, &args) // Best effort parsing
			}
			result.ToolCalls[i] = core.ModelToolCall{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: args,
			}
		}
	}

	return result
}

// toIrisRole converts a role string to an iris Role constant.
func toIrisRole(role string) iriscore.Role {
	switch role {
	case core.RoleSystem:
		return iriscore.RoleSystem
	case core.RoleAssistant:
		return iriscore.RoleAssistant
	case core.RoleTool:
		return iriscore.RoleTool
	default:
		return iriscore.RoleUser
	}
}

// schemaTool exposes a converted tool schema map through the iris Tool
// interface so it can ride in a ChatRequest.
type schemaTool struct {
	name        string
	description string
	params      json.RawMessage
}

func newSchemaTool(schema map[string]any) schemaTool {
	st := schemaTool{}
	if v, ok := schema["name"].(string); ok {
		st.name = v
	}
	if v, ok := schema["description"].(string); ok {
		st.description = v
	}
	if params, ok := schema["parameters"]; ok {
		if raw, err := json.Marshal(params); err == nil {
			st.params = raw
		}
	}
	if len(st.params) == 0 {
		st.params = json.RawMessage(`{"type":"object"}`)
	}
	return st
}

func (t schemaTool) Name() string        { return t.name }
func (t schemaTool) Description() string { return t.description }

func (t schemaTool) Schema() iristools.ToolSchema {
	return iristools.ToolSchema{JSONSchema: t.params}
}

// Compile-time interface checks.
var (
	_ core.ModelClient = (*Client)(nil)
	_ iriscore.Tool    = schemaTool{}
)
