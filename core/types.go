// Package core provides the foundational types and interfaces for Pollen.
//
// This package contains:
//   - Tool types: ToolParameter, ToolSchema, Tool, Toolset
//   - The Adapter protocol and its runtime verification
//   - Model transport: ModelClient, ModelRequest, ModelResponse
//   - Run events emitted by the orchestrator
package core

import "context"

// ParamType identifies the declared type of a tool parameter.
// The set of tags is intentionally small and provider-neutral.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeAny     ParamType = "any"
)

// String returns the string representation of the ParamType.
func (t ParamType) String() string {
	return string(t)
}

// ValidParamType reports whether t is one of the declared parameter type tags.
func ValidParamType(t ParamType) bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject, TypeAny:
		return true
	}
	return false
}

// Capability groups tools by the kind of work they do (e.g. "general",
// "search", "filesystem"). Adapters and callers may use it for filtering.
type Capability string

// CapabilityGeneral is the default capability for tools that declare none.
const CapabilityGeneral Capability = "general"

// String returns the string representation of the Capability.
func (c Capability) String() string {
	return string(c)
}

// Chat role strings shared by the orchestrator and model clients.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// =============================================================================
// Model Client Interface
// =============================================================================

// ModelClient abstracts a single provider/model backend. Implementations
// adapt provider SDKs to this common interface; the call is synchronous and
// blocking, with no retry or timeout imposed here.
type ModelClient interface {
	Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// ModelRequest is the request structure for a model completion.
// It is transport-agnostic and works across different providers.
type ModelRequest struct {
	Model       string           // model identifier (e.g., "gpt-4", "claude-3-opus")
	System      string           // system prompt
	Messages    []ModelMessage   // conversation messages
	Tools       []map[string]any // tool schemas converted by an Adapter
	Temperature *float64         // optional: sampling temperature
	MaxTokens   *int             // optional: maximum output tokens
	Meta        map[string]any   // trace/cost controls
}

// ModelMessage is a chat message in Pollen format.
type ModelMessage struct {
	Role        string            // "system", "user", "assistant", "tool"
	Content     string            // message content
	Name        string            // optional: tool name
	ToolCalls   []ModelToolCall   // for assistant messages with pending tool calls
	ToolResults []ModelToolResult // for tool result messages (Role="tool")
	Meta        map[string]any    // optional metadata
}

// ModelResponse captures the output from a model call.
type ModelResponse struct {
	Text      string          // raw text output
	ToolCalls []ModelToolCall // tool calls requested by the model
	Model     string          // model that generated the response
	Usage     ModelUsage      // token consumption
	Meta      map[string]any  // additional response metadata
}

// HasToolCalls reports whether the model requested any tool invocations.
func (r ModelResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// FirstToolCall returns the first requested tool call, if any.
func (r ModelResponse) FirstToolCall() (ModelToolCall, bool) {
	if len(r.ToolCalls) == 0 {
		return ModelToolCall{}, false
	}
	return r.ToolCalls[0], true
}

// ModelToolCall represents a tool invocation requested by the model.
type ModelToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ModelToolResult represents the result of executing a tool.
// It is sent back to the model to continue a multi-turn tool exchange.
type ModelToolResult struct {
	CallID  string // must match ModelToolCall.ID from the response
	Content any    // result data (JSON marshaled by the client)
	IsError bool   // true if this represents an error result
}

// ModelUsage tracks token consumption for model calls.
type ModelUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add combines two ModelUsage values.
func (u ModelUsage) Add(other ModelUsage) ModelUsage {
	return ModelUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}
