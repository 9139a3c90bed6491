package irisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	iriscore "github.com/petal-labs/iris/core"

	"github.com/petal-labs/pollen/core"
)

// mockProvider implements iriscore.Provider for testing.
type mockProvider struct {
	id           string
	chatResponse *iriscore.ChatResponse
	chatError    error
	capturedReq  *iriscore.ChatRequest
}

func (m *mockProvider) ID() string { return m.id }

func (m *mockProvider) Chat(_ context.Context, req *iriscore.ChatRequest) (*iriscore.ChatResponse, error) {
	m.capturedReq = req
	if m.chatError != nil {
		return nil, m.chatError
	}
	return m.chatResponse, nil
}

func (m *mockProvider) StreamChat(context.Context, *iriscore.ChatRequest) (*iriscore.ChatStream, error) {
	return nil, nil
}

func (m *mockProvider) Models() []iriscore.ModelInfo {
	return []iriscore.ModelInfo{{ID: "mock-model"}}
}

func (m *mockProvider) Supports(f iriscore.Feature) bool {
	return f == iriscore.FeatureChat
}

func TestClient_Complete_SimplePrompt(t *testing.T) {
	mock := &mockProvider{
		id: "test-provider",
		chatResponse: &iriscore.ChatResponse{
			ID:     "resp-1",
			Model:  "claude-3",
			Output: "Hello from LLM",
			Usage: iriscore.TokenUsage{
				PromptTokens:     12,
				CompletionTokens: 8,
				TotalTokens:      20,
			},
		},
	}
	client := NewClient(mock)

	resp, err := client.Complete(context.Background(), core.ModelRequest{
		Model:  "claude-3",
		System: "You are helpful",
		Messages: []core.ModelMessage{
			{Role: core.RoleUser, Content: "Say hello"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hello from LLM" {
		t.Errorf("Text = %q, want %q", resp.Text, "Hello from LLM")
	}
	if resp.Model != "claude-3" {
		t.Errorf("Model = %q, want %q", resp.Model, "claude-3")
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 8 || resp.Usage.TotalTokens != 20 {
		t.Errorf("Usage = %+v, want 12/8/20", resp.Usage)
	}
	if resp.Meta["provider"] != "test-provider" {
		t.Errorf("Meta[provider] = %v, want %q", resp.Meta["provider"], "test-provider")
	}
	if resp.Meta["response_id"] != "resp-1" {
		t.Errorf("Meta[response_id] = %v, want %q", resp.Meta["response_id"], "resp-1")
	}

	if mock.capturedReq == nil {
		t.Fatal("expected request to be captured")
	}
	if len(mock.capturedReq.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(mock.capturedReq.Messages))
	}
	if mock.capturedReq.Messages[0].Role != iriscore.RoleSystem {
		t.Errorf("first message role = %v, want system", mock.capturedReq.Messages[0].Role)
	}
	if mock.capturedReq.Messages[1].Content != "Say hello" {
		t.Errorf("user message content = %q, want %q", mock.capturedReq.Messages[1].Content, "Say hello")
	}
}

func TestClient_Complete_ToolSchemas(t *testing.T) {
	mock := &mockProvider{
		id:           "test",
		chatResponse: &iriscore.ChatResponse{Output: "ok"},
	}
	client := NewClient(mock)

	_, err := client.Complete(context.Background(), core.ModelRequest{
		Model: "claude-3",
		Messages: []core.ModelMessage{
			{Role: core.RoleUser, Content: "hi"},
		},
		Tools: []map[string]any{
			{
				"name":        "echo",
				"description": "echoes text back",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{"type": "string"},
					},
					"required": []string{"text"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.capturedReq.Tools) != 1 {
		t.Fatalf("len(Tools) = %d, want 1", len(mock.capturedReq.Tools))
	}
	tool := mock.capturedReq.Tools[0].(schemaTool)
	if tool.Name() != "echo" {
		t.Errorf("tool name = %q, want %q", tool.Name(), "echo")
	}
	if tool.Description() != "echoes text back" {
		t.Errorf("tool description = %q", tool.Description())
	}

	var schema map[string]any
	if err := json.Unmarshal(tool.Schema().JSONSchema, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema properties missing: %v", schema)
	}
	if _, ok := props["text"]; !ok {
		t.Errorf("properties = %v, want text entry", props)
	}
}

func TestClient_Complete_ToolCallRoundTrip(t *testing.T) {
	args := json.RawMessage(`{"city":"Boston"}`)
	mock := &mockProvider{
		id: "test",
		chatResponse: &iriscore.ChatResponse{
			ToolCalls: []iriscore.ToolCall{
				{ID: "call-1", Name: "get_weather", Arguments: args},
			},
		},
	}
	client := NewClient(mock)

	resp, err := client.Complete(context.Background(), core.ModelRequest{
		Model: "claude-3",
		Messages: []core.ModelMessage{
			{Role: core.RoleUser, Content: "weather in Boston?"},
			{
				Role: core.RoleAssistant,
				ToolCalls: []core.ModelToolCall{
					{ID: "call-0", Name: "get_weather", Arguments: map[string]any{"city": "Paris"}},
				},
			},
			{
				Role: core.RoleTool,
				ToolResults: []core.ModelToolResult{
					{CallID: "call-0", Content: map[string]any{"condition": "sunny"}},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Outbound conversion: map arguments become raw JSON.
	assistant := mock.capturedReq.Messages[1]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("len(assistant.ToolCalls) = %d, want 1", len(assistant.ToolCalls))
	}
	var sent map[string]any
	if err := json.Unmarshal(assistant.ToolCalls[0].Arguments, &sent); err != nil {
		t.Fatalf("sent arguments not JSON: %v", err)
	}
	if sent["city"] != "Paris" {
		t.Errorf("sent arguments = %v, want city Paris", sent)
	}
	toolMsg := mock.capturedReq.Messages[2]
	if len(toolMsg.ToolResults) != 1 || toolMsg.ToolResults[0].CallID != "call-0" {
		t.Errorf("tool results = %+v, want call-0 result", toolMsg.ToolResults)
	}

	// Inbound conversion: raw JSON arguments become a map.
	if !resp.HasToolCalls() {
		t.Fatal("HasToolCalls() = false, want true")
	}
	call, _ := resp.FirstToolCall()
	if call.ID != "call-1" || call.Name != "get_weather" {
		t.Errorf("FirstToolCall() = %+v", call)
	}
	if call.Arguments["city"] != "Boston" {
		t.Errorf("Arguments = %v, want city Boston", call.Arguments)
	}
}

func TestClient_Complete_TemperatureAndMaxTokens(t *testing.T) {
	mock := &mockProvider{
		id:           "test",
		chatResponse: &iriscore.ChatResponse{Output: "ok"},
	}
	client := NewClient(mock)

	temp := 0.2
	maxTokens := 512
	_, err := client.Complete(context.Background(), core.ModelRequest{
		Model:       "claude-3",
		Messages:    []core.ModelMessage{{Role: core.RoleUser, Content: "hi"}},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.capturedReq.Temperature == nil || *mock.capturedReq.Temperature != float32(0.2) {
		t.Errorf("Temperature = %v, want 0.2", mock.capturedReq.Temperature)
	}
	if mock.capturedReq.MaxTokens == nil || *mock.capturedReq.MaxTokens != 512 {
		t.Errorf("MaxTokens = %v, want 512", mock.capturedReq.MaxTokens)
	}
}

func TestClient_Complete_ProviderError(t *testing.T) {
	boom := errors.New("rate limited")
	client := NewClient(&mockProvider{id: "test", chatError: boom})

	_, err := client.Complete(context.Background(), core.ModelRequest{Model: "claude-3"})
	if !errors.Is(err, boom) {
		t.Errorf("Complete() error = %v, want wrapped provider error", err)
	}
}

func TestToIrisRole(t *testing.T) {
	tests := []struct {
		role     string
		expected iriscore.Role
	}{
		{"system", iriscore.RoleSystem},
		{"user", iriscore.RoleUser},
		{"assistant", iriscore.RoleAssistant},
		{"tool", iriscore.RoleTool},
		{"unknown", iriscore.RoleUser},
	}
	for _, tt := range tests {
		if got := toIrisRole(tt.role); got != tt.expected {
			t.Errorf("toIrisRole(%q) = %v, want %v", tt.role, got, tt.expected)
		}
	}
}

func TestNewSchemaTool_Defaults(t *testing.T) {
	st := newSchemaTool(map[string]any{"name": "bare"})
	if st.Name() != "bare" {
		t.Errorf("Name() = %q, want %q", st.Name(), "bare")
	}
	if string(st.Schema().JSONSchema) != `{"type":"object"}` {
		t.Errorf("Schema() = %s, want empty object schema", st.Schema().JSONSchema)
	}
}
