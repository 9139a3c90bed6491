// Package agent runs the bounded tool-calling loop: send the
// conversation to a model, service at most one requested tool call per
// iteration, and stop on a final answer or at the iteration ceiling.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/pollen/core"
)

// State identifies where the orchestration loop is, or where it stopped.
type State string

const (
	// StateSending means a model call is in flight.
	StateSending State = "SENDING"

	// StateAwaitingTool means a requested tool call is executing.
	StateAwaitingTool State = "AWAITING_TOOL"

	// StateDone means the model produced a final answer.
	StateDone State = "DONE"

	// StateMaxIterations means the loop stopped at its iteration
	// ceiling. This is a designed terminal state, not an error.
	StateMaxIterations State = "MAX_ITERATIONS"
)

func (s State) String() string {
	return string(s)
}

// DefaultMaxIterations bounds a run when Config.MaxIterations is unset.
const DefaultMaxIterations = 10

// MaxIterationsMessage is the content of a run that stopped at the
// iteration ceiling.
const MaxIterationsMessage = "Max iterations reached without a final response."

// ToolCallRecord captures one serviced tool call.
type ToolCallRecord struct {
	// Tool is the tool name the model requested.
	Tool string `json:"tool"`

	// Input holds the arguments the model supplied.
	Input map[string]any `json:"input"`

	// Output is the tool's result.
	Output any `json:"output"`

	// Seq is the 1-based position of this call within the run.
	Seq int `json:"seq"`
}

// Result is the outcome of a completed run.
type Result struct {
	Content    string           `json:"content"`
	ToolCalls  []ToolCallRecord `json:"tool_calls"`
	Iterations int              `json:"iterations"`
	State      State            `json:"state"`
	RunID      string           `json:"run_id"`
}

// RunError wraps a model or tool failure with the partial run state so
// the caller keeps the tool-call history accumulated before the
// failure.
type RunError struct {
	RunID      string
	State      State
	Iterations int
	ToolCalls  []ToolCallRecord
	Err        error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed in state %s after %d iteration(s): %v", e.RunID, e.State, e.Iterations, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Config configures an Orchestrator.
type Config struct {
	// Client sends conversations to the model.
	Client core.ModelClient

	// Adapter converts tool schemas and executes tool calls.
	Adapter core.Adapter

	// Tools is the collection exposed to the model. Optional.
	Tools *core.Toolset

	// Model is the model identifier passed through to the client.
	Model string

	// System is the system prompt seeding the conversation. Optional.
	System string

	// MaxIterations bounds the loop. Defaults to DefaultMaxIterations.
	MaxIterations int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature *float64

	// MaxTokens limits the output length.
	MaxTokens *int

	// Publisher receives run events. Optional.
	Publisher core.EventPublisher

	Logger *slog.Logger
}

// Orchestrator drives the tool-calling loop for one agent.
type Orchestrator struct {
	client        core.ModelClient
	adapter       core.Adapter
	tools         *core.Toolset
	model         string
	system        string
	maxIterations int
	temperature   *float64
	maxTokens     *int
	publisher     core.EventPublisher
	logger        *slog.Logger
	newID         func() string
}

// New validates the configuration and constructs an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Client == nil {
		return nil, errors.New("agent: model client is required")
	}
	if cfg.Adapter == nil {
		return nil, errors.New("agent: adapter is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		client:        cfg.Client,
		adapter:       cfg.Adapter,
		tools:         cfg.Tools,
		model:         cfg.Model,
		system:        cfg.System,
		maxIterations: cfg.MaxIterations,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger,
		newID:         uuid.NewString,
	}, nil
}

// Run executes the loop for one user prompt. Reaching the iteration
// ceiling returns a MAX_ITERATIONS result and a nil error; model and
// tool failures return a *RunError carrying the partial history.
func (o *Orchestrator) Run(ctx context.Context, prompt string) (Result, error) {
	runID := o.newID()

	emit := func(e core.Event) {
		if o.publisher != nil {
			o.publisher.Publish(e)
		}
	}

	runStart := time.Now()
	emit(core.NewEvent(core.EventRunStarted, runID).
		WithPayload("model", o.model).
		WithPayload("tools", o.tools.Len()))

	result, err := o.loop(ctx, runID, prompt, emit)

	finish := core.NewEvent(core.EventRunFinished, runID).
		WithElapsed(time.Since(runStart))
	if err != nil {
		var runErr *RunError
		if errors.As(err, &runErr) {
			finish = finish.WithIteration(runErr.Iterations).
				WithPayload("state", string(runErr.State))
		}
		finish = finish.
			WithPayload("status", "failed").
			WithPayload("error", err.Error())
	} else {
		finish = finish.WithIteration(result.Iterations).
			WithPayload("status", "completed").
			WithPayload("state", string(result.State))
	}
	emit(finish)

	return result, err
}

func (o *Orchestrator) loop(ctx context.Context, runID, prompt string, emit core.EventEmitter) (Result, error) {
	schemas, err := o.adapter.ConvertTools(o.tools.All())
	if err != nil {
		return Result{}, &RunError{
			RunID: runID,
			State: StateSending,
			Err:   fmt.Errorf("convert tools: %w", err),
		}
	}

	messages := make([]core.ModelMessage, 0, 2)
	if o.system != "" {
		messages = append(messages, core.ModelMessage{Role: core.RoleSystem, Content: o.system})
	}
	messages = append(messages, core.ModelMessage{Role: core.RoleUser, Content: prompt})

	records := []ToolCallRecord{}

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		req := core.ModelRequest{
			Model:       o.model,
			Messages:    messages,
			Tools:       schemas,
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		}

		emit(core.NewEvent(core.EventModelCall, runID).
			WithIteration(iteration).
			WithPayload("messages", len(messages)))

		callStart := time.Now()
		resp, err := o.client.Complete(ctx, req)
		if err != nil {
			o.logger.Error("model call failed",
				"run_id", runID, "iteration", iteration, "error", err)
			return Result{}, &RunError{
				RunID:      runID,
				State:      StateSending,
				Iterations: iteration,
				ToolCalls:  records,
				Err:        fmt.Errorf("model call: %w", err),
			}
		}

		emit(core.NewEvent(core.EventModelResponse, runID).
			WithIteration(iteration).
			WithElapsed(time.Since(callStart)).
			WithPayload("has_tool_calls", resp.HasToolCalls()).
			WithPayload("input_tokens", resp.Usage.InputTokens).
			WithPayload("output_tokens", resp.Usage.OutputTokens))

		call, ok := resp.FirstToolCall()
		if !ok {
			return Result{
				Content:    resp.Text,
				ToolCalls:  records,
				Iterations: iteration,
				State:      StateDone,
				RunID:      runID,
			}, nil
		}

		// Exactly one call is serviced per iteration; extra calls in
		// the same response are not executed and not replayed.
		messages = append(messages, core.ModelMessage{
			Role:      core.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: []core.ModelToolCall{call},
		})

		emit(core.NewEvent(core.EventToolCall, runID).
			WithTool(call.Name).
			WithIteration(iteration))

		toolStart := time.Now()
		output, err := o.adapter.ExecuteTool(ctx, call.Name, call.Arguments, o.tools)
		if err != nil {
			o.logger.Error("tool execution failed",
				"run_id", runID, "tool", call.Name, "iteration", iteration, "error", err)
			emit(core.NewEvent(core.EventToolFailed, runID).
				WithTool(call.Name).
				WithIteration(iteration).
				WithElapsed(time.Since(toolStart)).
				WithPayload("error", err.Error()))
			return Result{}, &RunError{
				RunID:      runID,
				State:      StateAwaitingTool,
				Iterations: iteration,
				ToolCalls:  records,
				Err:        fmt.Errorf("execute tool %q: %w", call.Name, err),
			}
		}

		records = append(records, ToolCallRecord{
			Tool:   call.Name,
			Input:  call.Arguments,
			Output: output,
			Seq:    len(records) + 1,
		})

		emit(core.NewEvent(core.EventToolResult, runID).
			WithTool(call.Name).
			WithIteration(iteration).
			WithElapsed(time.Since(toolStart)))

		messages = append(messages, core.ModelMessage{
			Role: core.RoleTool,
			Name: call.Name,
			ToolResults: []core.ModelToolResult{
				{CallID: call.ID, Content: output},
			},
		})
	}

	o.logger.Warn("run stopped at iteration ceiling",
		"run_id", runID, "max_iterations", o.maxIterations, "tool_calls", len(records))

	return Result{
		Content:    MaxIterationsMessage,
		ToolCalls:  records,
		Iterations: o.maxIterations,
		State:      StateMaxIterations,
		RunID:      runID,
	}, nil
}
