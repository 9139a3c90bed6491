package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/petal-labs/pollen/agent"
	"github.com/petal-labs/pollen/bus"
	"github.com/petal-labs/pollen/core"
	"github.com/petal-labs/pollen/irisadapter"
	"github.com/petal-labs/pollen/manager"
	"github.com/petal-labs/pollen/openaiadapter"
	pollenotel "github.com/petal-labs/pollen/otel"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run a tool-calling conversation against a model",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().String("config", "", "Adapter configuration file (JSON or YAML)")
	cmd.Flags().StringArray("adapter", nil, "Adapter name, repeatable for a fallback chain (default: the --client value)")
	cmd.Flags().String("client", "openai", "Model transport: openai | iris")
	cmd.Flags().String("provider", "openai", "Provider name for the iris transport")
	cmd.Flags().String("model", "", "Model identifier")
	cmd.Flags().String("system", "", "System prompt")
	cmd.Flags().String("api-key", "", "API key (default: the provider environment variable)")
	cmd.Flags().String("base-url", "", "Base URL override for the openai transport")
	cmd.Flags().Int("max-iterations", agent.DefaultMaxIterations, "Tool-calling iteration ceiling")
	cmd.Flags().Float64("temperature", 0, "Sampling temperature")
	cmd.Flags().Int("max-tokens", 0, "Response token limit")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Run timeout")
	cmd.Flags().String("format", "pretty", "Output format: pretty | text | json")
	cmd.Flags().Bool("events", false, "Stream run events to stderr")
	cmd.Flags().String("otel-endpoint", "", "OTLP/HTTP endpoint for trace export (enables tracing)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt := args[0]
	logger := runLogger(cmd)

	m, err := newAdapterManager(cmd, logger)
	if err != nil {
		return err
	}

	adp, err := resolveRunAdapter(cmd, m)
	if err != nil {
		return err
	}

	client, err := resolveRunClient(cmd)
	if err != nil {
		return err
	}

	tools, err := builtinToolset()
	if err != nil {
		return exitError(exitRuntime, "building builtin tools: %v", err)
	}

	ctx, cancel, timeout := runContext(cmd)
	defer cancel()

	tracing, adp, shutdown, err := setupRunTracing(ctx, cmd, adp)
	if err != nil {
		return err
	}
	defer func() {
		if shutdown != nil {
			_ = shutdown(context.Background())
		}
	}()

	publisher, waitEvents := setupRunEvents(cmd, tracing)

	settings := resolveRunSettings(cmd)
	orch, err := agent.New(agent.Config{
		Client:        client,
		Adapter:       adp,
		Tools:         tools,
		Model:         settings.model,
		System:        settings.system,
		MaxIterations: settings.maxIterations,
		Temperature:   settings.temperature,
		MaxTokens:     settings.maxTokens,
		Publisher:     publisher,
		Logger:        logger,
	})
	if err != nil {
		return exitError(exitInputParse, "configuring run: %v", err)
	}

	result, err := orch.Run(ctx, prompt)
	waitEvents()
	if err != nil {
		return runFailure(ctx, timeout, err)
	}

	return writeRunResult(cmd, result)
}

// runLogger builds a stderr logger honoring the root --verbose flag when the
// command is mounted under one.
func runLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// runSettings carries the model parameters for one run. Temperature and
// max-tokens stay nil unless their flags were set, so provider defaults
// apply when the caller says nothing.
type runSettings struct {
	model         string
	system        string
	maxIterations int
	temperature   *float64
	maxTokens     *int
}

func resolveRunSettings(cmd *cobra.Command) runSettings {
	var s runSettings
	s.model, _ = cmd.Flags().GetString("model")
	s.system, _ = cmd.Flags().GetString("system")
	s.maxIterations, _ = cmd.Flags().GetInt("max-iterations")
	if cmd.Flags().Changed("temperature") {
		v, _ := cmd.Flags().GetFloat64("temperature")
		s.temperature = &v
	}
	if cmd.Flags().Changed("max-tokens") {
		v, _ := cmd.Flags().GetInt("max-tokens")
		s.maxTokens = &v
	}
	return s
}

// resolveRunAdapter picks the protocol adapter through the manager. The
// --adapter flags form a fallback chain; with none given the chain is just
// the --client value, matching the builtin registration names.
func resolveRunAdapter(cmd *cobra.Command, m *manager.Manager) (core.Adapter, error) {
	names, _ := cmd.Flags().GetStringArray("adapter")
	if len(names) == 0 {
		clientKind, _ := cmd.Flags().GetString("client")
		names = []string{clientKind}
	}

	name, adp, err := m.GetWithFallback(names, nil)
	if err != nil {
		return nil, exitError(exitProvider, "resolving adapter: %v", err)
	}
	if len(names) > 1 {
		fmt.Fprintf(cmd.ErrOrStderr(), "using adapter %q\n", name)
	}
	return adp, nil
}

// resolveRunClient builds the model transport named by --client.
func resolveRunClient(cmd *cobra.Command) (core.ModelClient, error) {
	kind, _ := cmd.Flags().GetString("client")
	apiKey, _ := cmd.Flags().GetString("api-key")

	switch kind {
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, exitError(exitProvider, "no API key: set --api-key or OPENAI_API_KEY")
		}
		baseURL, _ := cmd.Flags().GetString("base-url")
		model, _ := cmd.Flags().GetString("model")
		return openaiadapter.NewClient(openaiadapter.Config{APIKey: apiKey, BaseURL: baseURL, Model: model}), nil
	case "iris":
		provider, _ := cmd.Flags().GetString("provider")
		if apiKey == "" {
			apiKey = os.Getenv(providerKeyEnv(provider))
		}
		client, err := irisadapter.NewProviderClient(provider, apiKey)
		if err != nil {
			return nil, exitError(exitProvider, "creating %s provider: %v", provider, err)
		}
		return client, nil
	default:
		return nil, exitError(exitInputParse, "unknown client %q (use openai or iris)", kind)
	}
}

// providerKeyEnv maps a provider name onto its conventional API key
// environment variable, e.g. anthropic -> ANTHROPIC_API_KEY.
func providerKeyEnv(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}

func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc, time.Duration) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return ctx, cancel, timeout
}

// setupRunTracing initializes OTLP trace export when --otel-endpoint is set
// and wraps the adapter with instrumentation. Without the flag everything
// passes through untouched.
func setupRunTracing(ctx context.Context, cmd *cobra.Command, adp core.Adapter) (*pollenotel.TracingHandler, core.Adapter, func(context.Context) error, error) {
	endpoint, _ := cmd.Flags().GetString("otel-endpoint")
	if endpoint == "" {
		return nil, adp, nil, nil
	}

	shutdown, err := pollenotel.InitTracing(ctx, pollenotel.TracingConfig{
		Endpoint:    endpoint,
		Insecure:    true,
		ServiceName: "pollen",
	})
	if err != nil {
		return nil, nil, nil, exitError(exitRuntime, "initializing tracing: %v", err)
	}

	tracer := otel.Tracer("pollen/cli")
	observed, err := pollenotel.NewObservedAdapter(adp, otel.Meter("pollen/cli"), tracer)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, nil, nil, exitError(exitRuntime, "instrumenting adapter: %v", err)
	}

	return pollenotel.NewTracingHandler(tracer), observed, shutdown, nil
}

// eventPublisherFunc adapts a function to core.EventPublisher.
type eventPublisherFunc func(core.Event)

func (f eventPublisherFunc) Publish(e core.Event) { f(e) }

// setupRunEvents wires the event path for one run: an in-memory bus with a
// stderr printer when --events is set, and span creation plus trace-context
// enrichment when tracing is active. The returned wait function flushes the
// printer; callers invoke it after the run so every event lands before the
// result prints.
func setupRunEvents(cmd *cobra.Command, tracing *pollenotel.TracingHandler) (core.EventPublisher, func()) {
	streaming, _ := cmd.Flags().GetBool("events")

	var sink core.EventEmitter
	wait := func() {}

	if streaming {
		b := bus.NewMemBus(bus.MemBusConfig{})
		sub := b.SubscribeAll()
		done := make(chan struct{})
		errW := cmd.ErrOrStderr()
		go func() {
			defer close(done)
			for e := range sub.Events() {
				printRunEvent(errW, e)
			}
		}()
		sink = b.Publish
		wait = func() {
			_ = b.Close()
			<-done
		}
	}

	if tracing != nil {
		// The handler must see each event before enrichment so the tool
		// span exists by the time its context is looked up.
		forward := sink
		if forward != nil {
			forward = pollenotel.EnrichEmitter(forward, tracing)
		}
		sink = func(e core.Event) {
			tracing.Handle(e)
			if forward != nil {
				forward(e)
			}
		}
	}

	if sink == nil {
		return nil, wait
	}
	return eventPublisherFunc(sink), wait
}

func printRunEvent(w io.Writer, e core.Event) {
	line := fmt.Sprintf("%-14s", e.Kind)
	if e.Iteration > 0 {
		line += fmt.Sprintf(" iter=%d", e.Iteration)
	}
	if e.Tool != "" {
		line += fmt.Sprintf(" tool=%s", e.Tool)
	}
	if e.Elapsed > 0 {
		line += fmt.Sprintf(" elapsed=%s", e.Elapsed.Round(time.Millisecond))
	}
	if e.TraceID != "" {
		line += fmt.Sprintf(" trace=%s", e.TraceID)
	}
	fmt.Fprintln(w, line)
}

func runFailure(ctx context.Context, timeout time.Duration, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return exitError(exitTimeout, "run timed out after %s", timeout)
	}
	var runErr *agent.RunError
	if errors.As(err, &runErr) {
		return exitError(exitRuntime, "run %s failed after %d iteration(s): %v", runErr.RunID, runErr.Iterations, runErr.Err)
	}
	return exitError(exitRuntime, "run failed: %v", err)
}

// writeRunResult formats and writes the run result.
func writeRunResult(cmd *cobra.Command, result agent.Result) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding result: %v", err)
		}
		fmt.Fprintln(out, string(data))
	case "text":
		// Just the final content.
		fmt.Fprintln(out, result.Content)
	case "pretty":
		printRunResult(out, result)
	default:
		return exitError(exitInputParse, "unknown format %q (use pretty, text, or json)", format)
	}
	return nil
}

// printRunResult writes a human-readable summary of the run.
func printRunResult(w io.Writer, result agent.Result) {
	fmt.Fprintln(w, "=== Answer ===")
	fmt.Fprintln(w, result.Content)

	if len(result.ToolCalls) > 0 {
		fmt.Fprintf(w, "\n=== Tool Calls (%d) ===\n", len(result.ToolCalls))
		writer := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
		fmt.Fprintln(writer, "SEQ\tTOOL\tINPUT\tOUTPUT")
		for _, rec := range result.ToolCalls {
			fmt.Fprintf(
				writer,
				"%d\t%s\t%s\t%s\n",
				rec.Seq,
				rec.Tool,
				truncate(compactValue(rec.Input), 60),
				truncate(compactValue(rec.Output), 60),
			)
		}
		_ = writer.Flush()
	}

	fmt.Fprintln(w, "\n=== Run ===")
	fmt.Fprintf(w, "  Run ID: %s\n", result.RunID)
	fmt.Fprintf(w, "  State: %s\n", result.State)
	fmt.Fprintf(w, "  Iterations: %d\n", result.Iterations)
}

// compactValue renders a tool input or output on a single table cell.
func compactValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return t
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
