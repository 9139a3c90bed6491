package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/pollen/loader"
)

// Diagnostic severities.
const (
	severityError   = "error"
	severityWarning = "warning"
)

// Diagnostic is one finding from adapter configuration validation.
type Diagnostic struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
}

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate an adapter configuration file without loading it",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	out := cmd.OutOrStdout()

	var diags []Diagnostic
	cfg, err := loader.ParseFile(filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return exitError(exitFileNotFound, "file not found: %s", filePath)
	case err != nil:
		diags = []Diagnostic{{
			Code:     "CF-000",
			Severity: severityError,
			Message:  err.Error(),
		}}
	default:
		diags = checkConfig(cfg, builtinLocator().Refs())
	}

	printValidateDiagnostics(out, diags, format)

	hasErrs := len(errorDiags(diags)) > 0
	hasWarns := len(warningDiags(diags)) > 0

	if hasErrs || (strict && hasWarns) {
		return exitError(exitValidation, "validation failed")
	}

	return nil
}

// checkConfig validates every descriptor in the document against the known
// builtin module references. Descriptor-level failures mirror what the
// loader would skip at load time; module-reference findings are warnings
// because plugin paths resolve only at first use.
func checkConfig(cfg *loader.Config, builtinRefs []string) []Diagnostic {
	var diags []Diagnostic

	if len(cfg.Adapters) == 0 {
		return append(diags, Diagnostic{
			Code:     "CF-004",
			Severity: severityWarning,
			Message:  "configuration declares no adapters",
		})
	}

	seen := make(map[string]int, len(cfg.Adapters))
	for i, d := range cfg.Adapters {
		path := fmt.Sprintf("adapters[%d]", i)

		if err := loader.CheckDescriptor(d); err != nil {
			diags = append(diags, Diagnostic{
				Code:     "CF-001",
				Severity: severityError,
				Message:  err.Error(),
				Path:     path,
			})
			continue
		}

		if first, dup := seen[d.Name]; dup {
			diags = append(diags, Diagnostic{
				Code:     "CF-002",
				Severity: severityError,
				Message:  fmt.Sprintf("duplicate adapter name %q (first declared at adapters[%d])", d.Name, first),
				Path:     path,
			})
		} else {
			seen[d.Name] = i
		}

		if !slices.Contains(builtinRefs, d.Module) && !strings.HasSuffix(d.Module, ".so") {
			diags = append(diags, Diagnostic{
				Code:     "CF-003",
				Severity: severityWarning,
				Message:  fmt.Sprintf("module %q is neither a builtin nor a plugin path; resolution will fail on first use", d.Module),
				Path:     path,
			})
		}
	}

	return diags
}

// printValidateDiagnostics writes diagnostics to the writer in the requested
// format, followed by a summary line (for text format).
func printValidateDiagnostics(w io.Writer, diags []Diagnostic, format string) {
	if format == "json" {
		printDiagnosticsJSON(w, diags)
		return
	}
	printDiagnosticsText(w, diags)
}

// printDiagnosticsText writes diagnostics as formatted text lines followed by
// a summary.
func printDiagnosticsText(w io.Writer, diags []Diagnostic) {
	for _, d := range diags {
		sev := strings.ToUpper(d.Severity)
		if d.Path != "" {
			fmt.Fprintf(w, "%s [%s]: %s (at %s)\n", sev, d.Code, d.Message, d.Path)
		} else {
			fmt.Fprintf(w, "%s [%s]: %s\n", sev, d.Code, d.Message)
		}
	}

	errs := errorDiags(diags)
	warns := warningDiags(diags)

	switch {
	case len(errs) == 0 && len(warns) == 0:
		fmt.Fprintln(w, "Valid!")
	case len(errs) == 0 && len(warns) > 0:
		fmt.Fprintf(w, "\nValid! (%d %s)\n", len(warns), pluralize("warning", len(warns)))
	default:
		fmt.Fprintf(w, "\n%d %s, %d %s\n",
			len(errs), pluralize("error", len(errs)),
			len(warns), pluralize("warning", len(warns)))
	}
}

func printDiagnosticsJSON(w io.Writer, diags []Diagnostic) {
	// Output an empty array rather than null when there are no diagnostics.
	if diags == nil {
		diags = []Diagnostic{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(diags)
}

func filterSeverity(diags []Diagnostic, severity string) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.Severity == severity {
			out = append(out, d)
		}
	}
	return out
}

func errorDiags(diags []Diagnostic) []Diagnostic   { return filterSeverity(diags, severityError) }
func warningDiags(diags []Diagnostic) []Diagnostic { return filterSeverity(diags, severityWarning) }

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
