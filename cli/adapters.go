package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/pollen/manager"
	"github.com/petal-labs/pollen/registry"
)

// NewAdaptersCmd creates the "adapters" command group.
func NewAdaptersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapters",
		Short: "Inspect registered adapters",
	}
	cmd.PersistentFlags().String("config", "", "Adapter configuration file (JSON or YAML)")
	cmd.PersistentFlags().Bool("env", false, "Load adapter descriptors from the environment")

	cmd.AddCommand(newAdaptersListCmd())
	cmd.AddCommand(newAdaptersInspectCmd())

	return cmd
}

// newAdapterManager builds a manager over the builtin locator table,
// optionally layering descriptors from --config and the environment.
func newAdapterManager(cmd *cobra.Command, logger *slog.Logger) (*manager.Manager, error) {
	m, err := manager.New(manager.WithLocator(builtinLocator()), manager.WithLogger(logger))
	if err != nil {
		return nil, exitError(exitRuntime, "building adapter manager: %v", err)
	}
	registerBuiltins(m)

	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		if _, err := m.LoadConfig(configPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, exitError(exitFileNotFound, "file not found: %s", configPath)
			}
			return nil, exitError(exitValidation, "loading config: %v", err)
		}
	}
	if fromEnv, _ := cmd.Flags().GetBool("env"); fromEnv {
		if _, err := m.LoadEnv(os.Environ()); err != nil {
			return nil, exitError(exitValidation, "loading environment descriptors: %v", err)
		}
	}

	return m, nil
}

func newAdaptersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered adapters",
		Args:  cobra.NoArgs,
		RunE:  runAdaptersList,
	}
}

func runAdaptersList(cmd *cobra.Command, args []string) error {
	m, err := newAdapterManager(cmd, runLogger(cmd))
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tMODULE\tSOURCE\tSTATUS")
	for _, reg := range m.Registry().Registrations() {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			reg.Name,
			displayModule(reg.Metadata),
			displaySource(reg.Metadata),
			displayStatus(reg.Lazy),
		)
	}
	return writer.Flush()
}

func newAdaptersInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Show one adapter registration in detail",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdaptersInspect,
	}
	cmd.Flags().Bool("resolve", false, "Force resolution and report the concrete adapter type")
	return cmd
}

// adapterView is the JSON shape inspect prints.
type adapterView struct {
	Name     string         `json:"name"`
	Lazy     bool           `json:"lazy"`
	Resolved string         `json:"resolved,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func runAdaptersInspect(cmd *cobra.Command, args []string) error {
	name := args[0]
	m, err := newAdapterManager(cmd, runLogger(cmd))
	if err != nil {
		return err
	}

	reg, found := findRegistration(m, name)
	if !found {
		return exitError(exitValidation, "adapter %q is not registered", name)
	}

	view := adapterView{
		Name:     reg.Name,
		Lazy:     reg.Lazy,
		Metadata: maskConfigValues(reg.Metadata),
	}

	if resolve, _ := cmd.Flags().GetBool("resolve"); resolve {
		adp, err := m.Get(name, nil)
		if err != nil {
			return exitError(exitRuntime, "resolving %q: %v", name, err)
		}
		view.Resolved = fmt.Sprintf("%T", adp)
		view.Lazy = m.Registry().IsLazy(name)
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding registration: %v", err)
	}
	_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
	return nil
}

func findRegistration(m *manager.Manager, name string) (registry.Registration, bool) {
	for _, reg := range m.Registry().Registrations() {
		if reg.Name == name {
			return reg, true
		}
	}
	return registry.Registration{}, false
}

func displayModule(md map[string]any) string {
	if s, ok := md["module"].(string); ok && s != "" {
		return s
	}
	return "-"
}

func displaySource(md map[string]any) string {
	if b, ok := md["builtin"].(bool); ok && b {
		return "builtin"
	}
	return "config"
}

func displayStatus(lazy bool) string {
	if lazy {
		return "lazy"
	}
	return "resolved"
}

// maskConfigValues copies metadata, replacing values of config keys that
// look sensitive so inspect output is safe to paste into logs or issues.
func maskConfigValues(md map[string]any) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	cfg, ok := out["config"].(map[string]any)
	if !ok {
		return out
	}
	masked := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if sensitiveConfigKey(k) {
			masked[k] = "***"
		} else {
			masked[k] = v
		}
	}
	out["config"] = masked
	return out
}

func sensitiveConfigKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
