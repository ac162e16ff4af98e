package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/botflow/config"
	"github.com/petal-labs/botflow/normalize"
)

// loadConfig resolves the --config flag (or discovery) into a Config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, path, err := config.Load(explicit)
	if err != nil {
		return nil, exitError(exitInputParse, "loading config: %v", err)
	}
	if path != "" {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "Using config %s\n", path)
		}
	}
	return cfg, nil
}

func addNormalizeFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-nodes", 0, "Maximum number of non-structural nodes (0 = no explicit cap)")
	cmd.Flags().StringSlice("allow-types", nil, "Node types the flow may use, comma separated")
	cmd.Flags().String("complexity", "", "Node budget preset: simple | moderate | complex")
	cmd.Flags().String("format", "json", "Output format: json | text")
	cmd.Flags().StringP("output", "o", "", "Write the result to file (default: stdout)")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")
	cmd.Flags().String("config", "", "Path to botflow.yaml")
}

// normalizeOptions layers explicitly set flags over the configured options.
func normalizeOptions(cmd *cobra.Command, base normalize.Options) normalize.Options {
	opts := base
	if cmd.Flags().Changed("max-nodes") {
		opts.MaxNodes, _ = cmd.Flags().GetInt("max-nodes")
	}
	if cmd.Flags().Changed("allow-types") {
		opts.AllowNodeTypes, _ = cmd.Flags().GetStringSlice("allow-types")
	}
	if cmd.Flags().Changed("complexity") {
		opts.Complexity, _ = cmd.Flags().GetString("complexity")
	}
	return opts
}

// readInput reads a file argument, or stdin when the argument is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, exitError(exitInputParse, "reading stdin: %v", err)
		}
		return data, nil
	}
	// #nosec G304 -- path is an explicit CLI argument.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, exitError(exitInputParse, "reading %s: %v", path, err)
	}
	return data, nil
}

// writeResult prints a normalization result in the requested format and
// maps its validation outcome to an exit code.
func writeResult(cmd *cobra.Command, res *normalize.Result) error {
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	strict, _ := cmd.Flags().GetBool("strict")

	var output string
	switch format {
	case "json":
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "marshaling result: %v", err)
		}
		output = string(data)
	case "text":
		output = formatResultText(res)
	default:
		return exitError(exitInputParse, "unknown format %q (use json or text)", format)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(output+"\n"), 0o600); err != nil {
			return exitError(exitRuntime, "writing output file: %v", err)
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), output)
	}

	if !res.OK() || (strict && len(res.Validation.Warnings) > 0) {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

func formatResultText(res *normalize.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Flow (%d %s, %d %s) ===\n",
		len(res.Flow.Nodes), pluralize("node", len(res.Flow.Nodes)),
		len(res.Flow.Connections), pluralize("connection", len(res.Flow.Connections)))
	for _, n := range res.Flow.Nodes {
		fmt.Fprintf(&sb, "  %-24s %-16s %s\n", n.ID, n.Type, n.Label)
	}
	if len(res.Flow.Connections) > 0 {
		sb.WriteString("\n=== Connections ===\n")
		for _, c := range res.Flow.Connections {
			fmt.Fprintf(&sb, "  %s --%s--> %s\n", c.Source, c.SourceHandle, c.Target)
		}
	}
	sb.WriteString("\n")
	printDiagnosticsText(&sb, res.Diagnostics)
	return strings.TrimRight(sb.String(), "\n")
}
