package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/botflow/registry"
)

// NewNodeTypesCmd creates the "node-types" subcommand.
func NewNodeTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node-types",
		Short: "List the node types a flow may contain",
		Args:  cobra.NoArgs,
		RunE:  runNodeTypes,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runNodeTypes(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	defs := registry.Global().All()

	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(defs); err != nil {
			return exitError(exitRuntime, "encoding node types: %v", err)
		}
		return nil
	case "text":
	default:
		return exitError(exitInputParse, "unknown format %q (use json or text)", format)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "TYPE\tCATEGORY\tOUTPUTS\tALIASES")
	for _, def := range defs {
		aliases := strings.Join(def.Aliases, ",")
		if aliases == "" {
			aliases = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", def.Kind, def.Category, def.Arity, aliases)
	}
	return writer.Flush()
}
