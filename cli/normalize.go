package cli

import (
	"github.com/spf13/cobra"

	"github.com/petal-labs/botflow/loader"
	"github.com/petal-labs/botflow/normalize"
)

// NewNormalizeCmd creates the "normalize" subcommand.
func NewNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize <payload-file | ->",
		Short: "Repair a model-produced flow into a legal flow",
		Long: "Normalize reads a JSON or YAML flow payload, or raw model output containing one, " +
			"and prints the repaired flow with its validation messages.",
		Args: cobra.ExactArgs(1),
		RunE: runNormalize,
	}

	cmd.Flags().StringP("instruction", "i", "", "The request the payload was generated for")
	addNormalizeFlags(cmd)

	return cmd
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	instruction, _ := cmd.Flags().GetString("instruction")

	payload, parseErr := decodePayload(args[0], data)
	res := normalize.Normalize(normalize.Input{
		Payload:     payload,
		Instruction: instruction,
		Options:     normalizeOptions(cmd, cfg.Normalize),
	})
	if parseErr != nil {
		res.MarkUnparsable(parseErr)
	}
	return writeResult(cmd, res)
}

// decodePayload decodes a structured document, falling back to searching
// free text for embedded JSON. Text with no JSON in it becomes an empty
// object and the decode error is returned alongside it.
func decodePayload(path string, data []byte) (any, error) {
	v, err := loader.Decode(data, loader.DetectFormat(path, data))
	if err == nil && loader.DetectKind(v) != loader.KindUnknown {
		return v, nil
	}
	extracted, extractErr := loader.ExtractJSON(string(data))
	switch {
	case extractErr == nil:
		return extracted, nil
	case err != nil:
		return map[string]any{}, err
	}
	if _, isText := v.(string); isText || v == nil {
		return map[string]any{}, extractErr
	}
	return v, nil
}
