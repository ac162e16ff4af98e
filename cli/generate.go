package cli

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/botflow/config"
	"github.com/petal-labs/botflow/core"
	"github.com/petal-labs/botflow/generate"
	"github.com/petal-labs/botflow/llmprovider"
)

// newLLMClient builds the model client for generate and serve.
var newLLMClient = func(name string, cfg config.ProviderConfig) (core.LLMClient, error) {
	return llmprovider.NewClient(name, cfg)
}

// NewGenerateCmd creates the "generate" subcommand.
func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Ask an LLM for a flow and normalize its reply",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}

	cmd.Flags().StringP("instruction", "i", "", "Describe the flow to build (required)")
	cmd.Flags().String("provider", "", "LLM provider (default from config: openai)")
	cmd.Flags().String("model", "", "Model identifier")
	cmd.Flags().Float64("temperature", 0, "Sampling temperature")
	cmd.Flags().Int("max-tokens", 0, "Maximum output tokens")
	cmd.Flags().Duration("timeout", 2*time.Minute, "Model call timeout")
	cmd.Flags().StringArray("provider-key", nil, "Set provider API key (repeatable, e.g. --provider-key openai=sk-...)")
	addNormalizeFlags(cmd)
	_ = cmd.MarkFlagRequired("instruction")

	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	instruction, _ := cmd.Flags().GetString("instruction")
	if strings.TrimSpace(instruction) == "" {
		return exitError(exitInputParse, "--instruction must not be empty")
	}

	gen, err := buildGenerator(cmd, cfg)
	if err != nil {
		return err
	}

	res, err := gen.Generate(cmd.Context(), instruction, normalizeOptions(cmd, cfg.Normalize))
	if err != nil {
		return exitError(exitProvider, "generating flow: %v", err)
	}
	return writeResult(cmd, res)
}

// buildGenerator resolves the provider, model and sampling settings from
// flags over config and returns a ready Generator.
func buildGenerator(cmd *cobra.Command, cfg *config.Config) (*generate.Generator, error) {
	gc := generateSettings(cmd, cfg.Generate)

	providerFlags, _ := cmd.Flags().GetStringArray("provider-key")
	flagMap, err := config.ParseProviderFlags(providerFlags)
	if err != nil {
		return nil, exitError(exitProvider, "invalid provider flag: %v", err)
	}
	providers := cfg.ResolveProviders(flagMap)

	client, err := newLLMClient(gc.Provider, providers[strings.ToLower(gc.Provider)])
	if err != nil {
		return nil, exitError(exitProvider, "%v", err)
	}

	genCfg := generate.Config{
		Client:      client,
		Provider:    gc.Provider,
		Model:       gc.Model,
		Temperature: gc.Temperature,
		Logger:      slog.Default(),
	}
	if gc.MaxTokens > 0 {
		maxTokens := gc.MaxTokens
		genCfg.MaxTokens = &maxTokens
	}
	if cmd.Flags().Lookup("timeout") != nil {
		genCfg.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	gen, err := generate.New(genCfg)
	if err != nil {
		return nil, exitError(exitRuntime, "%v", err)
	}
	return gen, nil
}

func generateSettings(cmd *cobra.Command, base config.GenerateConfig) config.GenerateConfig {
	gc := base
	if cmd.Flags().Changed("provider") {
		gc.Provider, _ = cmd.Flags().GetString("provider")
	}
	if cmd.Flags().Changed("model") {
		gc.Model, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("temperature") {
		t, _ := cmd.Flags().GetFloat64("temperature")
		gc.Temperature = &t
	}
	if cmd.Flags().Changed("max-tokens") {
		gc.MaxTokens, _ = cmd.Flags().GetInt("max-tokens")
	}
	return gc
}
