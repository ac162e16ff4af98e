package llmprovider

import (
	"fmt"
	"strings"

	"github.com/petal-labs/iris/providers"
	// Auto-register common providers.
	_ "github.com/petal-labs/iris/providers/anthropic"
	"github.com/petal-labs/iris/providers/ollama"
	_ "github.com/petal-labs/iris/providers/openai"

	"github.com/petal-labs/botflow/config"
	"github.com/petal-labs/botflow/core"
)

// NewClient creates a core.LLMClient for the named provider. Ollama honours
// BaseURL and needs no key; every other provider comes from the iris registry.
func NewClient(name string, cfg config.ProviderConfig) (core.LLMClient, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if name == "ollama" && cfg.BaseURL != "" {
		return &irisAdapter{provider: ollama.New(ollama.WithBaseURL(cfg.BaseURL))}, nil
	}
	if name != "ollama" && cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %q has no api key (set --provider-key %s=... or BOTFLOW_PROVIDER_%s_API_KEY)",
			name, name, strings.ToUpper(name))
	}
	provider, err := providers.Create(name, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("creating provider %q: %w", name, err)
	}
	return &irisAdapter{provider: provider}, nil
}
