package config

import (
	"fmt"
	"os"
	"strings"
)

const envProviderPrefix = "BOTFLOW_PROVIDER_"

// ProviderConfig holds credentials for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// ProviderMap maps provider names to their configurations.
type ProviderMap map[string]ProviderConfig

// ResolveProviders merges provider credentials from the config file, the
// process environment and CLI flags. Priority: flags > env vars > file.
func (c *Config) ResolveProviders(flags map[string]string) ProviderMap {
	return ResolveProvidersFrom(c.Providers, os.Environ(), flags)
}

// ResolveProvidersFrom is the testable core of ResolveProviders.
// Environment entries follow BOTFLOW_PROVIDER_{NAME}_API_KEY and
// BOTFLOW_PROVIDER_{NAME}_BASE_URL.
func ResolveProvidersFrom(file map[string]ProviderConfig, environ []string, flags map[string]string) ProviderMap {
	providers := make(ProviderMap, len(file))
	for name, pc := range file {
		providers[strings.ToLower(name)] = pc
	}

	for _, env := range environ {
		key, val, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, envProviderPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, envProviderPrefix)
		switch {
		case strings.HasSuffix(rest, "_API_KEY"):
			name := strings.ToLower(strings.TrimSuffix(rest, "_API_KEY"))
			pc := providers[name]
			pc.APIKey = val
			providers[name] = pc
		case strings.HasSuffix(rest, "_BASE_URL"):
			name := strings.ToLower(strings.TrimSuffix(rest, "_BASE_URL"))
			pc := providers[name]
			pc.BaseURL = val
			providers[name] = pc
		}
	}

	for name, apiKey := range flags {
		name = strings.ToLower(name)
		pc := providers[name]
		pc.APIKey = apiKey
		providers[name] = pc
	}

	return providers
}

// ParseProviderFlags parses --provider-key flag values ("name=key") into a map.
func ParseProviderFlags(flags []string) (map[string]string, error) {
	result := make(map[string]string, len(flags))
	for _, flag := range flags {
		name, key, ok := strings.Cut(flag, "=")
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("invalid provider-key format %q: expected name=key", flag)
		}
		result[name] = key
	}
	return result, nil
}
