package llmprovider

import (
	"strings"
	"testing"

	"github.com/petal-labs/botflow/config"
)

func TestNewClient_OllamaBaseURL(t *testing.T) {
	t.Parallel()

	client, err := NewClient("Ollama", config.ProviderConfig{BaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	adapter, ok := client.(*irisAdapter)
	if !ok {
		t.Fatalf("expected *irisAdapter, got %T", client)
	}
	if adapter.provider == nil {
		t.Fatal("adapter has no provider")
	}
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient("openai", config.ProviderConfig{})
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "BOTFLOW_PROVIDER_OPENAI_API_KEY") {
		t.Errorf("error = %q, want env var hint", err)
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := NewClient("definitely-not-a-provider", config.ProviderConfig{APIKey: "k"})
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
	if !strings.Contains(err.Error(), "unknown provider") {
		t.Fatalf("error = %q, want to contain %q", err.Error(), "unknown provider")
	}
}

func TestNewClient_EmptyName(t *testing.T) {
	t.Parallel()

	if _, err := NewClient("  ", config.ProviderConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for empty provider name")
	}
}
