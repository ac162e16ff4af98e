// Package config loads botflow.yaml and resolves LLM provider credentials.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/botflow/normalize"
)

const (
	projectConfigName = "botflow.yaml"
	homeConfigDir     = ".botflow"
	homeConfigName    = "config.yaml"

	// EnvConfigPath overrides config discovery.
	EnvConfigPath = "BOTFLOW_CONFIG"
)

// Config is the botflow.yaml file structure.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Retention RetentionConfig           `yaml:"retention"`
	Normalize normalize.Options         `yaml:"normalize"`
	Generate  GenerateConfig            `yaml:"generate"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	SQLitePath string `yaml:"sqlite_path"`
	MaxBody    int64  `yaml:"max_body"`
	CORSOrigin string `yaml:"cors_origin,omitempty"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RetentionConfig controls pruning of stored normalization runs.
type RetentionConfig struct {
	Schedule string        `yaml:"schedule"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// GenerateConfig holds defaults for LLM-backed flow generation.
type GenerateConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
}

// TelemetryConfig configures OpenTelemetry export. An empty endpoint keeps
// telemetry in-process.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "127.0.0.1",
			Port:       8090,
			SQLitePath: DefaultSQLitePath(),
			MaxBody:    1 << 20,
		},
		Retention: RetentionConfig{
			Schedule: "0 3 * * *",
			MaxAge:   30 * 24 * time.Hour,
		},
		Generate: GenerateConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "botflow",
		},
	}
}

// DefaultSQLitePath returns ~/.botflow/botflow.db, or botflow.db in the
// working directory when the home directory is unknown.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "botflow.db"
	}
	return filepath.Join(home, homeConfigDir, "botflow.db")
}

// DiscoverPath resolves the config location with first-match semantics:
// explicit path, $BOTFLOW_CONFIG, ./botflow.yaml, ~/.botflow/config.yaml.
func DiscoverPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}
	if strings.TrimSpace(explicitPath) == "" {
		explicitPath = os.Getenv(EnvConfigPath)
	}
	return DiscoverPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverPathFrom is a testable variant of DiscoverPath.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	explicit := strings.TrimSpace(explicitPath)
	candidates := make([]string, 0, 2)
	if explicit != "" {
		candidates = append(candidates, filepath.Clean(explicit))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, homeConfigDir, homeConfigName))
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if explicit != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load discovers and reads the config file, layering it over Default.
// A missing file is not an error.
func Load(explicitPath string) (*Config, string, error) {
	path, found, err := DiscoverPath(explicitPath)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return Default(), "", nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// LoadFile reads one config file, layering it over Default.
func LoadFile(path string) (*Config, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges. Cron syntax is checked by the scheduler
// that consumes it.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxBody <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body must be positive"))
	}
	if c.Retention.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("retention.max_age must not be negative"))
	}
	if c.Normalize.MaxNodes < 0 {
		errs = append(errs, fmt.Errorf("normalize.max_nodes must not be negative"))
	}
	if t := c.Generate.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("generate.temperature %.2f out of range [0, 2]", *t))
	}
	return errors.Join(errs...)
}
