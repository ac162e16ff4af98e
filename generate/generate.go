// Package generate asks an LLM for a conversation flow and normalizes the
// reply into a legal flow.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/petal-labs/botflow/core"
	"github.com/petal-labs/botflow/loader"
	"github.com/petal-labs/botflow/normalize"
	"github.com/petal-labs/botflow/registry"
)

// ErrEmptyInstruction is returned when Generate is called without a request.
var ErrEmptyInstruction = errors.New("instruction is required")

// RetryPolicy configures retries of failed model calls.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Config configures a Generator.
type Config struct {
	Client      core.LLMClient
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   *int
	Timeout     time.Duration
	Retry       RetryPolicy
	Registry    *registry.Registry
	Logger      *slog.Logger
}

// Generator turns an instruction into a normalized flow.
type Generator struct {
	cfg Config
}

// New creates a Generator. Client is required.
func New(cfg Config) (*Generator, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("generate: client is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Global()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = RetryPolicy{MaxAttempts: 2, Backoff: time.Second}
	}
	return &Generator{cfg: cfg}, nil
}

// Generate calls the model and normalizes its reply. An error means the
// model could not be reached; an unusable reply still yields a flow.
func (g *Generator) Generate(ctx context.Context, instruction string, opts normalize.Options) (*normalize.Result, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrEmptyInstruction
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req := core.LLMRequest{
		Model:       g.cfg.Model,
		System:      SystemPrompt(g.cfg.Registry, opts),
		InputText:   instruction,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	start := time.Now()
	resp, err := g.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	g.cfg.Logger.Info("flow generated",
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration", time.Since(start))

	payload, parseErr := loader.ExtractJSON(resp.Text)
	if parseErr != nil {
		g.cfg.Logger.Warn("model reply contained no JSON", "error", parseErr)
		payload = map[string]any{}
	}

	provider := resp.Provider
	if provider == "" {
		provider = g.cfg.Provider
	}
	result := normalize.NormalizeWith(g.cfg.Registry, normalize.Input{
		Payload:     payload,
		Instruction: instruction,
		Options:     opts,
		Usage: &normalize.Usage{
			Provider:     provider,
			Model:        resp.Model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	})
	if parseErr != nil {
		result.MarkUnparsable(parseErr)
	}
	return result, nil
}

func (g *Generator) complete(ctx context.Context, req core.LLMRequest) (core.LLMResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.Retry.MaxAttempts; attempt++ {
		resp, err := g.cfg.Client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return core.LLMResponse{}, ctx.Err()
		}
		g.cfg.Logger.Warn("model call failed", "attempt", attempt, "error", err)
		if attempt < g.cfg.Retry.MaxAttempts {
			select {
			case <-ctx.Done():
				return core.LLMResponse{}, ctx.Err()
			case <-time.After(g.cfg.Retry.Backoff * time.Duration(attempt)):
			}
		}
	}
	return core.LLMResponse{}, fmt.Errorf("model call failed after %d attempts: %w", g.cfg.Retry.MaxAttempts, lastErr)
}
