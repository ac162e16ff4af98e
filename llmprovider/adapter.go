// Package llmprovider bridges iris LLM providers to botflow's core.LLMClient
// interface.
package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"

	iriscore "github.com/petal-labs/iris/core"

	"github.com/petal-labs/botflow/core"
)

// irisAdapter wraps an iris Provider to implement core.LLMClient.
type irisAdapter struct {
	provider iriscore.Provider
}

// Complete sends a synchronous completion request via the iris provider.
func (a *irisAdapter) Complete(ctx context.Context, req core.LLMRequest) (core.LLMResponse, error) {
	chatResp, err := a.provider.Chat(ctx, toChatRequest(req))
	if err != nil {
		return core.LLMResponse{}, fmt.Errorf("provider chat failed: %w", err)
	}
	if chatResp == nil {
		return core.LLMResponse{}, fmt.Errorf("provider %q returned no response", a.provider.ID())
	}
	return a.fromResponse(chatResp, req), nil
}

func toChatRequest(req core.LLMRequest) *iriscore.ChatRequest {
	messages := make([]iriscore.Message, 0, len(req.Messages)+2)
	if req.System != "" {
		messages = append(messages, iriscore.Message{Role: iriscore.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, iriscore.Message{Role: toIrisRole(m.Role), Content: m.Content})
	}
	if req.InputText != "" {
		messages = append(messages, iriscore.Message{Role: iriscore.RoleUser, Content: req.InputText})
	}

	chatReq := &iriscore.ChatRequest{
		Model:        iriscore.ModelID(req.Model),
		Messages:     messages,
		Instructions: req.Instructions,
		MaxTokens:    req.MaxTokens,
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		chatReq.Temperature = &temp
	}
	return chatReq
}

func (a *irisAdapter) fromResponse(resp *iriscore.ChatResponse, req core.LLMRequest) core.LLMResponse {
	result := core.LLMResponse{
		Text:     resp.Output,
		Provider: a.provider.ID(),
		Model:    string(resp.Model),
		Status:   resp.Status,
		Usage: core.LLMTokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Meta: make(map[string]any),
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	if result.Usage.TotalTokens == 0 {
		result.Usage.TotalTokens = result.Usage.InputTokens + result.Usage.OutputTokens
	}
	if resp.ID != "" {
		result.Meta["response_id"] = resp.ID
	}

	if req.JSONSchema != nil && resp.Output != "" {
		var out map[string]any
		if err := json.Unmarshal([]byte(resp.Output), &out); err == nil {
			result.JSON = out
		}
	}
	return result
}

func toIrisRole(role string) iriscore.Role {
	switch role {
	case "system":
		return iriscore.RoleSystem
	case "assistant":
		return iriscore.RoleAssistant
	case "tool":
		return iriscore.RoleTool
	default:
		return iriscore.RoleUser
	}
}

var _ core.LLMClient = (*irisAdapter)(nil)
