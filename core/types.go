// Package core provides the foundational types shared by botflow packages.
//
// This package contains:
//   - NodeKind: the closed set of conversation-flow node kinds
//   - Position: a 2-D layout hint carried by flow nodes
//   - LLMClient: the boundary to the language model that drafts flows
package core

import (
	"context"
)

// NodeKind identifies the kind of a flow node.
// The set is closed: every normalized node carries exactly one of these.
type NodeKind string

const (
	NodeKindStart           NodeKind = "start"
	NodeKindLLM             NodeKind = "llm"
	NodeKindText            NodeKind = "text"
	NodeKindAIResponse      NodeKind = "airesponse"
	NodeKindListen          NodeKind = "listen"
	NodeKindSet             NodeKind = "set"
	NodeKindCondition       NodeKind = "condition"
	NodeKindRouting         NodeKind = "routing"
	NodeKindAPI             NodeKind = "api"
	NodeKindCode            NodeKind = "code"
	NodeKindUserDataCapture NodeKind = "userdatacapture"
	NodeKindEnd             NodeKind = "end"
)

// allKinds lists the kinds in canonical order.
var allKinds = []NodeKind{
	NodeKindStart,
	NodeKindLLM,
	NodeKindText,
	NodeKindAIResponse,
	NodeKindListen,
	NodeKindSet,
	NodeKindCondition,
	NodeKindRouting,
	NodeKindAPI,
	NodeKindCode,
	NodeKindUserDataCapture,
	NodeKindEnd,
}

// Kinds returns every canonical node kind in canonical order.
func Kinds() []NodeKind {
	out := make([]NodeKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the canonical kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindStart, NodeKindLLM, NodeKindText, NodeKindAIResponse,
		NodeKindListen, NodeKindSet, NodeKindCondition, NodeKindRouting,
		NodeKindAPI, NodeKindCode, NodeKindUserDataCapture, NodeKindEnd:
		return true
	}
	return false
}

// ParseNodeKind converts an exact canonical string to a NodeKind.
// Lookup is case-sensitive; aliases are resolved by the registry.
func ParseNodeKind(s string) (NodeKind, bool) {
	k := NodeKind(s)
	return k, k.Valid()
}

// Arity describes how many outgoing edges a node kind may carry.
type Arity string

const (
	// AritySingle kinds carry exactly one outgoing edge.
	AritySingle Arity = "single"
	// ArityMulti kinds may branch and always keep a fallback to the end node.
	ArityMulti Arity = "multi"
	// ArityTerminal kinds carry no outgoing edges.
	ArityTerminal Arity = "terminal"
)

// Arity returns the outgoing-edge rule class for the kind.
func (k NodeKind) Arity() Arity {
	switch k {
	case NodeKindCondition, NodeKindRouting, NodeKindAPI:
		return ArityMulti
	case NodeKindEnd:
		return ArityTerminal
	default:
		return AritySingle
	}
}

// ProducesMessage reports whether nodes of this kind generate text that must
// be delivered to the user by a following airesponse node.
func (k NodeKind) ProducesMessage() bool {
	return k == NodeKindText || k == NodeKindLLM
}

// Position is a 2-D layout hint for a node on the flow canvas.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// =============================================================================
// LLM Client Interface
// =============================================================================

// LLMClient abstracts a single provider/model backend.
// Implementations adapt various LLM providers to this common interface.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// LLMRequest is a provider-agnostic completion request.
type LLMRequest struct {
	Model        string         // model identifier (e.g., "gpt-4o", "claude-sonnet-4")
	System       string         // system prompt (Chat Completions API style)
	Instructions string         // system instructions (Responses API style)
	Messages     []LLMMessage   // conversation messages
	InputText    string         // optional: simple prompt mode (converted to user message)
	JSONSchema   map[string]any // optional: structured output constraints
	Temperature  *float64       // optional: sampling temperature
	MaxTokens    *int           // optional: maximum output tokens
	Meta         map[string]any // trace/cost controls
}

// LLMMessage is a chat message.
type LLMMessage struct {
	Role    string         // "system", "user", "assistant"
	Content string         // message content
	Name    string         // optional
	Meta    map[string]any // optional metadata
}

// LLMResponse captures the output from an LLM call.
type LLMResponse struct {
	Text     string         // raw text output
	JSON     map[string]any // parsed JSON if structured output was requested
	Usage    LLMTokenUsage  // token consumption
	Provider string         // provider ID that handled the request
	Model    string         // model that generated the response
	Status   string         // response status (optional)
	Meta     map[string]any // additional response metadata
}

// LLMTokenUsage tracks token consumption for LLM calls.
type LLMTokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
