// Package normalize turns an unconstrained, model-produced JSON value into a
// structurally legal conversation flow.
//
// The pipeline runs in a fixed order over a graph owned by a single call:
//
//	parse -> resolve types -> assign identity -> ensure start/end
//	      -> connections -> arity -> message delivery -> wire dangling
//	      -> field inference -> structural validation
//
// Every repair is recorded as a diagnostic. Normalize never fails and never
// panics on malformed input; at worst it returns a minimal start -> end
// flow. It performs no I/O and holds no shared mutable state, so concurrent
// calls on separate inputs are safe.
package normalize

import (
	"fmt"
	"strings"

	"github.com/petal-labs/botflow/graph"
	"github.com/petal-labs/botflow/registry"
)

// Options caps and filters the nodes a payload may contribute.
type Options struct {
	MaxNodes       int      `json:"maxNodes,omitempty" yaml:"max_nodes"`
	AllowNodeTypes []string `json:"allowNodeTypes,omitempty" yaml:"allow_node_types"`
	Complexity     string   `json:"complexity,omitempty" yaml:"complexity"`
}

// NodeCap returns the effective limit on non-structural nodes, 0 meaning
// unlimited. An explicit MaxNodes wins over Complexity.
func (o Options) NodeCap() int {
	if o.MaxNodes > 0 {
		return o.MaxNodes
	}
	return complexityCaps[strings.ToLower(strings.TrimSpace(o.Complexity))]
}

// Usage describes the model call that produced a payload. It is surfaced
// as a suggestion and has no effect on the flow.
type Usage struct {
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
	TotalTokens  int    `json:"totalTokens,omitempty"`
}

// Input is one normalization request.
type Input struct {
	// Payload is an already-decoded JSON value. Anything that is not an
	// object or a list is treated as an empty flow.
	Payload     any
	Instruction string
	Options     Options
	Usage       *Usage
}

// Validation groups diagnostic messages by severity.
type Validation struct {
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// Result is the outcome of a normalization.
type Result struct {
	Flow       graph.FlowDefinition `json:"flow"`
	Parsed     any                  `json:"parsed"`
	Validation Validation           `json:"validation"`

	// Diagnostics carries the coded form of every validation message.
	Diagnostics []graph.Diagnostic `json:"-"`
}

// OK reports whether the flow satisfied every structural invariant.
func (r *Result) OK() bool {
	return !graph.HasErrors(r.Diagnostics)
}

// Normalize normalizes in against the global node-kind registry.
func Normalize(in Input) *Result {
	return NormalizeWith(registry.Global(), in)
}

// NormalizeWith normalizes in against reg.
func NormalizeWith(reg *registry.Registry, in Input) *Result {
	g := newFlowGraph(reg)

	raw := parseRawFlow(in.Payload, &g.diags)
	resolved := resolveTypes(g, raw.nodes, in.Options)
	assignIdentity(g, resolved)
	ensureTerminals(g)
	normalizeConnections(g, raw.edges)
	enforceArity(g)

	order := newDefaultOrder(g)
	ensureMessageDelivery(g, order)
	wireDangling(g, order)

	inferAPIFields(g, in.Instruction)
	if in.Usage != nil {
		g.info(CodeUsage, "", "%s", describeUsage(*in.Usage))
	}

	flow := g.flow(raw.variables, raw.metadata)
	diags := append(g.diags, flow.Validate()...)

	return &Result{
		Flow:        flow,
		Parsed:      in.Payload,
		Validation:  validationOf(diags),
		Diagnostics: diags,
	}
}

func validationOf(diags []graph.Diagnostic) Validation {
	return Validation{
		Errors:      graph.Messages(diags, graph.SeverityError),
		Warnings:    graph.Messages(diags, graph.SeverityWarning),
		Suggestions: graph.Messages(diags, graph.SeverityInfo),
	}
}

func describeUsage(u Usage) string {
	model := u.Model
	if model == "" {
		model = "unknown model"
	}
	if u.Provider != "" {
		model = u.Provider + "/" + model
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.InputTokens + u.OutputTokens
	}
	return fmt.Sprintf("Generated by %s using %d tokens (%d input, %d output)", model, total, u.InputTokens, u.OutputTokens)
}

// Note appends a diagnostic raised outside the pipeline, such as by a
// caller that had to substitute the payload, and refreshes Validation.
func (r *Result) Note(d graph.Diagnostic) {
	r.Diagnostics = append([]graph.Diagnostic{d}, r.Diagnostics...)
	r.Validation = validationOf(r.Diagnostics)
}

// MarkUnparsable records that the caller could not decode the payload text
// and normalized a substitute instead. Parsed is cleared since nothing was
// parsed.
func (r *Result) MarkUnparsable(err error) {
	r.Parsed = nil
	r.Note(Unparsable(err))
}

// Unparsable builds the warning recorded when a caller could not decode the
// payload text and substituted an empty object.
func Unparsable(err error) graph.Diagnostic {
	return graph.Diagnostic{
		Code:     CodeUnparsablePayload,
		Severity: graph.SeverityWarning,
		Message:  fmt.Sprintf("payload is not valid JSON (%v); treated as an empty flow", err),
	}
}
