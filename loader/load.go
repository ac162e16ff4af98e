package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/petal-labs/botflow/graph"
	"github.com/petal-labs/botflow/schemafmt"
)

// ErrNoJSON is returned by ExtractJSON when the text holds no JSON value.
var ErrNoJSON = errors.New("no JSON value found")

// ReadPayload reads a model payload from a JSON or YAML file.
func ReadPayload(path string) (any, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	v, err := Decode(data, DetectFormat(path, data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, nil
}

// LoadFlow reads an already-normalized flow, or a saved normalization
// result, and returns the flow it holds. The optional schema_version is
// checked against the supported version.
func LoadFlow(path string) (*graph.FlowDefinition, error) {
	v, err := ReadPayload(path)
	if err != nil {
		return nil, err
	}
	return FlowFromValue(v)
}

// FlowFromValue converts a decoded document into a FlowDefinition.
func FlowFromValue(v any) (*graph.FlowDefinition, error) {
	switch DetectKind(v) {
	case KindResult:
		v = v.(map[string]any)["flow"]
	case KindFlow:
		if inner, ok := v.(map[string]any)["flow"].(map[string]any); ok {
			v = inner
		}
	default:
		return nil, fmt.Errorf("document is not a flow: expected an object with nodes")
	}

	if version, ok := v.(map[string]any)["schema_version"].(string); ok {
		if diags := schemafmt.ValidateVersion(version); graph.HasErrors(diags) {
			return nil, &DiagnosticError{Diagnostics: diags}
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding flow: %w", err)
	}
	var fd graph.FlowDefinition
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("parsing flow definition: %w", err)
	}
	return &fd, nil
}

// ExtractJSON pulls the first JSON object or array out of a model reply.
// Markdown code fences and surrounding prose are tolerated.
func ExtractJSON(text string) (any, error) {
	candidates := fencedBlocks(text)
	candidates = append(candidates, text)

	for _, candidate := range candidates {
		trimmed := strings.TrimSpace(candidate)
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			if isContainer(v) {
				return v, nil
			}
		}
		if span := balancedSpan(trimmed); span != "" {
			if err := json.Unmarshal([]byte(span), &v); err == nil {
				return v, nil
			}
		}
	}
	return nil, ErrNoJSON
}

// fencedBlocks returns the bodies of ``` fences in order. The language tag
// after the opening fence is skipped.
func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return blocks
		}
		rest = rest[open+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			return append(blocks, rest)
		}
		blocks = append(blocks, rest[:end])
		rest = rest[end+3:]
	}
}

// balancedSpan returns the substring from the first '{' or '[' to its
// matching close, honoring JSON string escapes.
func balancedSpan(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// DiagnosticError wraps validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []graph.Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := graph.Errors(e.Diagnostics)
	if len(errs) == 0 {
		return "validation failed"
	}
	if len(errs) == 1 {
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
}
