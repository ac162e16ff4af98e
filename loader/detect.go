// Package loader reads flow payloads and normalized flows from JSON or YAML
// files and from free-form model replies.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DocumentKind identifies what a decoded document holds.
type DocumentKind string

const (
	// KindResult is a saved normalization result: {flow, parsed, validation}.
	KindResult DocumentKind = "result"
	// KindFlow is an object with a node list.
	KindFlow DocumentKind = "flow"
	// KindNodeList is a bare list of nodes.
	KindNodeList DocumentKind = "node_list"
	// KindUnknown is anything else; the normalizer treats it as empty.
	KindUnknown DocumentKind = "unknown"
)

// DetectFormat picks the encoding from the file extension. Files without a
// YAML or JSON extension are sniffed: a leading '{' or '[' means JSON.
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// DetectKind classifies a decoded document:
//  1. object with an object-valued "flow" and a "validation" key -> result
//  2. object with a "nodes" key, or a "flow" wrapper -> flow
//  3. list -> node list
//  4. anything else -> unknown
func DetectKind(v any) DocumentKind {
	switch val := v.(type) {
	case map[string]any:
		if _, ok := val["flow"].(map[string]any); ok {
			if hasKey(val, "validation") {
				return KindResult
			}
			return KindFlow
		}
		if hasKey(val, "nodes") {
			return KindFlow
		}
	case []any:
		return KindNodeList
	}
	return KindUnknown
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// Decode parses data in the given format into plain JSON values:
// map[string]any, []any, string, float64, bool and nil.
func Decode(data []byte, format Format) (any, error) {
	if format == FormatYAML {
		jsonData, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = jsonData
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return v, nil
}

// yamlToJSON converts YAML bytes to JSON bytes so both formats decode into
// the same value types.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	// yaml.v3 decodes mappings as map[string]any, which is JSON-compatible
	return json.Marshal(raw)
}
