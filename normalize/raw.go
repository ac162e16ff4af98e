package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/petal-labs/botflow/core"
	"github.com/petal-labs/botflow/graph"
)

// rawFlow is the defensively parsed form of a model-produced payload.
type rawFlow struct {
	nodes     []rawNode
	edges     []rawEdge
	variables []any
	metadata  any
}

// rawNode is one entry of the payload's node list. Every field is optional.
type rawNode struct {
	index    int
	id       string
	typeName string
	label    string
	position *core.Position
	data     map[string]any
	next     []string
}

// rawEdge is one connection in any of the accepted shapes, reduced to its
// endpoints and optional handles.
type rawEdge struct {
	path         string
	source       string
	target       string
	sourceHandle string
	targetHandle string
}

// endpointPairs are the accepted key pairs for edge endpoints, in priority
// order. The first pair with both endpoints present wins.
var endpointPairs = [][2]string{
	{"from", "to"},
	{"source", "target"},
	{"sourceNodeID", "targetNodeID"},
}

var (
	sourceHandleKeys = []string{"sourceHandle", "fromHandle", "fromPort", "source_handle"}
	targetHandleKeys = []string{"targetHandle", "toHandle", "toPort", "target_handle"}
)

// parseRawFlow extracts nodes, edges, variables and metadata from an
// arbitrary decoded JSON value. It never fails: anything unusable is dropped
// with a warning, and a payload that is neither an object nor a list yields
// an empty flow.
func parseRawFlow(payload any, diags *[]graph.Diagnostic) rawFlow {
	var rf rawFlow

	switch v := payload.(type) {
	case map[string]any:
		if inner, ok := v["flow"].(map[string]any); ok {
			v = inner
		}
		rf.nodes = parseRawNodes(v["nodes"], diags)
		edgesRaw, ok := v["connections"]
		if !ok || edgesRaw == nil {
			edgesRaw = v["edges"]
		}
		rf.edges = parseRawEdges(edgesRaw, diags)
		if vars, ok := v["variables"].([]any); ok {
			rf.variables = vars
		}
		rf.metadata = v["metadata"]
	case []any:
		rf.nodes = parseRawNodes(v, diags)
	case nil:
	default:
		*diags = append(*diags, graph.Diagnostic{
			Code:     CodeMalformedPayload,
			Severity: graph.SeverityWarning,
			Message:  fmt.Sprintf("Payload of type %T is not a flow object; treating it as empty", payload),
		})
	}

	// Node-level "next" references become edges after the explicit list.
	for _, n := range rf.nodes {
		if n.id == "" {
			continue
		}
		for i, target := range n.next {
			rf.edges = append(rf.edges, rawEdge{
				path:   fmt.Sprintf("nodes[%d].next[%d]", n.index, i),
				source: n.id,
				target: target,
			})
		}
	}

	if rf.variables == nil {
		rf.variables = []any{}
	}
	if rf.metadata == nil {
		rf.metadata = map[string]any{}
	}
	return rf
}

func parseRawNodes(v any, diags *[]graph.Diagnostic) []rawNode {
	items, ok := v.([]any)
	if !ok {
		if v != nil {
			*diags = append(*diags, graph.Diagnostic{
				Code:     CodeMalformedPayload,
				Severity: graph.SeverityWarning,
				Message:  fmt.Sprintf("Ignored nodes of type %T: expected a list", v),
				Path:     "nodes",
			})
		}
		return nil
	}

	nodes := make([]rawNode, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			*diags = append(*diags, graph.Diagnostic{
				Code:     CodeMalformedPayload,
				Severity: graph.SeverityWarning,
				Message:  fmt.Sprintf("Dropped nodes[%d]: expected an object, got %T", i, item),
				Path:     fmt.Sprintf("nodes[%d]", i),
			})
			continue
		}
		nodes = append(nodes, rawNode{
			index:    i,
			id:       firstString(m, "id"),
			typeName: firstString(m, "type", "kind", "nodeType"),
			label:    firstString(m, "label", "name", "title"),
			position: parsePosition(m["position"]),
			data:     parseData(m),
			next:     stringList(m["next"]),
		})
	}
	return nodes
}

func parseRawEdges(v any, diags *[]graph.Diagnostic) []rawEdge {
	items, ok := v.([]any)
	if !ok {
		if v != nil {
			*diags = append(*diags, graph.Diagnostic{
				Code:     CodeMalformedPayload,
				Severity: graph.SeverityWarning,
				Message:  fmt.Sprintf("Ignored connections of type %T: expected a list", v),
				Path:     "connections",
			})
		}
		return nil
	}

	edges := make([]rawEdge, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("connections[%d]", i)
		m, ok := item.(map[string]any)
		if !ok {
			*diags = append(*diags, graph.Diagnostic{
				Code:     CodeUnresolvedEdge,
				Severity: graph.SeverityWarning,
				Message:  fmt.Sprintf("Dropped %s: expected an object, got %T", path, item),
				Path:     path,
			})
			continue
		}

		edge, ok := parseRawEdge(m)
		if !ok {
			*diags = append(*diags, graph.Diagnostic{
				Code:     CodeUnresolvedEdge,
				Severity: graph.SeverityWarning,
				Message:  fmt.Sprintf("Dropped %s: no source/target pair", path),
				Path:     path,
			})
			continue
		}
		edge.path = path
		edges = append(edges, edge)
	}
	return edges
}

func parseRawEdge(m map[string]any) (rawEdge, bool) {
	for _, pair := range endpointPairs {
		source, sourcePort := parseEndpoint(m[pair[0]])
		target, targetPort := parseEndpoint(m[pair[1]])
		if source == "" || target == "" {
			continue
		}
		edge := rawEdge{
			source:       source,
			target:       target,
			sourceHandle: firstString(m, sourceHandleKeys...),
			targetHandle: firstString(m, targetHandleKeys...),
		}
		if edge.sourceHandle == "" {
			edge.sourceHandle = sourcePort
		}
		if edge.targetHandle == "" {
			edge.targetHandle = targetPort
		}
		return edge, true
	}
	return rawEdge{}, false
}

// parseEndpoint accepts a node reference as a scalar or as an object
// carrying id/node/nodeId plus an optional handle/port.
func parseEndpoint(v any) (id string, handle string) {
	if m, ok := v.(map[string]any); ok {
		return firstString(m, "id", "node", "nodeId"), firstString(m, "handle", "port")
	}
	return scalarString(v), ""
}

func parsePosition(v any) *core.Position {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	x, okX := number(m["x"])
	y, okY := number(m["y"])
	if !okX || !okY {
		return nil
	}
	return &core.Position{X: x, Y: y}
}

func parseData(m map[string]any) map[string]any {
	for _, key := range []string{"data", "config"} {
		if d, ok := m[key].(map[string]any); ok {
			return cloneMap(d)
		}
	}
	return map[string]any{}
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := scalarString(m[key]); s != "" {
			return s
		}
	}
	return ""
}

// scalarString renders ids that models emit as strings or numbers.
func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, item := range val {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func number(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
