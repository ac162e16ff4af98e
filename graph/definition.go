package graph

import (
	"fmt"

	"github.com/petal-labs/botflow/core"
)

// Diagnostic represents a repair, warning, or error produced by the
// normalizer or by structural validation of a finished flow.
type Diagnostic struct {
	Code     string `json:"code"`           // e.g. "NF-301", "FL-004"
	Severity string `json:"severity"`       // "error", "warning" or "info"
	Message  string `json:"message"`        // human-readable description
	Path     string `json:"path,omitempty"` // JSON path to offending field
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	return filter(diags, SeverityError)
}

// Warnings returns only the warning-severity diagnostics.
func Warnings(diags []Diagnostic) []Diagnostic {
	return filter(diags, SeverityWarning)
}

// Infos returns only the info-severity diagnostics.
func Infos(diags []Diagnostic) []Diagnostic {
	return filter(diags, SeverityInfo)
}

// Messages returns the messages of diagnostics with the given severity.
// The result is never nil so it serializes as an empty JSON array.
func Messages(diags []Diagnostic, severity string) []string {
	out := make([]string, 0)
	for _, d := range diags {
		if d.Severity == severity {
			out = append(out, d.Message)
		}
	}
	return out
}

func filter(diags []Diagnostic, severity string) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.Severity == severity {
			out = append(out, d)
		}
	}
	return out
}

// FlowDefinition is the serializable conversation flow produced by the
// normalizer and consumed by whoever persists it.
type FlowDefinition struct {
	Nodes       []NodeDef `json:"nodes"`
	Connections []EdgeDef `json:"connections"`
	Variables   []any     `json:"variables"`
	Metadata    any       `json:"metadata"`
}

// NodeDef is a serializable node within a FlowDefinition.
type NodeDef struct {
	ID       string         `json:"id"`
	Type     core.NodeKind  `json:"type"`
	Label    string         `json:"label"`
	Slug     string         `json:"slug"`
	Position core.Position  `json:"position"`
	Data     map[string]any `json:"data"`
}

// EdgeDef is a serializable edge within a FlowDefinition.
type EdgeDef struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
}

// Outgoing returns the edges leaving nodeID in list order.
func (fd *FlowDefinition) Outgoing(nodeID string) []EdgeDef {
	var out []EdgeDef
	for _, e := range fd.Connections {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Node returns the node with the given id.
func (fd *FlowDefinition) Node(id string) (NodeDef, bool) {
	for _, n := range fd.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDef{}, false
}

// NodesOfKind returns the nodes of kind in list order.
func (fd *FlowDefinition) NodesOfKind(kind core.NodeKind) []NodeDef {
	var out []NodeDef
	for _, n := range fd.Nodes {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

// Validate checks a finished flow against the structural invariants:
//   - FL-001: node ids are unique
//   - FL-002: node kinds are canonical
//   - FL-003: edge source/target reference existing nodes
//   - FL-004/FL-005: exactly one start and one end node
//   - FL-006: single-output kinds have at most one outgoing edge, end has none
//   - FL-007: api nodes have at most two edges with distinct success/error targets
//   - FL-008: text/llm nodes reach an airesponse node within two hops
//   - FL-009: every node except end has an outgoing edge
//   - FL-010: end is reachable from start
//   - FL-011: nodes unreachable from start (warning)
//   - FL-012: cycles (warning; cycles are legal but reported)
//   - FL-013: condition and routing nodes keep a fallback edge to end
func (fd *FlowDefinition) Validate() []Diagnostic {
	diags := make([]Diagnostic, 0)

	nodeIDs := make(map[string]bool, len(fd.Nodes))
	kinds := make(map[string]core.NodeKind, len(fd.Nodes))
	counts := make(map[core.NodeKind]int)

	for i, node := range fd.Nodes {
		if nodeIDs[node.ID] {
			diags = append(diags, Diagnostic{
				Code:     "FL-001",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Duplicate node ID %q", node.ID),
				Path:     fmt.Sprintf("nodes[%d].id", i),
			})
		}
		nodeIDs[node.ID] = true
		kinds[node.ID] = node.Type
		counts[node.Type]++

		if !node.Type.Valid() {
			diags = append(diags, Diagnostic{
				Code:     "FL-002",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Node %q has unknown type %q", node.ID, node.Type),
				Path:     fmt.Sprintf("nodes[%d].type", i),
			})
		}
	}

	hasRefErrors := false
	for i, edge := range fd.Connections {
		if !nodeIDs[edge.Source] {
			hasRefErrors = true
			diags = append(diags, Diagnostic{
				Code:     "FL-003",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Connection source %q references unknown node", edge.Source),
				Path:     fmt.Sprintf("connections[%d].source", i),
			})
		}
		if !nodeIDs[edge.Target] {
			hasRefErrors = true
			diags = append(diags, Diagnostic{
				Code:     "FL-003",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Connection target %q references unknown node", edge.Target),
				Path:     fmt.Sprintf("connections[%d].target", i),
			})
		}
	}

	if n := counts[core.NodeKindStart]; n != 1 {
		diags = append(diags, Diagnostic{
			Code:     "FL-004",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Flow must have exactly one start node, found %d", n),
			Path:     "nodes",
		})
	}
	if n := counts[core.NodeKindEnd]; n != 1 {
		diags = append(diags, Diagnostic{
			Code:     "FL-005",
			Severity: SeverityError,
			Message:  fmt.Sprintf("Flow must have exactly one end node, found %d", n),
			Path:     "nodes",
		})
	}

	out := fd.outgoingByNode()
	endID := ""
	if ends := fd.NodesOfKind(core.NodeKindEnd); len(ends) > 0 {
		endID = ends[0].ID
	}

	for i, node := range fd.Nodes {
		prefix := fmt.Sprintf("nodes[%d]", i)
		edges := out[node.ID]

		switch node.Type.Arity() {
		case core.ArityTerminal:
			if len(edges) > 0 {
				diags = append(diags, Diagnostic{
					Code:     "FL-006",
					Severity: SeverityError,
					Message:  fmt.Sprintf("End node %q must not have outgoing connections, found %d", node.ID, len(edges)),
					Path:     prefix,
				})
			}
			continue
		case core.AritySingle:
			if len(edges) > 1 {
				diags = append(diags, Diagnostic{
					Code:     "FL-006",
					Severity: SeverityError,
					Message:  fmt.Sprintf("Node %q (%s) allows one outgoing connection, found %d", node.ID, node.Type, len(edges)),
					Path:     prefix,
				})
			}
		}

		if len(edges) == 0 {
			diags = append(diags, Diagnostic{
				Code:     "FL-009",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Node %q has no outgoing connection", node.ID),
				Path:     prefix,
			})
		}

		switch node.Type {
		case core.NodeKindAPI:
			diags = append(diags, validateAPINode(node, edges, prefix)...)
		case core.NodeKindCondition, core.NodeKindRouting:
			if endID != "" && !targetsNode(edges, endID) {
				diags = append(diags, Diagnostic{
					Code:     "FL-013",
					Severity: SeverityError,
					Message:  fmt.Sprintf("Node %q (%s) has no fallback connection to the end node", node.ID, node.Type),
					Path:     prefix,
				})
			}
		}

		if node.Type.ProducesMessage() && !fd.reachesKind(node.ID, core.NodeKindAIResponse, 2, out, kinds) {
			diags = append(diags, Diagnostic{
				Code:     "FL-008",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Node %q (%s) is not followed by an airesponse node", node.ID, node.Type),
				Path:     prefix,
			})
		}
	}

	if hasRefErrors {
		return diags
	}

	diags = append(diags, fd.validateReachability(out)...)

	if cycle := fd.detectCycle(); cycle != "" {
		diags = append(diags, Diagnostic{
			Code:     "FL-012",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Flow contains a cycle: %s", cycle),
		})
	}

	return diags
}

func validateAPINode(node NodeDef, edges []EdgeDef, prefix string) []Diagnostic {
	var diags []Diagnostic
	if len(edges) > 2 {
		diags = append(diags, Diagnostic{
			Code:     "FL-007",
			Severity: SeverityError,
			Message:  fmt.Sprintf("API node %q allows at most two outgoing connections, found %d", node.ID, len(edges)),
			Path:     prefix,
		})
		return diags
	}
	if len(edges) != 2 {
		return diags
	}
	success, _ := node.Data["successNodeId"].(string)
	failure, _ := node.Data["errorNodeId"].(string)
	if success == "" || failure == "" || success == failure {
		diags = append(diags, Diagnostic{
			Code:     "FL-007",
			Severity: SeverityError,
			Message:  fmt.Sprintf("API node %q must have distinct successNodeId and errorNodeId", node.ID),
			Path:     prefix + ".data",
		})
	}
	return diags
}

func (fd *FlowDefinition) validateReachability(out map[string][]EdgeDef) []Diagnostic {
	starts := fd.NodesOfKind(core.NodeKindStart)
	ends := fd.NodesOfKind(core.NodeKindEnd)
	if len(starts) == 0 {
		return nil
	}

	seen := map[string]bool{starts[0].ID: true}
	queue := []string{starts[0].ID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range out[current] {
			if !seen[e.Target] {
				seen[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}

	var diags []Diagnostic
	if len(ends) > 0 && !seen[ends[0].ID] {
		diags = append(diags, Diagnostic{
			Code:     "FL-010",
			Severity: SeverityError,
			Message:  fmt.Sprintf("End node %q is not reachable from start node %q", ends[0].ID, starts[0].ID),
		})
	}
	for i, node := range fd.Nodes {
		if !seen[node.ID] {
			diags = append(diags, Diagnostic{
				Code:     "FL-011",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Node %q is not reachable from the start node", node.ID),
				Path:     fmt.Sprintf("nodes[%d]", i),
			})
		}
	}
	return diags
}

// reachesKind reports whether a node of kind is reachable from id within
// maxHops edges.
func (fd *FlowDefinition) reachesKind(id string, kind core.NodeKind, maxHops int, out map[string][]EdgeDef, kinds map[string]core.NodeKind) bool {
	frontier := []string{id}
	for hop := 0; hop < maxHops; hop++ {
		var next []string
		for _, current := range frontier {
			for _, e := range out[current] {
				if kinds[e.Target] == kind {
					return true
				}
				next = append(next, e.Target)
			}
		}
		frontier = next
	}
	return false
}

func (fd *FlowDefinition) outgoingByNode() map[string][]EdgeDef {
	out := make(map[string][]EdgeDef, len(fd.Nodes))
	for _, e := range fd.Connections {
		out[e.Source] = append(out[e.Source], e)
	}
	return out
}

func targetsNode(edges []EdgeDef, id string) bool {
	for _, e := range edges {
		if e.Target == id {
			return true
		}
	}
	return false
}

// detectCycle uses Kahn's algorithm to find cycles. Returns a description
// of the cycle if found, or empty string if the flow is acyclic.
func (fd *FlowDefinition) detectCycle() string {
	inDegree := make(map[string]int)
	successors := make(map[string][]string)
	for _, node := range fd.Nodes {
		inDegree[node.ID] = 0
	}
	for _, edge := range fd.Connections {
		successors[edge.Source] = append(successors[edge.Source], edge.Target)
		inDegree[edge.Target]++
	}

	queue := make([]string, 0)
	for _, node := range fd.Nodes {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++
		for _, succ := range successors[current] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if visited < len(fd.Nodes) {
		var cycleNodes []string
		for _, node := range fd.Nodes {
			if inDegree[node.ID] > 0 {
				cycleNodes = append(cycleNodes, node.ID)
			}
		}
		return fmt.Sprintf("nodes involved: %v", cycleNodes)
	}
	return ""
}
