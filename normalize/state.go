package normalize

import (
	"fmt"

	"github.com/petal-labs/botflow/core"
	"github.com/petal-labs/botflow/graph"
	"github.com/petal-labs/botflow/registry"
)

// node is the working form of a node while the pipeline runs.
type node struct {
	id        string
	rawID     string
	kind      core.NodeKind
	label     string
	slug      string
	position  core.Position
	data      map[string]any
	path      string
	synthetic bool
}

type edge struct {
	source       string
	target       string
	sourceHandle string
	targetHandle string
}

// flowGraph is owned by a single Normalize call and threaded through every
// stage. Stages mutate it in place and append diagnostics.
type flowGraph struct {
	reg   *registry.Registry
	nodes []*node
	edges []*edge
	byID  map[string]*node

	// refs maps slugs, raw ids and merged terminal ids to a current node id.
	refs map[string]string

	kindSeen map[core.NodeKind]int
	autoSlot int
	diags    []graph.Diagnostic
}

func newFlowGraph(reg *registry.Registry) *flowGraph {
	return &flowGraph{
		reg:      reg,
		byID:     make(map[string]*node),
		refs:     make(map[string]string),
		kindSeen: make(map[core.NodeKind]int),
	}
}

func (g *flowGraph) warn(code, path, format string, args ...any) {
	g.diags = append(g.diags, graph.Diagnostic{
		Code:     code,
		Severity: graph.SeverityWarning,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
	})
}

func (g *flowGraph) info(code, path, format string, args ...any) {
	g.diags = append(g.diags, graph.Diagnostic{
		Code:     code,
		Severity: graph.SeverityInfo,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
	})
}

// lookup resolves a model-supplied node reference to a current node id.
func (g *flowGraph) lookup(ref string) (string, bool) {
	if _, ok := g.byID[ref]; ok {
		return ref, true
	}
	id, ok := g.refs[ref]
	if !ok {
		return "", false
	}
	if _, live := g.byID[id]; !live {
		return "", false
	}
	return id, true
}

func (g *flowGraph) addRef(ref, id string) {
	if ref == "" || ref == id {
		return
	}
	if _, exists := g.refs[ref]; !exists {
		g.refs[ref] = id
	}
}

func (g *flowGraph) kindOf(id string) core.NodeKind {
	if n, ok := g.byID[id]; ok {
		return n.kind
	}
	return ""
}

// nextSlug returns "<kind>-<n>" with n counted per kind in first-seen order.
func (g *flowGraph) nextSlug(kind core.NodeKind) string {
	n := g.kindSeen[kind]
	g.kindSeen[kind] = n + 1
	return fmt.Sprintf("%s-%d", kind, n)
}

// uniqueID returns base, or base with a numeric suffix, such that it is not
// taken by any live node or reserved id.
func (g *flowGraph) uniqueID(base string, reserved map[string]bool) string {
	candidate := base
	for i := 1; ; i++ {
		_, live := g.byID[candidate]
		if !live && !reserved[candidate] {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (g *flowGraph) nextAutoPosition() core.Position {
	pos := core.Position{X: float64(g.autoSlot * layoutSpacingX), Y: layoutBaselineY}
	g.autoSlot++
	return pos
}

// synthesize creates a node of kind with registry defaults. The caller
// places it in the node list.
func (g *flowGraph) synthesize(kind core.NodeKind, pos core.Position) *node {
	slug := g.nextSlug(kind)
	n := &node{
		id:        g.uniqueID(slug, nil),
		kind:      kind,
		label:     g.reg.DisplayName(kind),
		slug:      slug,
		position:  pos,
		data:      g.reg.Defaults(kind),
		synthetic: true,
	}
	g.byID[n.id] = n
	return n
}

func (g *flowGraph) removeNode(id string) {
	delete(g.byID, id)
	kept := g.nodes[:0]
	for _, n := range g.nodes {
		if n.id != id {
			kept = append(kept, n)
		}
	}
	g.nodes = kept
}

func (g *flowGraph) firstOfKind(kind core.NodeKind) *node {
	for _, n := range g.nodes {
		if n.kind == kind {
			return n
		}
	}
	return nil
}

func (g *flowGraph) startID() string {
	if n := g.firstOfKind(core.NodeKindStart); n != nil {
		return n.id
	}
	return ""
}

func (g *flowGraph) endID() string {
	if n := g.firstOfKind(core.NodeKindEnd); n != nil {
		return n.id
	}
	return ""
}

// outgoing returns the edges leaving id in edge-list order.
func (g *flowGraph) outgoing(id string) []*edge {
	var out []*edge
	for _, e := range g.edges {
		if e.source == id {
			out = append(out, e)
		}
	}
	return out
}

// reaches reports whether target is reachable from source along edges.
// A node reaches itself.
func (g *flowGraph) reaches(source, target string) bool {
	seen := map[string]bool{source: true}
	queue := []string{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true
		}
		for _, e := range g.outgoing(cur) {
			if !seen[e.target] {
				seen[e.target] = true
				queue = append(queue, e.target)
			}
		}
	}
	return false
}

func (g *flowGraph) hasEdge(source, target, sourceHandle, targetHandle string) bool {
	for _, e := range g.edges {
		if e.source == source && e.target == target && e.sourceHandle == sourceHandle && e.targetHandle == targetHandle {
			return true
		}
	}
	return false
}

func (g *flowGraph) addEdge(source, target, sourceHandle string) *edge {
	e := &edge{
		source:       source,
		target:       target,
		sourceHandle: sourceHandle,
		targetHandle: DefaultTargetHandle,
	}
	g.edges = append(g.edges, e)
	return e
}

func (g *flowGraph) removeEdges(drop map[*edge]bool) {
	if len(drop) == 0 {
		return
	}
	kept := g.edges[:0]
	for _, e := range g.edges {
		if !drop[e] {
			kept = append(kept, e)
		}
	}
	g.edges = kept
}

// insertBeforeEnd places n ahead of a trailing end node, or appends it.
func (g *flowGraph) insertBeforeEnd(n *node) {
	last := len(g.nodes) - 1
	if last >= 0 && g.nodes[last].kind == core.NodeKindEnd {
		g.nodes = append(g.nodes[:last], n, g.nodes[last])
		return
	}
	g.nodes = append(g.nodes, n)
}

// flow renders the working graph as a FlowDefinition.
func (g *flowGraph) flow(variables []any, metadata any) graph.FlowDefinition {
	fd := graph.FlowDefinition{
		Nodes:       make([]graph.NodeDef, 0, len(g.nodes)),
		Connections: make([]graph.EdgeDef, 0, len(g.edges)),
		Variables:   variables,
		Metadata:    metadata,
	}
	for _, n := range g.nodes {
		fd.Nodes = append(fd.Nodes, graph.NodeDef{
			ID:       n.id,
			Type:     n.kind,
			Label:    n.label,
			Slug:     n.slug,
			Position: n.position,
			Data:     n.data,
		})
	}
	for _, e := range g.edges {
		fd.Connections = append(fd.Connections, graph.EdgeDef{
			Source:       e.source,
			Target:       e.target,
			SourceHandle: e.sourceHandle,
			TargetHandle: e.targetHandle,
		})
	}
	return fd
}
