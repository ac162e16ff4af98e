package normalize

import (
	"fmt"

	"github.com/petal-labs/botflow/core"
)

// assignIdentity gives every resolved node a slug, a unique id, a label, a
// position and its kind's data defaults, then adds it to the graph.
//
// Explicit ids are claimed first so that a generated id never steals an id
// the model gave to a later node. When two nodes share an id the first one
// keeps it.
func assignIdentity(g *flowGraph, resolved []resolvedNode) {
	claimed := make(map[string]int, len(resolved))
	for i, r := range resolved {
		if r.raw.id == "" {
			continue
		}
		if _, taken := claimed[r.raw.id]; !taken {
			claimed[r.raw.id] = i
		}
	}
	reserved := make(map[string]bool, len(claimed))
	for id := range claimed {
		reserved[id] = true
	}

	for i, r := range resolved {
		path := fmt.Sprintf("nodes[%d]", r.raw.index)
		slug := g.nextSlug(r.kind)

		id := r.raw.id
		switch {
		case id == "":
			id = g.uniqueID(slug, reserved)
		case claimed[id] != i:
			newID := g.uniqueID(slug, reserved)
			g.warn(CodeDuplicateID, path+".id", "Node id %q is already used; renamed to %q", id, newID)
			id = newID
		}
		reserved[id] = true

		n := &node{
			id:    id,
			rawID: r.raw.id,
			kind:  r.kind,
			label: r.raw.label,
			slug:  slug,
			data:  r.raw.data,
			path:  path,
		}
		if n.label == "" {
			n.label = g.reg.DisplayName(r.kind)
		}
		if r.raw.position != nil {
			n.position = *r.raw.position
		} else {
			n.position = g.nextAutoPosition()
		}
		applyDefaults(n.data, g.reg.Defaults(r.kind))

		g.nodes = append(g.nodes, n)
		g.byID[n.id] = n
	}

	// Slugs resolve edge endpoints after ids; the first claimant of a raw id
	// has already been registered under it directly.
	for _, n := range g.nodes {
		g.addRef(n.slug, n.id)
	}
	for _, n := range g.nodes {
		g.addRef(n.rawID, n.id)
	}
}

// applyDefaults fills keys that are absent or null. Present values are
// never overwritten.
func applyDefaults(data, defaults map[string]any) {
	for key, value := range defaults {
		if existing, ok := data[key]; !ok || existing == nil {
			data[key] = value
		}
	}
}

// ensureTerminals leaves exactly one start and one end in the graph.
// Duplicates are merged into the first occurrence so edges that reference
// them are redirected; missing terminals are synthesized.
func ensureTerminals(g *flowGraph) {
	mergeDuplicates(g, core.NodeKindStart, CodeDuplicateStart)
	mergeDuplicates(g, core.NodeKindEnd, CodeDuplicateEnd)

	if g.firstOfKind(core.NodeKindStart) == nil {
		start := g.synthesize(core.NodeKindStart, core.Position{X: -layoutSpacingX, Y: layoutBaselineY})
		g.nodes = append([]*node{start}, g.nodes...)
		g.warn(CodeStartAdded, "nodes", "Added missing start node %q", start.id)
	}
	if g.firstOfKind(core.NodeKindEnd) == nil {
		end := g.synthesize(core.NodeKindEnd, g.nextAutoPosition())
		g.nodes = append(g.nodes, end)
		g.warn(CodeEndAdded, "nodes", "Added missing end node %q", end.id)
	}
}

func mergeDuplicates(g *flowGraph, kind core.NodeKind, code string) {
	keep := g.firstOfKind(kind)
	if keep == nil {
		return
	}
	var dups []*node
	for _, n := range g.nodes {
		if n.kind == kind && n != keep {
			dups = append(dups, n)
		}
	}
	for _, dup := range dups {
		g.removeNode(dup.id)
		g.refs[dup.id] = keep.id
		g.refs[dup.slug] = keep.id
		if dup.rawID != "" {
			g.refs[dup.rawID] = keep.id
		}
		g.warn(code, dup.path, "Merged duplicate %s node %q into %q", kind, dup.id, keep.id)
	}
}
