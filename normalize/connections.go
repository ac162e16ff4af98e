package normalize

import "github.com/petal-labs/botflow/core"

// normalizeConnections resolves raw edge endpoints to node ids, applies
// default handles and drops edges that can never be legal.
func normalizeConnections(g *flowGraph, raws []rawEdge) {
	for _, raw := range raws {
		source, ok := g.lookup(raw.source)
		if !ok {
			g.warn(CodeUnresolvedEdge, raw.path, "Dropped connection %s -> %s: unknown source node %q", raw.source, raw.target, raw.source)
			continue
		}
		target, ok := g.lookup(raw.target)
		if !ok {
			g.warn(CodeUnresolvedEdge, raw.path, "Dropped connection %s -> %s: unknown target node %q", raw.source, raw.target, raw.target)
			continue
		}

		if g.kindOf(source) == core.NodeKindEnd {
			g.warn(CodeEdgeFromEnd, raw.path, "Dropped connection %s -> %s: end node has no outgoing connections", source, target)
			continue
		}
		if g.kindOf(target) == core.NodeKindStart {
			g.warn(CodeEdgeIntoStart, raw.path, "Dropped connection %s -> %s: start node cannot be a target", source, target)
			continue
		}

		sourceHandle := raw.sourceHandle
		if sourceHandle == "" {
			sourceHandle = DefaultSourceHandle
		}
		targetHandle := raw.targetHandle
		if targetHandle == "" {
			targetHandle = DefaultTargetHandle
		}

		if g.hasEdge(source, target, sourceHandle, targetHandle) {
			g.warn(CodeDuplicateEdge, raw.path, "Dropped duplicate connection %s -> %s", source, target)
			continue
		}

		g.edges = append(g.edges, &edge{
			source:       source,
			target:       target,
			sourceHandle: sourceHandle,
			targetHandle: targetHandle,
		})
	}
}
