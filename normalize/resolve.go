package normalize

import (
	"fmt"
	"strings"

	"github.com/petal-labs/botflow/core"
)

// complexityCaps maps the complexity option to a node cap when maxNodes is
// unset.
var complexityCaps = map[string]int{
	"simple":   8,
	"moderate": 15,
	"complex":  30,
}

// alwaysAllowed kinds are never removed by allowNodeTypes or counted
// against the node cap; the pipeline synthesizes them itself.
func alwaysAllowed(kind core.NodeKind) bool {
	switch kind {
	case core.NodeKindStart, core.NodeKindEnd, core.NodeKindAIResponse:
		return true
	}
	return false
}

// resolvedNode pairs a raw node with its canonical kind.
type resolvedNode struct {
	raw  rawNode
	kind core.NodeKind
}

// resolveTypes maps every raw type string to a canonical kind and applies
// the allow-list and node cap. Nodes that cannot be resolved are dropped.
func resolveTypes(g *flowGraph, raws []rawNode, opts Options) []resolvedNode {
	allowed := g.allowedKinds(opts.AllowNodeTypes)
	limit := opts.NodeCap()
	counted := 0

	out := make([]resolvedNode, 0, len(raws))
	for _, raw := range raws {
		path := fmt.Sprintf("nodes[%d]", raw.index)
		name := describeNode(raw)

		if raw.typeName == "" {
			g.warn(CodeUnknownType, path+".type", "Dropped node %s: missing type", name)
			continue
		}
		kind, aliased, ok := g.reg.Resolve(raw.typeName)
		if !ok {
			g.warn(CodeUnknownType, path+".type", "Dropped node %s: unrecognized type %q", name, raw.typeName)
			continue
		}
		if aliased {
			g.info(CodeAliasedType, path+".type", "Resolved type %q to %q for node %s", raw.typeName, kind, name)
		}

		if allowed != nil && !allowed[kind] && !alwaysAllowed(kind) {
			g.warn(CodeDisallowedType, path+".type", "Dropped node %s: type %q is not allowed", name, kind)
			continue
		}
		if !alwaysAllowed(kind) {
			if limit > 0 && counted >= limit {
				g.warn(CodeNodeCapExceeded, path, "Dropped node %s: node limit of %d reached", name, limit)
				continue
			}
			counted++
		}

		out = append(out, resolvedNode{raw: raw, kind: kind})
	}
	return out
}

// allowedKinds resolves the allow-list through the registry so aliases are
// accepted. A nil result means every kind is allowed.
func (g *flowGraph) allowedKinds(names []string) map[core.NodeKind]bool {
	if len(names) == 0 {
		return nil
	}
	allowed := make(map[core.NodeKind]bool, len(names))
	for _, name := range names {
		if kind, _, ok := g.reg.Resolve(strings.TrimSpace(name)); ok {
			allowed[kind] = true
		}
	}
	return allowed
}

func describeNode(raw rawNode) string {
	if raw.id != "" {
		return fmt.Sprintf("%q", raw.id)
	}
	return fmt.Sprintf("at index %d", raw.index)
}
