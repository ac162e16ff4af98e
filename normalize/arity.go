package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/petal-labs/botflow/core"
)

var (
	errorHandles   = map[string]bool{"error": true, "failure": true, "fail": true, "err": true}
	successHandles = map[string]bool{"success": true, "ok": true}
)

// enforceArity applies the per-kind output rules to every node. "First"
// always refers to edge-list order, which is the order of the model's
// connections followed by edges added by earlier stages.
func enforceArity(g *flowGraph) {
	nodes := append([]*node(nil), g.nodes...)
	for _, n := range nodes {
		switch n.kind {
		case core.NodeKindStart, core.NodeKindLLM, core.NodeKindText, core.NodeKindAIResponse,
			core.NodeKindListen, core.NodeKindSet, core.NodeKindCode, core.NodeKindUserDataCapture:
			enforceSingle(g, n)
		case core.NodeKindCondition:
			enforceCondition(g, n)
		case core.NodeKindRouting:
			enforceRouting(g, n)
		case core.NodeKindAPI:
			enforceAPI(g, n)
		case core.NodeKindEnd:
			dropEdges(g, g.outgoing(n.id))
		}
	}
}

func enforceSingle(g *flowGraph, n *node) {
	edges := g.outgoing(n.id)
	if len(edges) <= 1 {
		return
	}
	dropEdges(g, edges[1:])
	g.warn(CodeExtraEdges, n.path, "Node %q (%s) allows one outgoing connection; dropped %d extra", n.id, n.kind, len(edges)-1)
}

func enforceCondition(g *flowGraph, n *node) {
	routeMap, ok := n.data["routeMap"].(map[string]any)
	if !ok {
		if n.data["routeMap"] != nil {
			g.warn(CodeRouteMapReset, n.path+".data.routeMap", "Replaced non-object routeMap on condition node %q", n.id)
		}
		routeMap = map[string]any{}
	}
	remapTargets(g, routeMap)
	dropStaleTargets(g, n, routeMap, "routeMap")
	wireRouteTargets(g, n, routeMap, "routeMap")

	ensureFallback(g, n)
	for _, e := range g.outgoing(n.id) {
		addRoute(routeMap, e.sourceHandle, e.target)
	}
	n.data["routeMap"] = routeMap
}

// addRoute maps a branch handle to target. When the handle already routes
// elsewhere, numbered variants of the handle are probed.
func addRoute(routeMap map[string]any, handle, target string) {
	key := handle
	for i := 1; ; i++ {
		current := routeMap[key]
		if isBlank(current) {
			routeMap[key] = target
			return
		}
		if current == target {
			return
		}
		key = fmt.Sprintf("%s-%d", handle, i)
	}
}

func enforceRouting(g *flowGraph, n *node) {
	ids, ok := n.data["intentIds"].([]any)
	if !ok {
		if n.data["intentIds"] != nil {
			g.warn(CodeIntentsCoerced, n.path+".data.intentIds", "Replaced non-list intentIds on routing node %q", n.id)
		}
		ids = []any{}
	}
	intentMap, ok := n.data["intentMap"].(map[string]any)
	if !ok {
		if n.data["intentMap"] != nil {
			g.warn(CodeIntentsCoerced, n.path+".data.intentMap", "Replaced non-object intentMap on routing node %q", n.id)
		}
		intentMap = map[string]any{}
	}
	remapTargets(g, intentMap)
	if stale := dropStaleTargets(g, n, intentMap, "intentMap"); len(stale) > 0 {
		kept := make([]any, 0, len(ids))
		for _, raw := range ids {
			if !stale[scalarString(raw)] {
				kept = append(kept, raw)
			}
		}
		ids = kept
	}
	wireRouteTargets(g, n, intentMap, "intentMap")

	var branches []*edge
	for _, e := range g.outgoing(n.id) {
		if e.sourceHandle != FallbackHandle {
			branches = append(branches, e)
		}
	}

	// Unmapped intents pair with branches by position.
	if len(ids) > 0 && len(intentMap) == 0 {
		for i, raw := range ids {
			if i >= len(branches) {
				break
			}
			if key := scalarString(raw); key != "" {
				intentMap[key] = branches[i].target
			}
		}
	}

	listed := make(map[string]bool, len(ids))
	for _, raw := range ids {
		listed[scalarString(raw)] = true
	}
	used := make(map[string]bool, len(intentMap)+len(ids))
	covered := make(map[string]bool, len(intentMap))
	for k, v := range intentMap {
		used[k] = true
		if target, ok := v.(string); ok {
			covered[target] = true
		}
	}
	for k := range listed {
		used[k] = true
	}

	derived := 0
	for i, e := range branches {
		if covered[e.target] {
			continue
		}
		id := intentID(e.sourceHandle, i, used)
		used[id] = true
		covered[e.target] = true
		listed[id] = true
		ids = append(ids, id)
		intentMap[id] = e.target
		derived++
	}
	if derived > 0 {
		g.info(CodeIntentsDerived, n.path+".data", "Derived %d intents for routing node %q from its connections", derived, n.id)
	}

	keys := make([]string, 0, len(intentMap))
	for k := range intentMap {
		if !listed[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		ids = append(ids, k)
	}

	n.data["intentIds"] = ids
	n.data["intentMap"] = intentMap
	ensureFallback(g, n)
}

// intentID names a derived intent after its edge handle when that handle
// is meaningful, otherwise after its position.
func intentID(handle string, index int, used map[string]bool) string {
	base := handle
	if base == "" || base == DefaultSourceHandle {
		base = fmt.Sprintf("intent-%d", index)
	}
	id := base
	for i := 1; used[id]; i++ {
		id = fmt.Sprintf("%s-%d", base, i)
	}
	return id
}

func enforceAPI(g *flowGraph, n *node) {
	edges := g.outgoing(n.id)
	if len(edges) > 2 {
		dropEdges(g, edges[2:])
		g.warn(CodeAPIExtraEdges, n.path, "API node %q allows success and error connections only; dropped %d extra", n.id, len(edges)-2)
		edges = edges[:2]
	}

	var success, failure *edge
	if len(edges) == 2 {
		success, failure = classifyAPIEdges(edges)
		if success.target == failure.target {
			dropEdges(g, []*edge{failure})
			g.warn(CodeAPISameTarget, n.path, "API node %q had success and error connections to the same node %q; dropped the error connection", n.id, failure.target)
			edges = []*edge{success}
			failure = nil
		}
	}

	endID := g.endID()
	if len(edges) == 1 {
		e := edges[0]
		switch {
		case e.target == endID:
			success, failure = e, e
		case errorHandles[strings.ToLower(e.sourceHandle)]:
			failure = e
			success = g.addEdge(n.id, endID, SuccessHandle)
			g.warn(CodeAPIPathAdded, n.path, "Added success connection from API node %q to end node %q", n.id, endID)
		default:
			success = e
			failure = g.addEdge(n.id, endID, ErrorHandle)
			g.warn(CodeAPIPathAdded, n.path, "Added error connection from API node %q to end node %q", n.id, endID)
		}
	}

	if success == nil {
		n.data["successNodeId"] = ""
		n.data["errorNodeId"] = ""
		return
	}
	n.data["successNodeId"] = success.target
	n.data["errorNodeId"] = failure.target
}

// classifyAPIEdges designates one of two edges as the error path: an edge
// with an error handle, else the sibling of an edge with a success handle,
// else the second edge.
func classifyAPIEdges(edges []*edge) (success, failure *edge) {
	errIdx := -1
	for i, e := range edges {
		if errorHandles[strings.ToLower(e.sourceHandle)] {
			errIdx = i
			break
		}
	}
	if errIdx < 0 {
		errIdx = 1
		for i, e := range edges {
			if successHandles[strings.ToLower(e.sourceHandle)] {
				errIdx = 1 - i
				break
			}
		}
	}
	return edges[1-errIdx], edges[errIdx]
}

// ensureFallback guarantees a branching node has an edge to end.
func ensureFallback(g *flowGraph, n *node) {
	endID := g.endID()
	for _, e := range g.outgoing(n.id) {
		if e.target == endID {
			return
		}
	}
	g.addEdge(n.id, endID, FallbackHandle)
	g.warn(CodeFallbackAdded, n.path, "Added fallback connection from %s node %q to end node %q", n.kind, n.id, endID)
}

// remapTargets rewrites string values that name a node by slug, raw id or
// merged id to that node's current id.
func remapTargets(g *flowGraph, m map[string]any) {
	for k, v := range m {
		ref, ok := v.(string)
		if !ok || ref == "" {
			continue
		}
		if id, ok := g.lookup(ref); ok && id != ref {
			m[k] = id
		}
	}
}

// dropStaleTargets removes entries whose target is not a live node an edge
// may enter, and returns the removed keys.
func dropStaleTargets(g *flowGraph, n *node, m map[string]any, field string) map[string]bool {
	var keys []string
	for k, v := range m {
		if isBlank(v) {
			continue
		}
		if ref, ok := v.(string); ok {
			if kind := g.kindOf(ref); kind != "" && kind != core.NodeKindStart {
				continue
			}
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	stale := make(map[string]bool, len(keys))
	for _, k := range keys {
		g.warn(CodeStaleRoute, n.path+".data."+field+"."+k, "Dropped %s entry %q of %s node %q: target %v is not a node", field, k, n.kind, n.id, m[k])
		delete(m, k)
		stale[k] = true
	}
	return stale
}

// wireRouteTargets adds an edge, keyed by its entry, for every mapped target
// the node has no connection to.
func wireRouteTargets(g *flowGraph, n *node, m map[string]any, field string) {
	connected := make(map[string]bool)
	for _, e := range g.outgoing(n.id) {
		connected[e.target] = true
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		target, ok := m[k].(string)
		if !ok || isBlank(target) || connected[target] {
			continue
		}
		g.addEdge(n.id, target, k)
		connected[target] = true
		g.warn(CodeRouteEdgeAdded, n.path+".data."+field+"."+k, "Connected %s node %q to %q for %s entry %q", n.kind, n.id, target, field, k)
	}
}

func dropEdges(g *flowGraph, edges []*edge) {
	drop := make(map[*edge]bool, len(edges))
	for _, e := range edges {
		drop[e] = true
	}
	g.removeEdges(drop)
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}
