package normalize

import "github.com/petal-labs/botflow/core"

// defaultOrder is the linear order used to wire dangling nodes: start
// first, the remaining nodes in list order, end last.
type defaultOrder struct {
	ids   []string
	index map[string]int
}

func newDefaultOrder(g *flowGraph) defaultOrder {
	o := defaultOrder{index: make(map[string]int, len(g.nodes))}
	o.ids = append(o.ids, g.startID())
	for _, n := range g.nodes {
		if n.kind != core.NodeKindStart && n.kind != core.NodeKindEnd {
			o.ids = append(o.ids, n.id)
		}
	}
	o.ids = append(o.ids, g.endID())
	for i, id := range o.ids {
		o.index[id] = i
	}
	return o
}

// next returns the first node after id that does not already lead back to
// id, so the new edge closes no loop. Nodes outside the order, such as ones
// synthesized after it was taken, continue to end.
func (o defaultOrder) next(g *flowGraph, id string) string {
	endID := o.ids[len(o.ids)-1]
	i, ok := o.index[id]
	if !ok {
		return endID
	}
	for _, candidate := range o.ids[i+1:] {
		if candidate == endID || !g.reaches(candidate, id) {
			return candidate
		}
	}
	return endID
}

// ensureMessageDelivery inserts an airesponse node after every text or llm
// node that does not reach one directly or through a single intermediate
// node. An existing edge from the producer is re-pointed to leave the new
// node instead.
func ensureMessageDelivery(g *flowGraph, order defaultOrder) {
	producers := make([]*node, 0)
	for _, n := range g.nodes {
		if n.kind.ProducesMessage() {
			producers = append(producers, n)
		}
	}

	for _, p := range producers {
		out := g.outgoing(p.id)
		if reachesResponse(g, out) {
			continue
		}

		response := g.synthesize(core.NodeKindAIResponse, g.nextAutoPosition())
		g.insertBeforeEnd(response)

		if len(out) > 0 {
			out[0].source = response.id
		} else {
			g.addEdge(response.id, order.next(g, p.id), DefaultSourceHandle)
		}
		g.addEdge(p.id, response.id, DefaultSourceHandle)
		g.warn(CodeResponseAdded, p.path, "Inserted airesponse node %q after %s node %q", response.id, p.kind, p.id)
	}
}

// reachesResponse reports whether any edge leads to an airesponse node
// directly or via exactly one hop.
func reachesResponse(g *flowGraph, out []*edge) bool {
	for _, e := range out {
		if g.kindOf(e.target) == core.NodeKindAIResponse {
			return true
		}
		for _, hop := range g.outgoing(e.target) {
			if g.kindOf(hop.target) == core.NodeKindAIResponse {
				return true
			}
		}
	}
	return false
}

// wireDangling gives every non-end node without outgoing edges a single
// edge to the next node of the default order that does not reach it. Existing edges are never
// touched. Condition and routing nodes always hold a fallback edge by now;
// API nodes are re-checked so the new edge gains its error path.
func wireDangling(g *flowGraph, order defaultOrder) {
	nodes := append([]*node(nil), g.nodes...)
	for _, n := range nodes {
		if n.kind == core.NodeKindEnd || len(g.outgoing(n.id)) > 0 {
			continue
		}
		target := order.next(g, n.id)
		g.addEdge(n.id, target, DefaultSourceHandle)
		g.warn(CodeDanglingWired, n.path, "Connected dangling node %q to %q", n.id, target)

		if n.kind == core.NodeKindAPI {
			enforceAPI(g, n)
		}
	}
}
