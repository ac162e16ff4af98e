package normalize

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/petal-labs/botflow/core"
	"github.com/petal-labs/botflow/graph"
	"github.com/petal-labs/botflow/registry"
)

func TestParseRawFlow_EdgeShapes(t *testing.T) {
	var diags []graph.Diagnostic
	rf := parseRawFlow(decode(t, `{"connections":[
		{"from":"a","to":"b"},
		{"source":"a","target":"c","sourceHandle":"yes"},
		{"sourceNodeID":"a","targetNodeID":"d","fromPort":"p","toPort":"q"},
		{"from":"","to":"x","source":"a","target":"e"},
		{"source":{"id":"a","handle":"h"},"target":{"nodeId":"f","port":"in"}}
	]}`), &diags)

	want := []rawEdge{
		{path: "connections[0]", source: "a", target: "b"},
		{path: "connections[1]", source: "a", target: "c", sourceHandle: "yes"},
		{path: "connections[2]", source: "a", target: "d", sourceHandle: "p", targetHandle: "q"},
		{path: "connections[3]", source: "a", target: "e"},
		{path: "connections[4]", source: "a", target: "f", sourceHandle: "h", targetHandle: "in"},
	}
	if diff := cmp.Diff(want, rf.edges, cmp.AllowUnexported(rawEdge{})); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %+v", diags)
	}
}

func TestParseRawFlow_NodeFallbackKeys(t *testing.T) {
	var diags []graph.Diagnostic
	rf := parseRawFlow(decode(t, `{"nodes":[
		{"id":" n1 ","kind":"text","title":"Greeting","config":{"text":"hi"},"position":{"x":10,"y":"bad"}},
		{"nodeType":"end","position":{"x":5,"y":6}}
	]}`), &diags)

	if len(rf.nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(rf.nodes))
	}
	n := rf.nodes[0]
	if n.id != "n1" || n.typeName != "text" || n.label != "Greeting" {
		t.Errorf("node = %+v", n)
	}
	if n.data["text"] != "hi" {
		t.Errorf("data = %v, want config fallback", n.data)
	}
	if n.position != nil {
		t.Errorf("position with non-numeric y should be ignored, got %+v", n.position)
	}
	if p := rf.nodes[1].position; p == nil || *p != (core.Position{X: 5, Y: 6}) {
		t.Errorf("position = %+v, want {5 6}", p)
	}
}

func TestParseRawFlow_MalformedSections(t *testing.T) {
	var diags []graph.Diagnostic
	rf := parseRawFlow(decode(t, `{"nodes":{"a":1},"connections":"none","variables":"x"}`), &diags)
	if len(rf.nodes) != 0 || len(rf.edges) != 0 {
		t.Errorf("expected empty flow, got %+v", rf)
	}
	if len(diags) != 2 {
		t.Errorf("diagnostics = %d, want 2: %+v", len(diags), diags)
	}
	if rf.variables == nil || len(rf.variables) != 0 {
		t.Errorf("variables = %v, want empty list", rf.variables)
	}
}

func newTestGraph() *flowGraph {
	return newFlowGraph(registry.Global())
}

func TestResolveTypes_AllowListAndCap(t *testing.T) {
	raws := []rawNode{
		{index: 0, typeName: "text"},
		{index: 1, typeName: "code"},
		{index: 2, typeName: "message"},
		{index: 3, typeName: "input"},
		{index: 4, typeName: "llm"},
		{index: 5, typeName: "end"},
	}

	g := newTestGraph()
	got := resolveTypes(g, raws, Options{AllowNodeTypes: []string{"text", "wait", "llm"}, MaxNodes: 2})

	var kinds []core.NodeKind
	for _, r := range got {
		kinds = append(kinds, r.kind)
	}
	want := []core.NodeKind{core.NodeKindText, core.NodeKindAIResponse, core.NodeKindListen, core.NodeKindEnd}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
	if !hasDiag(g.diags, CodeDisallowedType) {
		t.Error("expected disallowed-type warning for code")
	}
	if !hasDiag(g.diags, CodeNodeCapExceeded) {
		t.Error("expected cap warning for llm")
	}
}

func TestOptions_NodeCap(t *testing.T) {
	tests := []struct {
		opts Options
		want int
	}{
		{Options{}, 0},
		{Options{Complexity: "simple"}, 8},
		{Options{Complexity: " Moderate "}, 15},
		{Options{Complexity: "complex"}, 30},
		{Options{Complexity: "galactic"}, 0},
		{Options{Complexity: "simple", MaxNodes: 3}, 3},
	}
	for _, tt := range tests {
		if got := tt.opts.NodeCap(); got != tt.want {
			t.Errorf("%+v.NodeCap() = %d, want %d", tt.opts, got, tt.want)
		}
	}
}

func TestAssignIdentity_SlugsAndIDs(t *testing.T) {
	g := newTestGraph()
	assignIdentity(g, []resolvedNode{
		{raw: rawNode{index: 0, data: map[string]any{}}, kind: core.NodeKindText},
		{raw: rawNode{index: 1, id: "text-0", data: map[string]any{}}, kind: core.NodeKindText},
		{raw: rawNode{index: 2, id: "x", data: map[string]any{}}, kind: core.NodeKindSet},
		{raw: rawNode{index: 3, id: "x", data: map[string]any{"variable": "name"}}, kind: core.NodeKindSet},
	})

	type ident struct{ ID, Slug string }
	var got []ident
	for _, n := range g.nodes {
		got = append(got, ident{n.id, n.slug})
	}
	want := []ident{
		{"text-0-1", "text-0"},
		{"text-0", "text-1"},
		{"x", "set-0"},
		{"set-1", "set-1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("identity mismatch (-want +got):\n%s", diff)
	}
	if !hasDiag(g.diags, CodeDuplicateID) {
		t.Error("expected duplicate id warning")
	}

	if g.nodes[3].data["variable"] != "name" || g.nodes[3].data["value"] != "" {
		t.Errorf("defaults should fill missing keys only, got %v", g.nodes[3].data)
	}
	if g.nodes[0].label != "Text" {
		t.Errorf("label = %q, want display name", g.nodes[0].label)
	}

	seen := make(map[core.Position]bool)
	for _, n := range g.nodes {
		if seen[n.position] {
			t.Errorf("auto position %+v assigned twice", n.position)
		}
		seen[n.position] = true
	}
}

func TestEnsureTerminals_MergesDuplicates(t *testing.T) {
	g := newTestGraph()
	assignIdentity(g, []resolvedNode{
		{raw: rawNode{index: 0, id: "end1", data: map[string]any{}}, kind: core.NodeKindEnd},
		{raw: rawNode{index: 1, id: "end2", data: map[string]any{}}, kind: core.NodeKindEnd},
	})
	ensureTerminals(g)

	if len(g.nodes) != 2 {
		t.Fatalf("nodes = %d, want start and one end", len(g.nodes))
	}
	if g.nodes[0].id != "start-0" || g.nodes[0].kind != core.NodeKindStart {
		t.Errorf("first node = %+v, want synthesized start-0", g.nodes[0])
	}
	if id, ok := g.lookup("end2"); !ok || id != "end1" {
		t.Errorf("lookup(end2) = %q, %v; want end1", id, ok)
	}
	if !hasDiag(g.diags, CodeDuplicateEnd) || !hasDiag(g.diags, CodeStartAdded) {
		t.Errorf("missing diagnostics: %+v", g.diags)
	}
}

func TestClassifyAPIEdges(t *testing.T) {
	tests := []struct {
		name        string
		handles     [2]string
		wantSuccess int
	}{
		{"positional", [2]string{"a", "a"}, 0},
		{"error handle first", [2]string{"error", "a"}, 1},
		{"failure handle second", [2]string{"a", "Failure"}, 0},
		{"success handle second", [2]string{"a", "success"}, 1},
		{"ok handle first", [2]string{"ok", "a"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edges := []*edge{
				{source: "api", target: "x", sourceHandle: tt.handles[0]},
				{source: "api", target: "y", sourceHandle: tt.handles[1]},
			}
			success, failure := classifyAPIEdges(edges)
			if success != edges[tt.wantSuccess] || failure != edges[1-tt.wantSuccess] {
				t.Errorf("success=%s failure=%s", success.target, failure.target)
			}
		})
	}
}

func TestEnforceAPI_SoleErrorEdgeGetsSuccessPath(t *testing.T) {
	res := Normalize(Input{Payload: decode(t, `{"nodes":[
		{"id":"api","type":"api"},{"id":"oops","type":"airesponse"}
	],"connections":[{"from":"api","to":"oops","sourceHandle":"error"}]}`)})
	checkInvariants(t, res.Flow)

	api := nodeByID(t, res.Flow, "api")
	endID := res.Flow.NodesOfKind(core.NodeKindEnd)[0].ID
	if api.Data["errorNodeId"] != "oops" || api.Data["successNodeId"] != endID {
		t.Errorf("api data = %v", api.Data)
	}
}

func TestEnforceAPI_SoleEdgeToEndServesBothPaths(t *testing.T) {
	res := Normalize(Input{Payload: decode(t, `{"nodes":[
		{"id":"s","type":"start"},{"id":"api","type":"api"},{"id":"e","type":"end"}
	],"connections":[{"from":"s","to":"api"},{"from":"api","to":"e"}]}`)})
	checkInvariants(t, res.Flow)

	if n := len(res.Flow.Outgoing("api")); n != 1 {
		t.Errorf("api outgoing = %d, want 1", n)
	}
	api := nodeByID(t, res.Flow, "api")
	if api.Data["successNodeId"] != "e" || api.Data["errorNodeId"] != "e" {
		t.Errorf("api data = %v", api.Data)
	}
}

func TestEnforceRouting_KeepsModelIntents(t *testing.T) {
	res := Normalize(Input{Payload: decode(t, `{"nodes":[
		{"id":"r","type":"routing","data":{"intentIds":["buy","help"]}},
		{"id":"b","type":"airesponse"},
		{"id":"h","type":"airesponse"}
	],"connections":[{"from":"r","to":"b"},{"from":"r","to":"h"}]}`)})
	checkInvariants(t, res.Flow)

	data := nodeByID(t, res.Flow, "r").Data
	if diff := cmp.Diff([]any{"buy", "help"}, data["intentIds"]); diff != "" {
		t.Errorf("intentIds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"buy": "b", "help": "h"}, data["intentMap"]); diff != "" {
		t.Errorf("intentMap mismatch (-want +got):\n%s", diff)
	}
	endID := res.Flow.NodesOfKind(core.NodeKindEnd)[0].ID
	if len(edgesBetween(res.Flow, "r", endID)) != 1 {
		t.Error("routing node needs a fallback edge to end")
	}
}

func TestEnforceRouting_DerivesIntentsFromEdges(t *testing.T) {
	res := Normalize(Input{Payload: decode(t, `{"nodes":[
		{"id":"r","type":"classify"},
		{"id":"x","type":"airesponse"},
		{"id":"y","type":"airesponse"}
	],"connections":[{"from":"r","to":"x"},{"from":"r","to":"y","sourceHandle":"refund"}]}`)})

	data := nodeByID(t, res.Flow, "r").Data
	if diff := cmp.Diff([]any{"intent-0", "refund"}, data["intentIds"]); diff != "" {
		t.Errorf("intentIds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"intent-0": "x", "refund": "y"}, data["intentMap"]); diff != "" {
		t.Errorf("intentMap mismatch (-want +got):\n%s", diff)
	}
	if !hasDiag(res.Diagnostics, CodeIntentsDerived) {
		t.Error("expected derived-intents suggestion")
	}
}

func TestEnforceCondition_RemapsRouteTargetsAndReplacesBadRouteMap(t *testing.T) {
	res := Normalize(Input{Payload: decode(t, `{"nodes":[
		{"id":"c","type":"condition","data":{"routeMap":"oops"}},
		{"type":"airesponse"}
	],"connections":[{"from":"c","to":"airesponse-0","sourceHandle":"yes"}]}`)})
	data := nodeByID(t, res.Flow, "c").Data
	routeMap, ok := data["routeMap"].(map[string]any)
	if !ok {
		t.Fatalf("routeMap = %T", data["routeMap"])
	}
	if routeMap["yes"] != "airesponse-0" {
		t.Errorf("routeMap = %v", routeMap)
	}
	if !hasDiag(res.Diagnostics, CodeRouteMapReset) {
		t.Error("expected routeMap reset warning")
	}
}

func TestEnforceCondition_DropsRoutesToMissingNodes(t *testing.T) {
	in := Input{Payload: decode(t, `{"nodes":[
		{"id":"c","type":"condition","data":{"routeMap":{"yes":"ghost","no":"t","back":"start-0"}}},
		{"id":"r","type":"airesponse"},
		{"id":"t","type":"airesponse"}
	],"connections":[{"from":"c","to":"r","sourceHandle":"yes"}]}`)}
	res := Normalize(in)
	checkInvariants(t, res.Flow)
	assertIdempotent(t, res, in)

	want := map[string]any{"yes": "r", "no": "t", "fallback": "end-0"}
	if diff := cmp.Diff(want, nodeByID(t, res.Flow, "c").Data["routeMap"]); diff != "" {
		t.Errorf("routeMap mismatch (-want +got):\n%s", diff)
	}
	stale := 0
	for _, d := range res.Diagnostics {
		if d.Code == CodeStaleRoute {
			stale++
		}
	}
	if stale != 2 {
		t.Errorf("stale route warnings = %d, want 2", stale)
	}
	if len(edgesBetween(res.Flow, "c", "t")) != 1 || !hasDiag(res.Diagnostics, CodeRouteEdgeAdded) {
		t.Errorf("mapped target t should gain an edge: %+v", res.Flow.Connections)
	}
}

func TestEnforceRouting_DropsIntentsToMissingNodes(t *testing.T) {
	in := Input{Payload: decode(t, `{"nodes":[
		{"id":"r","type":"routing","data":{"intentIds":["buy"],"intentMap":{"buy":"ghost2"}}},
		{"id":"t","type":"airesponse"}
	],"connections":[{"from":"r","to":"t","sourceHandle":"buy"}]}`)}
	res := Normalize(in)
	checkInvariants(t, res.Flow)
	assertIdempotent(t, res, in)

	data := nodeByID(t, res.Flow, "r").Data
	if diff := cmp.Diff(map[string]any{"buy": "t"}, data["intentMap"]); diff != "" {
		t.Errorf("intentMap mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"buy"}, data["intentIds"]); diff != "" {
		t.Errorf("intentIds mismatch (-want +got):\n%s", diff)
	}
	if !hasDiag(res.Diagnostics, CodeStaleRoute) {
		t.Error("expected stale intent warning")
	}
}

func TestEnforceRouting_MapAndEdgesAgree(t *testing.T) {
	in := Input{Payload: decode(t, `{"nodes":[
		{"id":"r","type":"routing","data":{"intentIds":["buy"],"intentMap":{"buy":"x"}}},
		{"id":"x","type":"airesponse"},
		{"id":"t","type":"airesponse"}
	],"connections":[{"from":"r","to":"t","sourceHandle":"help"}]}`)}
	res := Normalize(in)
	checkInvariants(t, res.Flow)
	assertIdempotent(t, res, in)

	data := nodeByID(t, res.Flow, "r").Data
	if diff := cmp.Diff(map[string]any{"buy": "x", "help": "t"}, data["intentMap"]); diff != "" {
		t.Errorf("intentMap mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"buy", "help"}, data["intentIds"]); diff != "" {
		t.Errorf("intentIds mismatch (-want +got):\n%s", diff)
	}
	if len(edgesBetween(res.Flow, "r", "x")) != 1 {
		t.Errorf("mapped intent buy should have an edge to x: %+v", res.Flow.Connections)
	}
}

func TestAddRoute_ProbesOnConflict(t *testing.T) {
	m := map[string]any{"a": "x"}
	addRoute(m, "a", "y")
	addRoute(m, "a", "y")
	addRoute(m, "a", "x")
	want := map[string]any{"a": "x", "a-1": "y"}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("routeMap mismatch (-want +got):\n%s", diff)
	}
}

func TestConnections_DropsIllegalEdges(t *testing.T) {
	res := Normalize(Input{Payload: decode(t, `{"nodes":[
		{"id":"s","type":"start"},{"id":"r","type":"airesponse"},{"id":"e","type":"end"}
	],"connections":[
		{"from":"s","to":"r"},
		{"from":"s","to":"r"},
		{"from":"r","to":"s"},
		{"from":"e","to":"r"},
		{"from":"r","to":"ghost"},
		{"from":"r","to":"e"}
	]}`)})
	for _, code := range []string{CodeDuplicateEdge, CodeEdgeIntoStart, CodeEdgeFromEnd, CodeUnresolvedEdge} {
		if !hasDiag(res.Diagnostics, code) {
			t.Errorf("expected %s in %v", code, res.Validation.Warnings)
		}
	}
	want := []graph.EdgeDef{
		{Source: "s", Target: "r", SourceHandle: "a", TargetHandle: "b"},
		{Source: "r", Target: "e", SourceHandle: "a", TargetHandle: "b"},
	}
	if diff := cmp.Diff(want, res.Flow.Connections); diff != "" {
		t.Errorf("connections mismatch (-want +got):\n%s", diff)
	}
}

func TestInferAPIFields(t *testing.T) {
	tests := []struct {
		name        string
		instruction string
		data        string
		wantURL     any
		wantMethod  any
	}{
		{"fills both", "delete https://api.test/items/1.", `{}`, "https://api.test/items/1", "DELETE"},
		{"keeps present url", "PUT https://other.test", `{"url":"https://kept.test"}`, "https://kept.test", "PUT"},
		{"keeps present method", "get (https://a.test/x)", `{"method":"POST"}`, "https://a.test/x", "POST"},
		{"no match", "call the crm", `{}`, "", ""},
		{"verb must be a word", "forget https://a.test", `{}`, "https://a.test", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"nodes":[{"id":"api","type":"api","data":` + tt.data + `}]}`
			res := Normalize(Input{Instruction: tt.instruction, Payload: decode(t, payload)})
			data := nodeByID(t, res.Flow, "api").Data
			if data["url"] != tt.wantURL {
				t.Errorf("url = %v, want %v", data["url"], tt.wantURL)
			}
			if data["method"] != tt.wantMethod {
				t.Errorf("method = %v, want %v", data["method"], tt.wantMethod)
			}
		})
	}
}

func TestInferAPIFields_OnlyFirstIncompleteNode(t *testing.T) {
	res := Normalize(Input{
		Instruction: "POST https://hooks.test/new",
		Payload: decode(t, `{"nodes":[
			{"id":"done","type":"api","data":{"url":"https://x.test","method":"GET"}},
			{"id":"first","type":"api"},
			{"id":"second","type":"api"}
		]}`),
	})
	if got := nodeByID(t, res.Flow, "first").Data["url"]; got != "https://hooks.test/new" {
		t.Errorf("first url = %v", got)
	}
	if got := nodeByID(t, res.Flow, "second").Data["url"]; got != "" {
		t.Errorf("second url = %v, want untouched", got)
	}
}

func TestDefaultOrder_Next(t *testing.T) {
	g := newTestGraph()
	assignIdentity(g, []resolvedNode{
		{raw: rawNode{index: 0, id: "e", data: map[string]any{}}, kind: core.NodeKindEnd},
		{raw: rawNode{index: 1, id: "m", data: map[string]any{}}, kind: core.NodeKindSet},
		{raw: rawNode{index: 2, id: "s", data: map[string]any{}}, kind: core.NodeKindStart},
	})
	o := newDefaultOrder(g)
	if diff := cmp.Diff([]string{"s", "m", "e"}, o.ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if o.next(g, "s") != "m" || o.next(g, "m") != "e" || o.next(g, "unknown") != "e" {
		t.Errorf("next: s->%s m->%s unknown->%s", o.next(g, "s"), o.next(g, "m"), o.next(g, "unknown"))
	}

	g.addEdge("m", "s", DefaultSourceHandle)
	if got := o.next(g, "s"); got != "e" {
		t.Errorf("next(s) with m -> s = %q, want e", got)
	}
}
