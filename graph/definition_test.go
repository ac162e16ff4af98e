package graph

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/petal-labs/botflow/core"
)

// minimalFlow returns start -> airesponse -> end.
func minimalFlow() FlowDefinition {
	return FlowDefinition{
		Nodes: []NodeDef{
			{ID: "start-0", Type: core.NodeKindStart},
			{ID: "m1", Type: core.NodeKindAIResponse},
			{ID: "end-0", Type: core.NodeKindEnd},
		},
		Connections: []EdgeDef{
			{Source: "start-0", Target: "m1", SourceHandle: "a", TargetHandle: "b"},
			{Source: "m1", Target: "end-0", SourceHandle: "a", TargetHandle: "b"},
		},
	}
}

func hasCode(diags []Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_MinimalFlowIsValid(t *testing.T) {
	fd := minimalFlow()
	diags := fd.Validate()
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %+v", diags)
	}
}

func TestValidate_DuplicateIDs(t *testing.T) {
	fd := minimalFlow()
	fd.Nodes = append(fd.Nodes, NodeDef{ID: "m1", Type: core.NodeKindAIResponse})
	diags := fd.Validate()
	if !hasCode(diags, "FL-001") {
		t.Errorf("expected FL-001, got %+v", diags)
	}
}

func TestValidate_UnknownKind(t *testing.T) {
	fd := minimalFlow()
	fd.Nodes[1].Type = "teleport"
	if !hasCode(fd.Validate(), "FL-002") {
		t.Error("expected FL-002 for unknown kind")
	}
}

func TestValidate_DanglingEdge(t *testing.T) {
	fd := minimalFlow()
	fd.Connections = append(fd.Connections, EdgeDef{Source: "m1", Target: "ghost"})
	diags := fd.Validate()
	if !hasCode(diags, "FL-003") {
		t.Errorf("expected FL-003, got %+v", diags)
	}
	if hasCode(diags, "FL-012") {
		t.Error("cycle detection should be skipped when edges are dangling")
	}
}

func TestValidate_StartEndCounts(t *testing.T) {
	fd := FlowDefinition{Nodes: []NodeDef{{ID: "t", Type: core.NodeKindAIResponse}}}
	diags := fd.Validate()
	if !hasCode(diags, "FL-004") || !hasCode(diags, "FL-005") {
		t.Errorf("expected FL-004 and FL-005, got %+v", diags)
	}
}

func TestValidate_SingleOutputArity(t *testing.T) {
	fd := minimalFlow()
	fd.Connections = append(fd.Connections, EdgeDef{Source: "m1", Target: "start-0"})
	diags := fd.Validate()
	if !hasCode(diags, "FL-006") {
		t.Errorf("expected FL-006, got %+v", diags)
	}
}

func TestValidate_EndWithOutgoing(t *testing.T) {
	fd := minimalFlow()
	fd.Connections = append(fd.Connections, EdgeDef{Source: "end-0", Target: "m1"})
	if !hasCode(fd.Validate(), "FL-006") {
		t.Error("expected FL-006 for end with outgoing edge")
	}
}

func TestValidate_APIRequiresDistinctTargets(t *testing.T) {
	fd := FlowDefinition{
		Nodes: []NodeDef{
			{ID: "s", Type: core.NodeKindStart},
			{ID: "api", Type: core.NodeKindAPI, Data: map[string]any{"successNodeId": "r", "errorNodeId": "r"}},
			{ID: "r", Type: core.NodeKindAIResponse},
			{ID: "e", Type: core.NodeKindEnd},
		},
		Connections: []EdgeDef{
			{Source: "s", Target: "api"},
			{Source: "api", Target: "r"},
			{Source: "api", Target: "e"},
			{Source: "r", Target: "e"},
		},
	}
	if !hasCode(fd.Validate(), "FL-007") {
		t.Error("expected FL-007 for equal success/error ids")
	}

	fd.Nodes[1].Data["errorNodeId"] = "e"
	if hasCode(fd.Validate(), "FL-007") {
		t.Error("unexpected FL-007 once ids are distinct")
	}
}

func TestValidate_MessageProducerNeedsAIResponse(t *testing.T) {
	fd := FlowDefinition{
		Nodes: []NodeDef{
			{ID: "s", Type: core.NodeKindStart},
			{ID: "t", Type: core.NodeKindText},
			{ID: "l", Type: core.NodeKindListen},
			{ID: "x", Type: core.NodeKindSet},
			{ID: "r", Type: core.NodeKindAIResponse},
			{ID: "e", Type: core.NodeKindEnd},
		},
		Connections: []EdgeDef{
			{Source: "s", Target: "t"},
			{Source: "t", Target: "l"},
			{Source: "l", Target: "x"},
			{Source: "x", Target: "r"},
			{Source: "r", Target: "e"},
		},
	}
	if !hasCode(fd.Validate(), "FL-008") {
		t.Error("expected FL-008 when airesponse is three hops away")
	}

	// One hop through listen is allowed.
	fd.Connections[2] = EdgeDef{Source: "l", Target: "r"}
	fd.Connections[3] = EdgeDef{Source: "x", Target: "r"}
	if hasCode(fd.Validate(), "FL-008") {
		t.Error("unexpected FL-008 when airesponse is two hops away")
	}
}

func TestValidate_ZeroOutdegree(t *testing.T) {
	fd := minimalFlow()
	fd.Connections = fd.Connections[:1]
	diags := fd.Validate()
	if !hasCode(diags, "FL-009") {
		t.Errorf("expected FL-009, got %+v", diags)
	}
	if !hasCode(diags, "FL-010") {
		t.Errorf("expected FL-010, got %+v", diags)
	}
}

func TestValidate_CycleIsWarning(t *testing.T) {
	fd := FlowDefinition{
		Nodes: []NodeDef{
			{ID: "s", Type: core.NodeKindStart},
			{ID: "c", Type: core.NodeKindCondition},
			{ID: "r", Type: core.NodeKindAIResponse},
			{ID: "e", Type: core.NodeKindEnd},
		},
		Connections: []EdgeDef{
			{Source: "s", Target: "c"},
			{Source: "c", Target: "r"},
			{Source: "c", Target: "e"},
			{Source: "r", Target: "c"},
		},
	}
	diags := fd.Validate()
	if HasErrors(diags) {
		t.Fatalf("cycle through a condition should not be an error: %+v", Errors(diags))
	}
	if !hasCode(diags, "FL-012") {
		t.Errorf("expected FL-012 warning, got %+v", diags)
	}
}

func TestValidate_ConditionNeedsFallback(t *testing.T) {
	fd := FlowDefinition{
		Nodes: []NodeDef{
			{ID: "s", Type: core.NodeKindStart},
			{ID: "c", Type: core.NodeKindRouting},
			{ID: "r", Type: core.NodeKindAIResponse},
			{ID: "e", Type: core.NodeKindEnd},
		},
		Connections: []EdgeDef{
			{Source: "s", Target: "c"},
			{Source: "c", Target: "r"},
			{Source: "r", Target: "e"},
		},
	}
	if !hasCode(fd.Validate(), "FL-013") {
		t.Error("expected FL-013 for routing without fallback")
	}
}

func TestValidate_UnreachableNodeIsWarning(t *testing.T) {
	fd := minimalFlow()
	fd.Nodes = []NodeDef{
		fd.Nodes[0],
		fd.Nodes[1],
		{ID: "orphan", Type: core.NodeKindAIResponse},
		fd.Nodes[2],
	}
	fd.Connections = append(fd.Connections, EdgeDef{Source: "orphan", Target: "end-0"})
	diags := fd.Validate()
	if HasErrors(diags) {
		t.Fatalf("unexpected errors: %+v", Errors(diags))
	}
	if !hasCode(diags, "FL-011") {
		t.Errorf("expected FL-011, got %+v", diags)
	}
}

func TestMessages_NeverNil(t *testing.T) {
	got := Messages(nil, SeverityError)
	if got == nil {
		t.Fatal("Messages should return an empty slice, not nil")
	}
	data, _ := json.Marshal(got)
	if string(data) != "[]" {
		t.Errorf("json = %s, want []", data)
	}
}

func TestDiagnosticFilters(t *testing.T) {
	diags := []Diagnostic{
		{Code: "A", Severity: SeverityError, Message: "e"},
		{Code: "B", Severity: SeverityWarning, Message: "w"},
		{Code: "C", Severity: SeverityInfo, Message: "i"},
	}
	if len(Errors(diags)) != 1 || len(Warnings(diags)) != 1 || len(Infos(diags)) != 1 {
		t.Errorf("unexpected filter counts: %d/%d/%d", len(Errors(diags)), len(Warnings(diags)), len(Infos(diags)))
	}
	if !HasErrors(diags) {
		t.Error("HasErrors should be true")
	}
	if HasErrors(diags[1:]) {
		t.Error("HasErrors should be false without error severity")
	}
}

func TestFlowDefinition_JSONShape(t *testing.T) {
	fd := minimalFlow()
	data, err := json.Marshal(fd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"sourceHandle":"a"`, `"targetHandle":"b"`, `"type":"airesponse"`, `"position":{"x":0,"y":0}`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("json missing %s: %s", key, data)
		}
	}
}
