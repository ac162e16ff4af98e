package registry

import (
	"sync"
	"testing"

	"github.com/petal-labs/botflow/core"
)

func TestGlobal_ReturnsSameInstance(t *testing.T) {
	r1 := Global()
	r2 := Global()
	if r1 != r2 {
		t.Error("Global() should return the same instance on every call")
	}
}

func TestGlobal_RegistersEveryKind(t *testing.T) {
	r := Global()
	if r.Len() != len(core.Kinds()) {
		t.Fatalf("Len() = %d, want %d", r.Len(), len(core.Kinds()))
	}
	for _, kind := range core.Kinds() {
		if !r.Has(kind) {
			t.Errorf("kind %q not registered", kind)
		}
	}
}

func TestGlobal_OrderMatchesCanonicalOrder(t *testing.T) {
	all := Global().All()
	kinds := core.Kinds()
	for i, def := range all {
		if def.Kind != kinds[i] {
			t.Errorf("All()[%d] = %q, want %q", i, def.Kind, kinds[i])
		}
	}
}

func TestResolve(t *testing.T) {
	r := Global()
	tests := []struct {
		in      string
		want    core.NodeKind
		aliased bool
		ok      bool
	}{
		{"start", core.NodeKindStart, false, true},
		{"airesponse", core.NodeKindAIResponse, false, true},
		{"userdatacapture", core.NodeKindUserDataCapture, false, true},
		{"classify", core.NodeKindRouting, true, true},
		{"message", core.NodeKindAIResponse, true, true},
		{"setvalue", core.NodeKindSet, true, true},
		{"collect", core.NodeKindUserDataCapture, true, true},
		{"set_value", core.NodeKindSet, true, true},
		{"HTTP Request", core.NodeKindAPI, true, true},
		{"Text", core.NodeKindText, true, true},
		{"AIResponse", core.NodeKindAIResponse, true, true},
		{"llm_prompt", core.NodeKindLLM, true, true},
		{"teleport", "", false, false},
		{"", "", false, false},
		{"   ", "", false, false},
	}

	for _, tt := range tests {
		got, aliased, ok := r.Resolve(tt.in)
		if ok != tt.ok {
			t.Errorf("Resolve(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if aliased != tt.aliased {
			t.Errorf("Resolve(%q) aliased = %v, want %v", tt.in, aliased, tt.aliased)
		}
	}
}

func TestDefaults_ReturnsIndependentCopies(t *testing.T) {
	r := Global()

	first := r.Defaults(core.NodeKindCondition)
	routeMap, ok := first["routeMap"].(map[string]any)
	if !ok {
		t.Fatalf("routeMap default type = %T, want map[string]any", first["routeMap"])
	}
	routeMap["branch"] = "x"

	second := r.Defaults(core.NodeKindCondition)
	if len(second["routeMap"].(map[string]any)) != 0 {
		t.Error("mutating a defaults copy leaked into the registry")
	}
}

func TestDefaults_APIFields(t *testing.T) {
	d := Global().Defaults(core.NodeKindAPI)
	for _, key := range []string{"method", "url", "headers", "successNodeId", "errorNodeId"} {
		if _, ok := d[key]; !ok {
			t.Errorf("api defaults missing %q", key)
		}
	}
}

func TestDefaults_UnknownKind(t *testing.T) {
	r := newRegistry()
	d := r.Defaults("nope")
	if d == nil || len(d) != 0 {
		t.Errorf("Defaults(unknown) = %v, want empty map", d)
	}
}

func TestRegistry_RegisterOverwritesAndKeepsOrder(t *testing.T) {
	r := newRegistry()
	r.Register(NodeKindDef{Kind: core.NodeKindText, DisplayName: "one"})
	r.Register(NodeKindDef{Kind: core.NodeKindEnd, DisplayName: "end"})
	r.Register(NodeKindDef{Kind: core.NodeKindText, DisplayName: "two"})

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("All() len = %d, want 2", len(all))
	}
	if all[0].DisplayName != "two" {
		t.Errorf("DisplayName = %q, want %q", all[0].DisplayName, "two")
	}
	if all[1].Arity != core.ArityTerminal {
		t.Errorf("end Arity = %q, want %q", all[1].Arity, core.ArityTerminal)
	}
}

func TestDisplayName_FallsBackToKind(t *testing.T) {
	r := newRegistry()
	if got := r.DisplayName(core.NodeKindCode); got != "code" {
		t.Errorf("DisplayName = %q, want %q", got, "code")
	}
	if got := Global().DisplayName(core.NodeKindAIResponse); got != "AI Response" {
		t.Errorf("DisplayName = %q, want %q", got, "AI Response")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register(NodeKindDef{Kind: core.NodeKindSet, Aliases: []string{"assign"}})
		}()
		go func() {
			defer wg.Done()
			_, _, _ = r.Resolve("assign")
			_ = r.All()
		}()
	}
	wg.Wait()

	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
