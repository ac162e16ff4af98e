// Package registry provides the global node-kind registry for botflow.
// It maps the twelve canonical kinds to metadata (category, arity, aliases,
// data defaults) used by the normalizer, the generator prompt, the server
// API, and the CLI.
package registry

import (
	"strings"
	"sync"

	"github.com/petal-labs/botflow/core"
)

// NodeKindDef describes a registered node kind.
type NodeKindDef struct {
	Kind        core.NodeKind  `json:"type"`
	Category    string         `json:"category"` // "control", "ai", "message", "data", "integration"
	DisplayName string         `json:"display_name"`
	Description string         `json:"description"`
	Arity       core.Arity     `json:"arity"`
	Aliases     []string       `json:"aliases,omitempty"`
	Defaults    map[string]any `json:"defaults"`
}

var (
	global     *Registry
	globalOnce sync.Once
)

// Global returns the singleton registry instance. On first call it
// initializes the registry and auto-registers all built-in node kinds.
func Global() *Registry {
	globalOnce.Do(func() {
		global = newRegistry()
		registerBuiltins(global)
	})
	return global
}

// Registry holds all known node kinds and their aliases.
type Registry struct {
	mu      sync.RWMutex
	kinds   map[core.NodeKind]NodeKindDef
	aliases map[string]core.NodeKind // alias key -> canonical kind
	order   []core.NodeKind          // preserves registration order
}

func newRegistry() *Registry {
	return &Registry{
		kinds:   make(map[core.NodeKind]NodeKindDef),
		aliases: make(map[string]core.NodeKind),
	}
}

// Register adds a node kind definition and its aliases. If the kind already
// exists it is overwritten. The canonical name is always registered as an
// alias of itself so that differently-cased spellings resolve.
func (r *Registry) Register(def NodeKindDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[def.Kind]; !exists {
		r.order = append(r.order, def.Kind)
	}
	if def.Arity == "" {
		def.Arity = def.Kind.Arity()
	}
	r.kinds[def.Kind] = def
	r.aliases[aliasKey(string(def.Kind))] = def.Kind
	for _, alias := range def.Aliases {
		if key := aliasKey(alias); key != "" {
			r.aliases[key] = def.Kind
		}
	}
}

// Get returns a node kind definition.
func (r *Registry) Get(kind core.NodeKind) (NodeKindDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.kinds[kind]
	return def, ok
}

// Has returns true if the kind is registered.
func (r *Registry) Has(kind core.NodeKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[kind]
	return ok
}

// Resolve maps an arbitrary type string to a canonical kind. An exact,
// case-sensitive match on a registered kind wins; otherwise the alias table
// is consulted. aliased reports whether the alias table was used.
func (r *Registry) Resolve(typeName string) (kind core.NodeKind, aliased bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exact := r.kinds[core.NodeKind(typeName)]; exact {
		return core.NodeKind(typeName), false, true
	}
	key := aliasKey(typeName)
	if key == "" {
		return "", false, false
	}
	kind, ok = r.aliases[key]
	if !ok {
		return "", false, false
	}
	return kind, true, true
}

// Defaults returns a deep copy of the data defaults for kind.
// Callers may mutate the result freely.
func (r *Registry) Defaults(kind core.NodeKind) map[string]any {
	r.mu.RLock()
	def, ok := r.kinds[kind]
	r.mu.RUnlock()
	if !ok || def.Defaults == nil {
		return map[string]any{}
	}
	return cloneMap(def.Defaults)
}

// DisplayName returns the display name for kind, or the kind string itself.
func (r *Registry) DisplayName(kind core.NodeKind) string {
	def, ok := r.Get(kind)
	if !ok || def.DisplayName == "" {
		return string(kind)
	}
	return def.DisplayName
}

// All returns all registered node kinds in registration order.
// Used by GET /api/node-types and the node-types command.
func (r *Registry) All() []NodeKindDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]NodeKindDef, 0, len(r.order))
	for _, kind := range r.order {
		result = append(result, r.kinds[kind])
	}
	return result
}

// Len returns the number of registered node kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}

// aliasKey folds a type string for alias lookup: lowercase with spaces,
// dashes, underscores and dots removed ("Set_Value" -> "setvalue").
func aliasKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '-', '_', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	default:
		return v
	}
}
