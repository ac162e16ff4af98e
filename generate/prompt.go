package generate

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/petal-labs/botflow/normalize"
	"github.com/petal-labs/botflow/registry"
)

var systemTemplate = template.Must(template.New("system").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`You design conversation flows for a chatbot builder.
Reply with a single JSON object and nothing else:
{"nodes": [...], "connections": [...], "variables": [], "metadata": {}}

Each node is {"id", "type", "label", "data"}. Each connection is
{"source", "target", "sourceHandle"}.

Node types:
{{- range .Kinds}}
- {{.Kind}} ({{.Arity}}): {{.Description}}.{{if .Aliases}} Also called: {{join .Aliases ", "}}.{{end}}
{{- end}}

Rules:
- Exactly one start node and one end node.
- Every text or llm node must be followed by an airesponse node.
- condition and routing nodes branch by sourceHandle; api nodes have a success and an error path.
{{- if .Allowed}}
- Use only these node types besides start, end and airesponse: {{join .Allowed ", "}}.
{{- end}}
{{- if gt .Cap 0}}
- Use at most {{.Cap}} nodes besides start, end and airesponse.
{{- end}}
`))

type promptData struct {
	Kinds   []registry.NodeKindDef
	Allowed []string
	Cap     int
}

// SystemPrompt renders the instructions sent ahead of the user's request.
func SystemPrompt(reg *registry.Registry, opts normalize.Options) string {
	data := promptData{
		Kinds:   reg.All(),
		Allowed: opts.AllowNodeTypes,
		Cap:     opts.NodeCap(),
	}
	var buf bytes.Buffer
	// The template is static and its data cannot fail to render.
	_ = systemTemplate.Execute(&buf, data)
	return buf.String()
}
