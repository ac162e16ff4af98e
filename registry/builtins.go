package registry

import "github.com/petal-labs/botflow/core"

// registerBuiltins registers all built-in botflow node kinds.
// Called once by Global() during singleton initialization.
func registerBuiltins(r *Registry) {
	r.Register(NodeKindDef{
		Kind:        core.NodeKindStart,
		Category:    "control",
		DisplayName: "Start",
		Description: "Entry point of the conversation flow",
		Aliases:     []string{"entry", "begin", "trigger", "start_node", "onstart"},
		Defaults:    map[string]any{},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindLLM,
		Category:    "ai",
		DisplayName: "LLM",
		Description: "Generate a reply with a language model",
		Aliases:     []string{"gpt", "ai", "prompt", "llm_prompt", "generate", "completion", "chatgpt", "openai"},
		Defaults: map[string]any{
			"prompt":       "",
			"systemPrompt": "",
			"model":        "",
			"temperature":  0.7,
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindText,
		Category:    "message",
		DisplayName: "Text",
		Description: "Compose a static or templated text message",
		Aliases:     []string{"static_text", "send_text", "text_block", "template"},
		Defaults: map[string]any{
			"text": "",
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindAIResponse,
		Category:    "message",
		DisplayName: "AI Response",
		Description: "Deliver the pending message to the user",
		Aliases:     []string{"message", "response", "respond", "reply", "send_message", "output", "ai_message", "say"},
		Defaults: map[string]any{
			"message": "",
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindListen,
		Category:    "message",
		DisplayName: "Listen",
		Description: "Wait for the next user message",
		Aliases:     []string{"input", "wait", "wait_for_input", "user_input", "receive", "await"},
		Defaults: map[string]any{
			"variable": "",
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindSet,
		Category:    "data",
		DisplayName: "Set Value",
		Description: "Assign a value to a flow variable",
		Aliases:     []string{"setvalue", "set_variable", "assign", "variable", "store"},
		Defaults: map[string]any{
			"variable": "",
			"value":    "",
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindCondition,
		Category:    "control",
		DisplayName: "Condition",
		Description: "Branch on expressions; each branch id maps to a target node",
		Aliases:     []string{"if", "if_else", "branch", "decision", "conditional"},
		Defaults: map[string]any{
			"conditions": []any{},
			"routeMap":   map[string]any{},
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindRouting,
		Category:    "ai",
		DisplayName: "Routing",
		Description: "Classify the user's intent and route to the matching branch",
		Aliases:     []string{"classify", "classifier", "router", "route", "intent", "intent_router", "switch"},
		Defaults: map[string]any{
			"intentIds": []any{},
			"intentMap": map[string]any{},
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindAPI,
		Category:    "integration",
		DisplayName: "API Request",
		Description: "Call an HTTP endpoint; success and error paths are separate",
		Aliases:     []string{"http", "http_request", "webhook", "request", "api_call", "fetch", "rest"},
		Defaults: map[string]any{
			"method":        "",
			"url":           "",
			"headers":       map[string]any{},
			"body":          "",
			"successNodeId": "",
			"errorNodeId":   "",
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindCode,
		Category:    "integration",
		DisplayName: "Code",
		Description: "Run a code snippet against flow variables",
		Aliases:     []string{"script", "function", "javascript", "js", "python"},
		Defaults: map[string]any{
			"language": "javascript",
			"code":     "",
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindUserDataCapture,
		Category:    "data",
		DisplayName: "User Data Capture",
		Description: "Collect structured fields from the user",
		Aliases:     []string{"collect", "form", "capture", "data_capture", "collect_data", "user_data", "ask"},
		Defaults: map[string]any{
			"fields": []any{},
		},
	})

	r.Register(NodeKindDef{
		Kind:        core.NodeKindEnd,
		Category:    "control",
		DisplayName: "End",
		Description: "Terminal node of the conversation flow",
		Aliases:     []string{"stop", "exit", "finish", "terminate", "end_node", "done"},
		Defaults:    map[string]any{},
	})
}
