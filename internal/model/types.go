package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is the policy bucket a tool name is classified into.
type Category int

const (
	FileWrite Category = iota
	FileRead
	Shell
	Network
	Memory
	Subagent
	MCP
	Dynamic
)

// CategoryCount is the number of categories.
const CategoryCount = int(Dynamic) + 1

var categoryNames = [CategoryCount]string{
	FileWrite: "file_write",
	FileRead:  "file_read",
	Shell:     "shell",
	Network:   "network",
	Memory:    "memory",
	Subagent:  "subagent",
	MCP:       "mcp",
	Dynamic:   "dynamic",
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, CategoryCount)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

func (c Category) String() string {
	if c < 0 || int(c) >= CategoryCount {
		return "unknown"
	}
	return categoryNames[c]
}

// ParseCategory maps a category name to a Category.
// "python" is accepted as a legacy alias for dynamic.
func ParseCategory(name string) (Category, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "python" {
		return Dynamic, nil
	}
	for i, cn := range categoryNames {
		if cn == n {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// IsFile reports whether the category operates on a filesystem path.
func (c Category) IsFile() bool {
	return c == FileRead || c == FileWrite
}

// Action is the disposition attached to a category.
type Action string

const (
	Allow Action = "allow"
	Gate  Action = "gate"
	Deny  Action = "deny"
)

func (a Action) String() string { return string(a) }

// ParseAction maps an action name to an Action. Unknown names are an error.
func ParseAction(name string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(name))) {
	case Allow:
		return Allow, nil
	case Gate:
		return Gate, nil
	case Deny:
		return Deny, nil
	}
	return "", fmt.Errorf("unknown action %q", name)
}

// Decision is the pure output of the decision engine.
type Decision string

const (
	Allowed          Decision = "allowed"
	RequiresApproval Decision = "requires_approval"
	Denied           Decision = "denied"
)

// Result is the outcome of an approval flow. The integer values are part of
// the subagent wire protocol and must not be reordered.
type Result int

const (
	ResultAllowed Result = iota
	ResultDenied
	ResultAllowedAlways
	ResultAborted
	ResultRateLimited
	ResultNonInteractiveDenied
)

var resultNames = [...]string{
	ResultAllowed:              "allowed",
	ResultDenied:               "denied",
	ResultAllowedAlways:        "allowed_always",
	ResultAborted:              "aborted",
	ResultRateLimited:          "rate_limited",
	ResultNonInteractiveDenied: "non_interactive_denied",
}

func (r Result) String() string {
	if !r.Valid() {
		return "unknown"
	}
	return resultNames[r]
}

// Valid reports whether r is one of the defined outcomes.
func (r Result) Valid() bool {
	return r >= ResultAllowed && int(r) < len(resultNames)
}

// Permits reports whether the operation may proceed.
func (r Result) Permits() bool {
	return r == ResultAllowed || r == ResultAllowedAlways
}

// ToolCall is one tool invocation requested by the agent.
// Arguments holds the raw JSON object text exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

var pathKeys = []string{"path", "file_path", "filepath", "filename"}

// StringArg returns the named string argument, or "" when absent or not a string.
func (tc ToolCall) StringArg(name string) string {
	if tc.Arguments == "" {
		return ""
	}
	var args map[string]json.RawMessage
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return ""
	}
	raw, ok := args[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Command returns the "command" argument.
func (tc ToolCall) Command() string { return tc.StringArg("command") }

// URL returns the "url" argument.
func (tc ToolCall) URL() string { return tc.StringArg("url") }

// Path returns the first non-empty path-like argument.
func (tc ToolCall) Path() string {
	for _, k := range pathKeys {
		if v := tc.StringArg(k); v != "" {
			return v
		}
	}
	return ""
}
