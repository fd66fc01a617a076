package subagent

import (
	"github.com/ppiankov/toolgate/internal/model"
)

// Request asks the terminal-owning process to approve one tool call.
type Request struct {
	ToolName       string `json:"tool_name"`
	ArgumentsJSON  string `json:"arguments_json"`
	DisplaySummary string `json:"display_summary"`
	RequestID      uint64 `json:"request_id"`
}

// Response carries the parent's decision. Pattern is set only when the
// parent installed a new allowlist entry.
type Response struct {
	RequestID uint64       `json:"request_id"`
	Result    model.Result `json:"result"`
	Pattern   string       `json:"pattern,omitempty"`
}

// Call rebuilds the tool call a request describes.
func (r Request) Call() model.ToolCall {
	return model.ToolCall{
		ID:        "subagent-synthetic",
		Name:      r.ToolName,
		Arguments: r.ArgumentsJSON,
	}
}

// Summary renders a one-line description of call for display by the parent.
func Summary(call model.ToolCall) string {
	switch call.Name {
	case "shell":
		if cmd := call.Command(); cmd != "" {
			return "shell: " + cmd
		}
	case "write_file", "read_file", "append_file":
		if p := call.Path(); p != "" {
			return call.Name + ": " + p
		}
	case "web_fetch":
		if u := call.URL(); u != "" {
			return "web_fetch: " + u
		}
	}
	if call.Name == "" {
		return "[unknown]"
	}
	return call.Name
}
