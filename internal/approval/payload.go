package approval

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/toolgate/internal/pathid"
)

// Error type discriminators for blocked calls.
const (
	TypeRateLimited    = "rate_limited"
	TypeDenied         = "operation_denied"
	TypeProtectedFile  = "protected_file"
	TypeNonInteractive = "non_interactive_gate"
)

// ErrAborted is returned when the user interrupts a prompt. The caller
// should stop the whole turn, not just the call.
var ErrAborted = errors.New("approval aborted by user")

// ErrorPayload is the structured result handed back to the agent in place
// of a blocked tool's output. It implements error.
type ErrorPayload struct {
	Type       string `json:"error"`
	Message    string `json:"message"`
	Tool       string `json:"tool,omitempty"`
	Category   string `json:"category,omitempty"`
	Path       string `json:"path,omitempty"`
	RetryAfter *int   `json:"retry_after,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *ErrorPayload) Error() string {
	return e.Type + ": " + e.Message
}

// JSON renders the payload as a single JSON object.
func (e *ErrorPayload) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":%q,"message":%q}`, e.Type, e.Message)
	}
	return string(data)
}

// RateLimitError reports that tool is in denial backoff for retry seconds.
func RateLimitError(tool string, retry int) *ErrorPayload {
	return &ErrorPayload{
		Type:       TypeRateLimited,
		Message:    fmt.Sprintf("Too many denied requests for %s tool. Wait %d seconds before retrying.", tool, retry),
		RetryAfter: &retry,
		Tool:       tool,
	}
}

// DenialError reports that the user refused tool.
func DenialError(tool string) *ErrorPayload {
	return &ErrorPayload{
		Type:       TypeDenied,
		Message:    fmt.Sprintf("User denied permission to execute %s", tool),
		Tool:       tool,
		Suggestion: "Ask the user to perform this operation manually, or request permission with explanation",
	}
}

// ProtectedFileError reports an attempt to modify a protected file.
func ProtectedFileError(path string) *ErrorPayload {
	return &ErrorPayload{
		Type:    TypeProtectedFile,
		Message: "Cannot modify protected configuration file",
		Path:    path,
	}
}

// NonInteractiveError reports a gated call with no terminal to ask on.
func NonInteractiveError(tool, category string) *ErrorPayload {
	return &ErrorPayload{
		Type:       TypeNonInteractive,
		Message:    fmt.Sprintf("Cannot execute %s operation without TTY for approval", category),
		Tool:       tool,
		Category:   category,
		Suggestion: fmt.Sprintf("Use --yolo to bypass gates, or --allow-category=%s to allow this category in non-interactive mode", category),
	}
}

// VerifyErrorPayload reports a failed path verification.
func VerifyErrorPayload(err error) *ErrorPayload {
	code := pathid.CodeOf(err)
	p := &ErrorPayload{
		Type:    pathid.ErrorType(code),
		Message: code.Message(),
	}
	var ve *pathid.VerifyError
	if errors.As(err, &ve) {
		p.Path = ve.Path
	}
	return p
}
