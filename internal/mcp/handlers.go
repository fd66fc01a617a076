package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/pathid"
	"github.com/ppiankov/toolgate/internal/pattern"
)

// --- Input/Output types ---

// CallInput names a tool call by tool name and JSON arguments.
type CallInput struct {
	Tool      string `json:"tool" jsonschema:"tool name (shell, write_file, web_fetch, ...)"`
	Arguments string `json:"arguments,omitempty" jsonschema:"JSON-encoded tool arguments"`
}

// CheckOutput contains the policy decision.
type CheckOutput struct {
	Decision    string `json:"decision"`
	Category    string `json:"category"`
	Action      string `json:"action"`
	Matched     bool   `json:"matched"`
	RateLimited bool   `json:"rate_limited,omitempty"`
	RetryAfter  int    `json:"retry_after,omitempty"`
	Protected   bool   `json:"protected,omitempty"`
}

// PatternOutput describes the entry "allow always" would install.
type PatternOutput struct {
	Tool              string   `json:"tool"`
	Category          string   `json:"category"`
	Pattern           string   `json:"pattern,omitempty"`
	Regex             string   `json:"regex,omitempty"`
	Prefix            []string `json:"prefix,omitempty"`
	Exact             bool     `json:"exact"`
	NeedsConfirmation bool     `json:"needs_confirmation"`
	Examples          []string `json:"examples,omitempty"`
}

// VerifyInput names the path to check.
type VerifyInput struct {
	Path string `json:"path" jsonschema:"file path to capture and verify"`
}

// VerifyOutput reports the captured identity and the verification result.
type VerifyOutput struct {
	Path         string `json:"path"`
	ResolvedPath string `json:"resolved_path,omitempty"`
	Existed      bool   `json:"existed"`
	NetworkFS    bool   `json:"network_fs,omitempty"`
	Verified     bool   `json:"verified"`
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
}

// --- Handlers ---

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CallInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	call, err := buildCall(input)
	if err != nil {
		return nil, CheckOutput{}, err
	}
	cat := s.policy.Categorize(call.Name)

	out := CheckOutput{
		Decision: string(s.policy.Decide(call)),
		Category: cat.String(),
		Action:   s.policy.Action(cat).String(),
		Matched:  s.policy.Matches(call),
	}
	if s.policy.Limiter().IsLimited(call.Name) {
		out.RateLimited = true
		out.RetryAfter = s.policy.Limiter().Remaining(call.Name)
	}
	if cat == model.FileWrite {
		if path := call.Path(); path != "" && s.protect.IsProtected(path) {
			out.Protected = true
			out.Decision = string(model.Denied)
		}
	}

	s.log.WithField("tool", call.Name).WithField("decision", out.Decision).Debug("check")
	return nil, out, nil
}

func (s *Server) handlePattern(ctx context.Context, req *mcpsdk.CallToolRequest, input CallInput) (*mcpsdk.CallToolResult, PatternOutput, error) {
	call, err := buildCall(input)
	if err != nil {
		return nil, PatternOutput{}, err
	}
	cat := s.policy.Categorize(call.Name)
	target, _ := s.policy.MatchTarget(call, cat)

	gen, err := pattern.GenerateWith(call, cat, pattern.Options{
		Shell:  s.policy.ShellType(),
		Target: target,
	})
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, PatternOutput{Tool: call.Name, Category: cat.String()}, nil
	}

	return nil, PatternOutput{
		Tool:              call.Name,
		Category:          cat.String(),
		Pattern:           gen.String(),
		Regex:             gen.Regex,
		Prefix:            gen.Prefix,
		Exact:             gen.Exact,
		NeedsConfirmation: gen.NeedsConfirmation,
		Examples:          gen.Examples,
	}, nil
}

func (s *Server) handleVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, VerifyOutput, error) {
	out := VerifyOutput{Path: input.Path}

	ap, err := pathid.Capture(input.Path)
	if err == nil {
		out.ResolvedPath = ap.ResolvedPath
		out.Existed = ap.Existed
		out.NetworkFS = ap.NetworkFS
		err = pathid.Verify(ap)
	}
	if err != nil {
		code := pathid.CodeOf(err)
		out.Error = pathid.ErrorType(code)
		out.Message = code.Message()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	out.Verified = true
	return nil, out, nil
}

// --- Helpers ---

// buildCall validates input and normalizes the arguments to a JSON object.
func buildCall(input CallInput) (model.ToolCall, error) {
	tool := strings.TrimSpace(input.Tool)
	if tool == "" {
		return model.ToolCall{}, fmt.Errorf("tool is required")
	}
	args := strings.TrimSpace(input.Arguments)
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return model.ToolCall{}, fmt.Errorf("arguments for %s are not valid JSON", tool)
	}
	return model.ToolCall{ID: "mcp", Name: tool, Arguments: args}, nil
}
