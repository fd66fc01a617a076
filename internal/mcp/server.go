// Package mcp exposes the approval policy to MCP clients over stdio.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/protect"
)

// Config holds MCP server configuration.
type Config struct {
	// Policy is queried by every tool. Nil loads the document at
	// PolicyPath, or the search path when that is empty.
	Policy     *policy.Policy
	PolicyPath string
	// Protector flags protected write targets. Nil uses the defaults.
	Protector approval.Protector
	Version   string
}

// Server wraps the MCP SDK server. None of its tools prompt or execute
// anything.
type Server struct {
	mcpServer *mcpsdk.Server
	policy    *policy.Policy
	protect   approval.Protector
	log       *logger.Entry
}

// New creates an MCP server with the loaded policy and registered tools.
func New(cfg Config) (*Server, error) {
	p := cfg.Policy
	if p == nil {
		pcfg, err := policy.LoadConfig(cfg.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy config: %w", err)
		}
		p = policy.New(*pcfg)
	}

	prot := cfg.Protector
	if prot == nil {
		prot = protect.NewDefault()
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		policy:  p,
		protect: prot,
		log:     logger.Named("mcp"),
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "toolgate",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("serving MCP on stdio")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all toolgate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_check",
		Description: "Report whether a tool call would run, need approval, or be denied under the current policy (dry-run, never prompts).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_pattern",
		Description: "Show the allowlist entry an \"allow always\" answer would install for a tool call.",
	}, s.handlePattern)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_verify",
		Description: "Capture a path's identity and verify it still names the same file.",
	}, s.handleVerify)
}
