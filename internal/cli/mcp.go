package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/mcp"
	"github.com/ppiankov/toolgate/internal/protect"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs toolgate as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes read-only tools: toolgate_check, toolgate_pattern, toolgate_verify.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	p, path, err := loadPolicy()
	if err != nil {
		return err
	}
	prot, err := protect.Load(protect.DefaultPath())
	if err != nil {
		return fmt.Errorf("load protected files: %w", err)
	}
	if path != "" {
		prot.AddPath(path)
	}

	srv, err := mcp.New(mcp.Config{Policy: p, Protector: prot, Version: version})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "toolgate MCP server running on stdio")
	if path != "" {
		fmt.Fprintf(os.Stderr, "Policy: %s\n", path)
	}
	return srv.Run(ctx)
}
