package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/logger"
)

var (
	flagConfig        string
	flagYolo          bool
	flagAllow         []string
	flagAllowCategory []string
	flagDenyCategory  []string
	flagLogFile       string
	flagAuditLog      string
	flagVerbose       bool

	logCloser io.Closer
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "Path to policy file (default: search toolgate.json, ~/.toolgate/config.{json,yaml})")
	pf.BoolVar(&flagYolo, "yolo", false, "Disable all approval gates")
	pf.StringArrayVar(&flagAllow, "allow", nil, "Session allowlist entry tool:args (shell takes a comma-separated prefix, other tools a regex)")
	pf.StringArrayVar(&flagAllowCategory, "allow-category", nil, "Category to allow without prompting (repeatable)")
	pf.StringArrayVar(&flagDenyCategory, "deny-category", nil, "Category to deny outright (repeatable)")
	pf.StringVar(&flagLogFile, "log-file", "", "Write logs to a rotated file instead of stderr")
	pf.StringVar(&flagAuditLog, "audit-log", "", "Append prompted decisions to a hash-chained JSONL log")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
}

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Approval gates for AI agent tool calls",
	Long: "Classifies agent tool calls, asks the user before risky ones run, and\n" +
		"carries approvals across subagent processes.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		switch {
		case flagVerbose:
			level = "debug"
		case flagLogFile != "":
			level = "info"
		}
		closer, err := logger.Configure(logger.Options{Level: level, File: flagLogFile})
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
