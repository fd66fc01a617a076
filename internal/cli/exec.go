package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/model"
)

var execDryRun bool

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().BoolVar(&execDryRun, "dry-run", false, "Run the approval flow but do not execute")
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <shell command>",
	Short: "Gate a shell command and run it when approved",
	Long: "Runs the command through the shell tool's approval flow, then executes\n" +
		"it with sh -c. Under toolgate supervise the prompt is shown by the\n" +
		"supervising process.\n\n" +
		"Blocked commands are not executed. Exit code 77 indicates a block.",
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func shellCall(command string) model.ToolCall {
	args, _ := json.Marshal(map[string]string{"command": command})
	return model.ToolCall{ID: "cli", Name: "shell", Arguments: string(args)}
}

func runExec(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := strings.Join(args, " ")
	out, err := s.gate.Execute(ctx, shellCall(command))
	if err != nil {
		s.close()
		return reportBlocked(err)
	}
	if out.Pattern != nil {
		fmt.Fprintf(os.Stderr, "Allowed for this session: %s\n", out.Pattern.String())
	}
	if execDryRun {
		printJSON(map[string]any{"command": command, "result": out.Result.String()})
		return nil
	}

	sh := exec.CommandContext(ctx, "sh", "-c", command)
	sh.Stdin = os.Stdin
	sh.Stdout = os.Stdout
	sh.Stderr = os.Stderr
	err = sh.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		s.close()
		os.Exit(exitErr.ExitCode())
	}
	return err
}
