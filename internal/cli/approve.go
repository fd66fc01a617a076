package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/model"
)

var approveBatch bool

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().BoolVar(&approveBatch, "batch", false, "Treat arguments as pairs of <tool> <args-json> and prompt once for all of them")
}

var approveCmd = &cobra.Command{
	Use:   "approve <tool> [args-json]",
	Short: "Run a tool call through the full approval flow",
	Long: "Checks rate limits and policy, prompts on the terminal when approval is\n" +
		"needed, installs \"allow always\" entries, and re-verifies file targets.\n" +
		"Prints the outcome, or the JSON error payload the agent would receive.\n\n" +
		"Exit code 0 if permitted, 77 if blocked, 130 if aborted.",
	Args: cobra.MinimumNArgs(1),
	RunE: runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if approveBatch {
		return runApproveBatch(ctx, s, args)
	}
	if len(args) > 2 {
		return fmt.Errorf("expected <tool> [args-json], got %d arguments (use --batch for several calls)", len(args))
	}

	call, err := parseCall(args)
	if err != nil {
		return err
	}
	out, err := s.gate.Execute(ctx, call)
	if err != nil {
		return reportBlocked(err)
	}

	resp := map[string]any{
		"tool":   call.Name,
		"result": out.Result.String(),
	}
	if out.Pattern != nil {
		resp["pattern"] = out.Pattern.String()
	}
	if out.Path != nil {
		resp["resolved_path"] = out.Path.ResolvedPath
	}
	printJSON(resp)
	return nil
}

func runApproveBatch(ctx context.Context, s *session, args []string) error {
	if len(args)%2 != 0 {
		return fmt.Errorf("--batch expects <tool> <args-json> pairs")
	}
	var calls []model.ToolCall
	for i := 0; i < len(args); i += 2 {
		call, err := parseCall(args[i : i+2])
		if err != nil {
			return err
		}
		call.ID = fmt.Sprintf("cli_%d", i/2)
		calls = append(calls, call)
	}

	out := s.gate.CheckBatch(ctx, calls)
	items := make([]map[string]any, len(calls))
	for i, c := range calls {
		item := map[string]any{"tool": c.Name, "result": out.Results[i].String()}
		if out.Patterns[i] != nil {
			item["pattern"] = out.Patterns[i].String()
		}
		items[i] = item
	}
	printJSON(map[string]any{"result": out.Result.String(), "calls": items})

	switch {
	case out.Result == model.ResultAborted:
		os.Exit(130)
	case !out.Result.Permits():
		os.Exit(exitBlocked)
	}
	return nil
}

// reportBlocked prints the payload for a blocked call and exits.
func reportBlocked(err error) error {
	if errors.Is(err, approval.ErrAborted) {
		fmt.Fprintln(os.Stderr, "aborted")
		os.Exit(130)
	}
	var payload *approval.ErrorPayload
	if errors.As(err, &payload) {
		fmt.Println(payload.JSON())
		os.Exit(exitBlocked)
	}
	return err
}
