package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/model"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <tool> [args-json]",
	Short: "Show the policy decision for a tool call without prompting",
	Long: "Classifies the call, evaluates the allowlist and category action, and\n" +
		"prints the decision as JSON.\n\n" +
		"Exit code 0 if the call would run, 77 if it needs approval or is denied.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	call, err := parseCall(args)
	if err != nil {
		return err
	}
	p, _, err := loadPolicy()
	if err != nil {
		return err
	}

	cat := p.Categorize(call.Name)
	decision := p.Decide(call)
	target, _ := p.MatchTarget(call, cat)
	printJSON(map[string]any{
		"tool":     call.Name,
		"category": cat.String(),
		"action":   p.Action(cat).String(),
		"decision": string(decision),
		"matched":  p.Matches(call),
		"target":   target,
		"enabled":  p.Enabled(),
	})

	if decision != model.Allowed {
		os.Exit(exitBlocked)
	}
	return nil
}
