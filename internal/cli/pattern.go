package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/pattern"
)

func init() {
	rootCmd.AddCommand(patternCmd)
}

var patternCmd = &cobra.Command{
	Use:   "pattern <tool> [args-json]",
	Short: "Show the allowlist entry \"allow always\" would install",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPattern,
}

func runPattern(cmd *cobra.Command, args []string) error {
	call, err := parseCall(args)
	if err != nil {
		return err
	}
	p, _, err := loadPolicy()
	if err != nil {
		return err
	}

	cat := p.Categorize(call.Name)
	target, _ := p.MatchTarget(call, cat)
	gen, err := pattern.GenerateWith(call, cat, pattern.Options{
		Shell:  p.ShellType(),
		Target: target,
	})
	if err != nil {
		return err
	}
	printJSON(map[string]any{
		"tool":     call.Name,
		"category": cat.String(),
		"pattern":  gen.String(),
		"entry":    gen,
	})
	return nil
}
