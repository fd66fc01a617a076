package cli

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/pathid"
)

var verifyWait time.Duration

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().DurationVar(&verifyWait, "wait", 0, "Wait this long instead of for Enter before verifying")
}

var verifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Capture a path's identity, wait, then check it was not swapped",
	Long: "Records the file (or, for a new file, its parent directory) the way an\n" +
		"approval does, waits, then verifies on an open descriptor that the path\n" +
		"still names the same file. Useful for checking a filesystem's behavior.\n\n" +
		"Exit code 0 if unchanged, 77 if the path changed.",
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	ap, err := pathid.Capture(args[0])
	if err != nil {
		return reportBlocked(approval.VerifyErrorPayload(err))
	}
	if ap.NetworkFS {
		fmt.Fprintf(os.Stderr, "warning: %s\n", pathid.CodeNetworkFS.Message())
	}

	if verifyWait > 0 {
		fmt.Fprintf(os.Stderr, "Captured %s; verifying in %s\n", ap.ResolvedPath, verifyWait)
		time.Sleep(verifyWait)
	} else {
		fmt.Fprintf(os.Stderr, "Captured %s; press Enter to verify\n", ap.ResolvedPath)
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	}

	b := pathid.Bind(ap)
	if ap.Existed {
		f, err := b.OpenRead(ap.UserPath)
		if err != nil {
			return reportBlocked(approval.VerifyErrorPayload(err))
		}
		f.Close()
	} else {
		b.Release()
		if err := pathid.Verify(ap); err != nil {
			return reportBlocked(approval.VerifyErrorPayload(err))
		}
	}

	printJSON(map[string]any{
		"path":          ap.UserPath,
		"resolved_path": ap.ResolvedPath,
		"existed":       ap.Existed,
		"network_fs":    ap.NetworkFS,
		"verified":      true,
	})
	return nil
}
