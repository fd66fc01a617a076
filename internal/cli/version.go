package cli

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/subagent"
)

// version is set by ldflags at build time.
var version = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		printJSON(buildInfo())
	},
}

// versionInfo is what `toolgate version` prints. Commit and Modified come
// from the VCS stamp when the binary was built inside a checkout.
type versionInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Go          string `json:"go"`
	Commit      string `json:"commit,omitempty"`
	Modified    bool   `json:"modified,omitempty"`
	MaxFrame    int    `json:"approval_max_frame"`
	ApprovalEnv string `json:"approval_env"`
}

func buildInfo() versionInfo {
	info := versionInfo{
		Name:        "toolgate",
		Version:     version,
		Go:          runtime.Version(),
		MaxFrame:    subagent.MaxMessageSize,
		ApprovalEnv: subagent.EnvFDs,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}
