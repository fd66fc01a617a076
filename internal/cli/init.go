package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/protect"
)

var (
	initMode  string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initMode, "mode", "user", "Config location: user (~/.toolgate) or project (./.toolgate)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default approval policy and protected-file list",
	Long: `Creates the config directory with config.yaml (category actions and
allowlist) and protected.yaml (extra files no tool may modify).

User mode (default):  writes to ~/.toolgate/
Project mode:         writes to ./.toolgate/`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := initConfigDir()
	if err != nil {
		return err
	}

	var created []string

	configPath := filepath.Join(configDir, "config.yaml")
	if wrote, err := writeIfMissing(configPath, policy.DefaultConfigYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, configPath)
	}

	protectedPath := filepath.Join(configDir, "protected.yaml")
	content, err := defaultProtectedYAML()
	if err != nil {
		return fmt.Errorf("generate protected list: %w", err)
	}
	if wrote, err := writeIfMissing(protectedPath, content); err != nil {
		return err
	} else if wrote {
		created = append(created, protectedPath)
	}

	fmt.Println("toolgate init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
		fmt.Println()
	}

	fmt.Println("Check a call against the policy:")
	fmt.Println(`  toolgate check shell '{"command":"git status"}'`)
	fmt.Println()
	fmt.Println("Run an agent with approvals on this terminal:")
	fmt.Println("  toolgate supervise -- <agent command>")
	return nil
}

// initConfigDir returns the configuration directory based on mode.
func initConfigDir() (string, error) {
	switch initMode {
	case "project":
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot determine working directory: %w", err)
		}
		return filepath.Join(wd, ".toolgate"), nil
	case "user", "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".toolgate"), nil
	default:
		return "", fmt.Errorf("unknown mode %q: use 'user' or 'project'", initMode)
	}
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// defaultProtectedYAML renders an empty protected list with the built-in
// rules shown as comments. Entries in the file are added to the built-ins.
func defaultProtectedYAML() (string, error) {
	data, err := yaml.Marshal(protect.DefaultPatterns)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("# toolgate protected files: no tool may write these, even with --yolo.\n")
	b.WriteString("# Entries here are added to the built-in rules:\n#\n")
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		b.WriteString("#   " + line + "\n")
	}
	b.WriteString("#\n")
	b.WriteString("# basenames: exact file names; prefixes: file name prefixes;\n")
	b.WriteString("# files: doublestar globs; scan: names whose inode is tracked.\n")
	b.WriteString("basenames: []\nprefixes: []\nfiles: []\nscan: []\n")
	return b.String(), nil
}
