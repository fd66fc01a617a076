package policy

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ApprovalGates.Enabled == nil || !*cfg.ApprovalGates.Enabled {
		t.Fatal("expected gates enabled by default")
	}
	want := map[string]string{
		"file_write": "gate",
		"file_read":  "allow",
		"shell":      "gate",
		"network":    "gate",
		"memory":     "allow",
		"subagent":   "gate",
		"mcp":        "gate",
		"dynamic":    "allow",
	}
	for k, v := range want {
		if got := cfg.ApprovalGates.Categories[k]; got != v {
			t.Errorf("category %s = %q, want %q", k, got, v)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.ApprovalGates.Categories["shell"] != "gate" {
		t.Errorf("expected defaults, got %+v", cfg.ApprovalGates)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "toolgate.json", `{
  "approval_gates": {
    "enabled": true,
    "categories": {"shell": "allow", "network": "deny"},
    "allowlist": [
      {"tool": "shell", "command": ["git", "status"]},
      {"tool": "shell", "command": ["dir"], "shell": "cmd"},
      {"tool": "write_file", "pattern": "^src/.*\\.go$"}
    ]
  }
}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	gc := cfg.ApprovalGates
	if gc.Categories["network"] != "deny" {
		t.Errorf("network = %q, want deny", gc.Categories["network"])
	}
	if len(gc.Allowlist) != 3 {
		t.Fatalf("expected 3 allowlist entries, got %d", len(gc.Allowlist))
	}
	if gc.Allowlist[1].Shell != "cmd" {
		t.Errorf("shell = %q, want cmd", gc.Allowlist[1].Shell)
	}
	if gc.Allowlist[2].Pattern != `^src/.*\.go$` {
		t.Errorf("pattern = %q", gc.Allowlist[2].Pattern)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
approval_gates:
  categories:
    file_write: allow
  allowlist:
    - tool: web_fetch
      pattern: '^https://example\.com(/|$)'
  equivalents:
    - [python, python3]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	p := New(*cfg)
	if p.Action(model.FileWrite) != model.Allow {
		t.Errorf("file_write = %s, want allow", p.Action(model.FileWrite))
	}
	if p.Action(model.Shell) != model.Gate {
		t.Errorf("unlisted categories keep defaults, shell = %s", p.Action(model.Shell))
	}
	if !p.Enabled() {
		t.Error("enabled should default to true when omitted")
	}
	if regex, _ := p.StaticCounts(); regex != 1 {
		t.Errorf("static regex count = %d, want 1", regex)
	}
}

func TestLoadConfigMalformedFallsBack(t *testing.T) {
	path := writeFile(t, t.TempDir(), "toolgate.json", `{"approval_gates": {`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("malformed config must not be an error, got %v", err)
	}
	if len(cfg.ApprovalGates.Allowlist) != 0 || cfg.ApprovalGates.Categories["shell"] != "gate" {
		t.Errorf("expected defaults, got %+v", cfg.ApprovalGates)
	}
}

func TestLoadConfigSearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if err := os.MkdirAll(filepath.Join(dir, ".toolgate"), 0o700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, ".toolgate"), "config.yaml", "approval_gates:\n  enabled: false\n")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ApprovalGates.Enabled == nil || *cfg.ApprovalGates.Enabled {
		t.Error("expected ~/.toolgate/config.yaml to be found")
	}

	writeFile(t, dir, "toolgate.json", `{"approval_gates": {"enabled": true}}`)
	cfg, err = LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ApprovalGates.Enabled == nil || !*cfg.ApprovalGates.Enabled {
		t.Error("./toolgate.json should take precedence")
	}
}

func TestDefaultConfigYAMLParses(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultConfigYAML()), &cfg); err != nil {
		t.Fatalf("DefaultConfigYAML is not valid YAML: %v", err)
	}
	p := New(cfg)
	if _, shell := p.StaticCounts(); shell != 2 {
		t.Errorf("expected 2 shell entries in the template, got %d", shell)
	}
	for _, c := range model.Categories() {
		if p.Action(c) != defaultActions[c] {
			t.Errorf("template %s = %s, want %s", c, p.Action(c), defaultActions[c])
		}
	}
}

func TestLoadConfigSkipsBadEntriesOnly(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		doc  string
	}{
		{"toolgate.json", `{"approval_gates": {
  "enabled": null,
  "categories": {"shell": "deny", "network": "deny", "file_read": 3},
  "allowlist": [
    {"tool": "shell", "command": "git status"},
    {"tool": "write_file", "pattern": "^src/"}
  ],
  "equivalents": [["ls", "dir"], "cat"]
}}`},
		{"config.yaml", `
approval_gates:
  categories:
    shell: deny
    network: deny
    file_read: [allow]
  allowlist:
    - tool: shell
      command: git status
    - tool: write_file
      pattern: '^src/'
  equivalents:
    - [ls, dir]
    - cat
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeFile(t, dir, tt.name, tt.doc))
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			p := New(*cfg)
			if !p.Enabled() {
				t.Error("gates must stay enabled")
			}
			if p.Action(model.Shell) != model.Deny || p.Action(model.Network) != model.Deny {
				t.Errorf("shell = %s, network = %s, want deny", p.Action(model.Shell), p.Action(model.Network))
			}
			if p.Action(model.FileRead) != model.Allow {
				t.Errorf("file_read = %s, want default allow", p.Action(model.FileRead))
			}
			shell := model.ToolCall{Name: "shell", Arguments: `{"command":"git status"}`}
			if got := p.Decide(shell); got != model.Denied {
				t.Errorf("Decide(git status) = %s, want denied", got)
			}
			if regex, shells := p.StaticCounts(); regex != 1 || shells != 0 {
				t.Errorf("static counts = %d, %d, want 1, 0", regex, shells)
			}
			if len(cfg.ApprovalGates.Equivalents) != 1 {
				t.Errorf("equivalents = %v, want one group", cfg.ApprovalGates.Equivalents)
			}
		})
	}
}
