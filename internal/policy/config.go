package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/model"
)

// Config is the on-disk policy document.
type Config struct {
	ApprovalGates GateConfig `json:"approval_gates" yaml:"approval_gates"`
}

// GateConfig holds the approval gate settings.
type GateConfig struct {
	Enabled     *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Categories  map[string]string `json:"categories,omitempty" yaml:"categories,omitempty"`
	Allowlist   []AllowEntry      `json:"allowlist,omitempty" yaml:"allowlist,omitempty"`
	Equivalents [][]string        `json:"equivalents,omitempty" yaml:"equivalents,omitempty"`
	Shell       string            `json:"shell,omitempty" yaml:"shell,omitempty"`
}

// AllowEntry is one allowlist item. An entry with Command is a shell
// prefix; otherwise Pattern is a regex matched against the tool's target.
type AllowEntry struct {
	Tool    string `json:"tool" yaml:"tool"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Command []any  `json:"command,omitempty" yaml:"command,omitempty"`
	Shell   string `json:"shell,omitempty" yaml:"shell,omitempty"`
}

var defaultActions = [model.CategoryCount]model.Action{
	model.FileWrite: model.Gate,
	model.FileRead:  model.Allow,
	model.Shell:     model.Gate,
	model.Network:   model.Gate,
	model.Memory:    model.Allow,
	model.Subagent:  model.Gate,
	model.MCP:       model.Gate,
	model.Dynamic:   model.Allow,
}

// DefaultConfig returns gates enabled with the built-in category actions
// and an empty allowlist.
func DefaultConfig() *Config {
	enabled := true
	cats := make(map[string]string, model.CategoryCount)
	for _, c := range model.Categories() {
		cats[c.String()] = defaultActions[c].String()
	}
	return &Config{ApprovalGates: GateConfig{Enabled: &enabled, Categories: cats}}
}

// SearchPaths lists the config locations tried when no path is given,
// in order.
func SearchPaths() []string {
	paths := []string{"toolgate.json"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".toolgate", "config.json"),
			filepath.Join(home, ".toolgate", "config.yaml"),
		)
	}
	return paths
}

// ResolvePath returns path when set, else the first readable search
// path, else "".
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadConfig loads the policy document at path, or the first one found
// on the search path when path is empty.
// Missing file returns defaults. A malformed document is logged and
// defaults are returned; only unreadable files are an error.
func LoadConfig(path string) (*Config, error) {
	path = ResolvePath(path)
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read policy config: %w", err)
	}

	cfg, err := ParseConfig(path, data)
	if err != nil {
		logger.Named("policy").WithField("path", path).
			Warnf("failed to parse approval_gates, using defaults: %v", err)
		return DefaultConfig(), nil
	}
	return cfg, nil
}

// ParseConfig decodes data as YAML when name has a .yaml/.yml extension
// and as JSON otherwise. Only a document that is not an object is an
// error. Malformed fields and allowlist entries inside approval_gates are
// skipped one by one with a warning, so the rest of the policy survives.
func ParseConfig(name string, data []byte) (*Config, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		data = converted
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	cfg := &Config{}
	raw, ok := doc["approval_gates"]
	if !ok || isNull(raw) {
		return cfg, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parse approval_gates: %w", err)
	}
	decodeGates(&cfg.ApprovalGates, fields, logger.Named("policy").WithField("config", name))
	return cfg, nil
}

func decodeGates(gc *GateConfig, fields map[string]json.RawMessage, log *logger.Entry) {
	if raw, ok := fields["enabled"]; ok && !isNull(raw) {
		var enabled bool
		if err := json.Unmarshal(raw, &enabled); err != nil {
			log.Warnf("skipping enabled: %v", err)
		} else {
			gc.Enabled = &enabled
		}
	}

	if raw, ok := fields["categories"]; ok && !isNull(raw) {
		var cats map[string]json.RawMessage
		if err := json.Unmarshal(raw, &cats); err != nil {
			log.Warnf("skipping categories: %v", err)
		}
		for name, v := range cats {
			var action string
			if err := json.Unmarshal(v, &action); err != nil || isNull(v) {
				log.WithField("category", name).Warn("skipping category with non-string action")
				continue
			}
			if gc.Categories == nil {
				gc.Categories = make(map[string]string, len(cats))
			}
			gc.Categories[name] = action
		}
	}

	if raw, ok := fields["allowlist"]; ok && !isNull(raw) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			log.Warnf("skipping allowlist: %v", err)
		}
		for i, item := range items {
			var e AllowEntry
			if err := json.Unmarshal(item, &e); err != nil {
				log.WithField("index", i).Warnf("skipping malformed allowlist entry: %v", err)
				continue
			}
			gc.Allowlist = append(gc.Allowlist, e)
		}
	}

	if raw, ok := fields["equivalents"]; ok && !isNull(raw) {
		var groups []json.RawMessage
		if err := json.Unmarshal(raw, &groups); err != nil {
			log.Warnf("skipping equivalents: %v", err)
		}
		for i, g := range groups {
			var names []string
			if err := json.Unmarshal(g, &names); err != nil || len(names) == 0 {
				log.WithField("index", i).Warn("skipping malformed equivalents group")
				continue
			}
			gc.Equivalents = append(gc.Equivalents, names)
		}
	}

	if raw, ok := fields["shell"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &gc.Shell); err != nil {
			log.Warnf("skipping shell: %v", err)
		}
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// DefaultConfigYAML returns a commented YAML document for init.
func DefaultConfigYAML() string {
	return `# toolgate approval policy
# Generated by: toolgate init
#
# Category actions:
#   allow - run without asking
#   gate  - ask unless an allowlist entry matches
#   deny  - never run
approval_gates:
  enabled: true
  categories:
    file_write: gate
    file_read: allow
    shell: gate
    network: gate
    memory: allow
    subagent: gate
    mcp: gate
    dynamic: allow

  # Shell entries match a literal token prefix of a single plain command.
  # Chains, pipes, redirects, substitutions and dangerous commands never match.
  # Other entries are regexes matched against the tool's path or url argument.
  allowlist:
    - tool: shell
      command: [git, status]
    - tool: shell
      command: [ls]
    # - tool: write_file
    #   pattern: '^src/.*\.go$'
    # - tool: web_fetch
    #   pattern: '^https://api\.github\.com(/|$)'

  # Command names treated as interchangeable by shell-agnostic entries.
  # Omit to use the built-in table.
  # equivalents:
  #   - [ls, dir, Get-ChildItem, gci]
`
}
