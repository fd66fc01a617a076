package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/toolgate/internal/cmdguard"
	"github.com/ppiankov/toolgate/internal/model"
)

// EnvSnapshot names the variable a supervisor uses to hand its derived
// policy to a child process.
const EnvSnapshot = "TOOLGATE_POLICY"

// Snapshot returns the document Derive would build a subagent from:
// enabled, every category action, equivalents, shell and the static
// entries. Session approvals are left out.
func (p *Policy) Snapshot() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()

	enabled := p.enabled
	gc := GateConfig{
		Enabled:    &enabled,
		Categories: make(map[string]string, model.CategoryCount),
	}
	for _, c := range model.Categories() {
		gc.Categories[c.String()] = p.actions[c].String()
	}
	if p.shellType != cmdguard.ShellUnknown {
		gc.Shell = p.shellType.String()
	}
	for _, g := range p.equivalents {
		gc.Equivalents = append(gc.Equivalents, append([]string(nil), g...))
	}
	for _, e := range p.regexes[:p.staticRegex] {
		gc.Allowlist = append(gc.Allowlist, AllowEntry{Tool: e.tool, Pattern: e.pattern})
	}
	for _, e := range p.shells[:p.staticShell] {
		cmd := make([]any, len(e.tokens))
		for i, t := range e.tokens {
			cmd[i] = t
		}
		entry := AllowEntry{Tool: "shell", Command: cmd}
		if e.shell != cmdguard.ShellUnknown {
			entry.Shell = e.shell.String()
		}
		gc.Allowlist = append(gc.Allowlist, entry)
	}
	return Config{ApprovalGates: gc}
}

// EnvEntry returns "TOOLGATE_POLICY=<snapshot>" for a child's environment.
func (p *Policy) EnvEntry() (string, error) {
	data, err := json.Marshal(p.Snapshot())
	if err != nil {
		return "", fmt.Errorf("encode policy snapshot: %w", err)
	}
	return EnvSnapshot + "=" + string(data), nil
}

// FromEnv rebuilds the policy a supervisor handed down and unsets the
// variable. It returns nil when none was set. A snapshot that is not a
// JSON object is an error rather than a fallback to defaults.
func FromEnv() (*Policy, error) {
	raw, ok := os.LookupEnv(EnvSnapshot)
	if !ok {
		return nil, nil
	}
	_ = os.Unsetenv(EnvSnapshot)

	cfg, err := ParseConfig("snapshot.json", []byte(raw))
	if err != nil {
		return nil, fmt.Errorf("inherited policy: %w", err)
	}
	return New(*cfg), nil
}
