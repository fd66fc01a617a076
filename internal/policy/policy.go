// Package policy holds the approval gate policy: category actions, the
// regex and shell-prefix allowlists, and the decision engine over them.
package policy

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/ppiankov/toolgate/internal/cmdguard"
	"github.com/ppiankov/toolgate/internal/logger"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/ratelimit"
)

type regexEntry struct {
	tool    string
	pattern string
	re      *regexp.Regexp // nil when the pattern failed to compile
}

type shellEntry struct {
	tokens []string
	shell  cmdguard.ShellType
}

// Policy is the mutable policy store. Safe for concurrent use.
type Policy struct {
	mu          sync.RWMutex
	enabled     bool
	actions     [model.CategoryCount]model.Action
	regexes     []regexEntry
	shells      []shellEntry
	staticRegex int
	staticShell int
	equivalents cmdguard.Equivalents
	shellType   cmdguard.ShellType
	interactive bool
	registry    ToolRegistry
	cliAllow    []string

	limiter *ratelimit.Tracker
	log     *logger.Entry
}

// Default returns a policy with gates enabled, the built-in category
// actions and an empty allowlist.
func Default() *Policy {
	return New(*DefaultConfig())
}

// New builds a policy from cfg. Invalid category names, actions and
// allowlist entries are skipped with a warning. The entries loaded here
// are the static entries inherited by Derive.
func New(cfg Config) *Policy {
	p := &Policy{
		enabled:     true,
		actions:     defaultActions,
		equivalents: cmdguard.DefaultEquivalents,
		shellType:   cmdguard.DetectShellType(),
		limiter:     ratelimit.NewTracker(),
		log:         logger.Named("policy"),
	}
	p.loadLocked(cfg)
	return p
}

// loadLocked applies cfg on top of the current state and records the
// static entry counts.
func (p *Policy) loadLocked(cfg Config) {
	gc := cfg.ApprovalGates
	if gc.Enabled != nil {
		p.enabled = *gc.Enabled
	}
	for name, act := range gc.Categories {
		cat, err := model.ParseCategory(name)
		if err != nil {
			p.log.Warnf("skipping category: %v", err)
			continue
		}
		action, err := model.ParseAction(act)
		if err != nil {
			p.log.Warnf("skipping category %s: %v", name, err)
			continue
		}
		p.actions[cat] = action
	}
	if len(gc.Equivalents) > 0 {
		p.equivalents = cmdguard.Equivalents(gc.Equivalents)
	}
	if gc.Shell != "" {
		if st := cmdguard.ParseShellType(gc.Shell); st != cmdguard.ShellUnknown {
			p.shellType = st
		}
	}

	for i, e := range gc.Allowlist {
		if e.Tool == "" {
			p.log.WithField("index", i).Warn("skipping allowlist entry without tool")
			continue
		}
		if e.Command != nil {
			tokens, ok := stringTokens(e.Command)
			if !ok {
				p.log.WithField("index", i).Warn("skipping shell entry with empty or non-string command")
				continue
			}
			p.shells = append(p.shells, shellEntry{tokens: tokens, shell: cmdguard.ParseShellType(e.Shell)})
			continue
		}
		if e.Pattern == "" {
			p.log.WithField("index", i).Warn("skipping allowlist entry without pattern")
			continue
		}
		if _, err := p.addRegexLocked(e.Tool, e.Pattern); err != nil {
			p.log.WithField("tool", e.Tool).Warnf("allowlist pattern will never match: %v", err)
		}
	}
	p.staticRegex = len(p.regexes)
	p.staticShell = len(p.shells)
}

func stringTokens(raw []any) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func (p *Policy) addRegexLocked(tool, pattern string) (*regexEntry, error) {
	re, err := regexp.Compile(pattern)
	p.regexes = append(p.regexes, regexEntry{tool: tool, pattern: pattern, re: re})
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return &p.regexes[len(p.regexes)-1], nil
}

// Enabled reports whether gates are active.
func (p *Policy) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// Action returns the configured action for cat. Out-of-range categories
// are gated.
func (p *Policy) Action(cat model.Category) model.Action {
	if cat < 0 || int(cat) >= model.CategoryCount {
		return model.Gate
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.actions[cat]
}

// ShellType is the shell used to parse commands for matching.
func (p *Policy) ShellType() cmdguard.ShellType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shellType
}

// SetShellType overrides the detected shell.
func (p *Policy) SetShellType(st cmdguard.ShellType) {
	p.mu.Lock()
	p.shellType = st
	p.mu.Unlock()
}

// SetRegistry installs the dynamic-tool registry consulted by Categorize.
func (p *Policy) SetRegistry(r ToolRegistry) {
	p.mu.Lock()
	p.registry = r
	p.mu.Unlock()
}

// Limiter returns the denial tracker shared by everything gating
// through this policy.
func (p *Policy) Limiter() *ratelimit.Tracker { return p.limiter }

// StaticCounts returns the number of regex and shell entries that came
// from configuration.
func (p *Policy) StaticCounts() (regex, shell int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.staticRegex, p.staticShell
}

// EntryCounts returns the total number of regex and shell entries.
func (p *Policy) EntryCounts() (regex, shell int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.regexes), len(p.shells)
}

// AddRegex appends a session regex entry. An invalid pattern is still
// stored, never matches, and is reported.
func (p *Policy) AddRegex(tool, pattern string) error {
	if tool == "" || pattern == "" {
		return fmt.Errorf("allowlist entry needs a tool and a pattern")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.addRegexLocked(tool, pattern)
	return err
}

// AddShell appends a session shell-prefix entry.
func (p *Policy) AddShell(tokens []string, shell cmdguard.ShellType) error {
	if len(tokens) == 0 {
		return fmt.Errorf("shell allowlist entry needs at least one token")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shells = append(p.shells, shellEntry{tokens: append([]string(nil), tokens...), shell: shell})
	return nil
}

// SetCategoryAction overrides the action for one category.
func (p *Policy) SetCategoryAction(cat model.Category, action model.Action) error {
	if cat < 0 || int(cat) >= model.CategoryCount {
		return fmt.Errorf("invalid category %d", cat)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions[cat] = action
	return nil
}

// EnableYolo disables all gates.
func (p *Policy) EnableYolo() {
	p.mu.Lock()
	p.enabled = false
	p.mu.Unlock()
}

// AddCLIAllow parses a "tool:spec" override. For the shell tool spec is a
// comma-separated command prefix; for any other tool it is a regex.
// Overrides join the static block, so Derive and Snapshot hand them to
// subagents and a reload keeps them. Adding the same spec twice is a no-op.
func (p *Policy) AddCLIAllow(spec string) error {
	tool, args, ok := strings.Cut(spec, ":")
	if !ok {
		return fmt.Errorf("invalid allow spec %q: expected tool:args", spec)
	}
	if tool == "" {
		return fmt.Errorf("invalid allow spec %q: empty tool name", spec)
	}
	if args == "" {
		return fmt.Errorf("invalid allow spec %q: empty arguments", spec)
	}
	if tool == "shell" {
		var tokens []string
		for _, t := range strings.Split(args, ",") {
			if t != "" {
				tokens = append(tokens, t)
			}
		}
		if len(tokens) == 0 {
			return fmt.Errorf("invalid allow spec %q: no command tokens", spec)
		}
	} else if _, err := regexp.Compile(args); err != nil {
		return fmt.Errorf("invalid allow spec %q: %w", spec, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.Contains(p.cliAllow, spec) {
		return nil
	}
	p.cliAllow = append(p.cliAllow, spec)
	p.insertCLILocked(spec)
	return nil
}

// insertCLILocked adds a validated override at the end of the static
// block, ahead of any session entries.
func (p *Policy) insertCLILocked(spec string) {
	tool, args, _ := strings.Cut(spec, ":")
	if tool == "shell" {
		var tokens []string
		for _, t := range strings.Split(args, ",") {
			if t != "" {
				tokens = append(tokens, t)
			}
		}
		p.shells = slices.Insert(p.shells, p.staticShell, shellEntry{tokens: tokens, shell: cmdguard.ShellUnknown})
		p.staticShell++
		return
	}
	p.regexes = slices.Insert(p.regexes, p.staticRegex, regexEntry{tool: tool, pattern: args, re: regexp.MustCompile(args)})
	p.staticRegex++
}

// SetInteractive records whether a human can be prompted.
func (p *Policy) SetInteractive(v bool) {
	p.mu.Lock()
	p.interactive = v
	p.mu.Unlock()
}

// Interactive reports whether a human can be prompted.
func (p *Policy) Interactive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interactive
}

// DetectInteractive sets the interactive flag from whether stdin is a
// terminal.
func (p *Policy) DetectInteractive() bool {
	fd := os.Stdin.Fd()
	v := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	p.SetInteractive(v)
	return v
}

// Derive returns the policy handed to a subagent: the same categories,
// equivalents and shell, and only the static allowlist entries. Session
// approvals stay with the parent. The child starts with a fresh denial
// tracker and is never interactive.
func (p *Policy) Derive() *Policy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	child := &Policy{
		enabled:     p.enabled,
		actions:     p.actions,
		equivalents: p.equivalents,
		shellType:   p.shellType,
		registry:    p.registry,
		cliAllow:    slices.Clone(p.cliAllow),
		limiter:     ratelimit.NewTracker(),
		log:         logger.Named("policy"),
	}
	for _, e := range p.regexes[:p.staticRegex] {
		_, _ = child.addRegexLocked(e.tool, e.pattern)
	}
	for _, e := range p.shells[:p.staticShell] {
		child.shells = append(child.shells, shellEntry{tokens: append([]string(nil), e.tokens...), shell: e.shell})
	}
	child.staticRegex = len(child.regexes)
	child.staticShell = len(child.shells)
	return child
}

// ReloadStatic replaces the configuration-derived state with cfg. Session
// entries survive and stay ordered after the new static block, which
// ends with the command-line overrides.
func (p *Policy) ReloadStatic(cfg Config) {
	fresh := New(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	sessionRegex := append([]regexEntry(nil), p.regexes[p.staticRegex:]...)
	sessionShell := append([]shellEntry(nil), p.shells[p.staticShell:]...)

	p.enabled = fresh.enabled
	p.actions = fresh.actions
	p.equivalents = fresh.equivalents
	if cfg.ApprovalGates.Shell != "" {
		p.shellType = fresh.shellType
	}
	p.regexes = append(fresh.regexes, sessionRegex...)
	p.shells = append(fresh.shells, sessionShell...)
	p.staticRegex = fresh.staticRegex
	p.staticShell = fresh.staticShell
	for _, spec := range p.cliAllow {
		p.insertCLILocked(spec)
	}
}
