package policy

import (
	"github.com/ppiankov/toolgate/internal/cmdguard"
	"github.com/ppiankov/toolgate/internal/model"
)

// Decide is the pure decision engine. It never prompts and never
// touches the denial tracker.
func (p *Policy) Decide(call model.ToolCall) model.Decision {
	if !p.Enabled() {
		return model.Allowed
	}
	switch p.Action(p.Categorize(call.Name)) {
	case model.Allow:
		return model.Allowed
	case model.Deny:
		return model.Denied
	}
	if p.Matches(call) {
		return model.Allowed
	}
	return model.RequiresApproval
}

// Matches reports whether an allowlist entry admits call.
func (p *Policy) Matches(call model.ToolCall) bool {
	cat := p.Categorize(call.Name)
	if cat == model.Shell {
		return p.matchShell(call.Command())
	}
	target, ok := p.MatchTarget(call, cat)
	if !ok {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.regexes {
		if e.re == nil || e.tool != call.Name {
			continue
		}
		if e.re.MatchString(target) {
			return true
		}
	}
	return false
}

// MatchTarget picks the string regex entries are tested against: a
// declared Match argument, the path for file tools, the url for network
// tools, or the raw arguments.
func (p *Policy) MatchTarget(call model.ToolCall, cat model.Category) (string, bool) {
	if meta, ok := p.lookup(call.Name); ok && meta.MatchArg != "" {
		v := call.StringArg(meta.MatchArg)
		return v, v != ""
	}
	switch {
	case cat.IsFile():
		if path := call.Path(); path != "" {
			return path, true
		}
	case cat == model.Network:
		if u := call.URL(); u != "" {
			return u, true
		}
	}
	return call.Arguments, call.Arguments != ""
}

func (p *Policy) matchShell(command string) bool {
	if command == "" {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	parsed, err := cmdguard.Parse(command, p.shellType)
	if err != nil || !parsed.SafeForMatching() || len(parsed.Tokens) == 0 {
		return false
	}
	for _, e := range p.shells {
		if e.shell != cmdguard.ShellUnknown && e.shell != parsed.ShellType {
			continue
		}
		if parsed.MatchesPrefix(e.tokens) {
			return true
		}
		if e.shell == cmdguard.ShellUnknown && p.equivalentPrefix(e.tokens, parsed.Tokens) {
			return true
		}
	}
	return false
}

// equivalentPrefix matches the first token by command equivalence and
// the rest literally.
func (p *Policy) equivalentPrefix(prefix, tokens []string) bool {
	if len(prefix) == 0 || len(prefix) > len(tokens) {
		return false
	}
	if !p.equivalents.Equivalent(prefix[0], tokens[0]) {
		return false
	}
	for i := 1; i < len(prefix); i++ {
		if prefix[i] != tokens[i] {
			return false
		}
	}
	return true
}
