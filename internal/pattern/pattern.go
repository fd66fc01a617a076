// Package pattern turns an "allow always" answer into an allowlist entry
// that covers the approved call and its obvious siblings.
package pattern

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/toolgate/internal/cmdguard"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
)

// ErrNothingToApply is returned by Apply when the generated pattern has
// neither a regex nor a command prefix.
var ErrNothingToApply = errors.New("generated pattern is empty")

// Generated is a proposed allowlist entry.
type Generated struct {
	Regex             string   `json:"regex,omitempty"`
	Prefix            []string `json:"prefix,omitempty"`
	Exact             bool     `json:"exact"`
	NeedsConfirmation bool     `json:"needs_confirmation"`
	Examples          []string `json:"examples,omitempty"`
}

// String renders the entry the way it is reported back to a parent
// process: the regex, or the space-joined prefix.
func (g *Generated) String() string {
	if len(g.Prefix) > 0 {
		return strings.Join(g.Prefix, " ")
	}
	return g.Regex
}

// Options tunes generation.
type Options struct {
	// Shell selects the tokenizer for shell commands.
	Shell cmdguard.ShellType
	// Target replaces the raw arguments for tools without a
	// category-specific rule. It should be what the policy matches on.
	Target string
}

// Generate builds the entry for call using the host's shell.
func Generate(call model.ToolCall, cat model.Category) (*Generated, error) {
	return GenerateWith(call, cat, Options{Shell: cmdguard.DetectShellType()})
}

// GenerateWith builds the entry for call.
func GenerateWith(call model.ToolCall, cat model.Category, opts Options) (*Generated, error) {
	switch {
	case cat == model.Shell:
		cmd := call.Command()
		if cmd == "" {
			return nil, fmt.Errorf("%s: missing command argument", call.Name)
		}
		return ForCommand(cmd, opts.Shell)
	case cat == model.Network:
		u := call.URL()
		if u == "" {
			return nil, fmt.Errorf("%s: missing url argument", call.Name)
		}
		return ForURL(u)
	case cat.IsFile():
		p := call.Path()
		if p == "" {
			return nil, fmt.Errorf("%s: missing path argument", call.Name)
		}
		return ForPath(p), nil
	}

	target := opts.Target
	if target == "" {
		target = call.Arguments
	}
	g := &Generated{Exact: true}
	if target != "" {
		g.Regex = "^" + Escape(target) + "$"
	}
	return g, nil
}

// ForPath generalizes a file path to its directory and extension.
// Top-level and /tmp paths stay exact.
func ForPath(path string) *Generated {
	if isRootPath(path) || strings.HasPrefix(path, "/tmp") {
		return exact(path)
	}

	ext := extension(path)
	if ext == "" {
		return exact(path)
	}

	dir := directory(path)
	if dir == "/" {
		dir = ""
	}
	base := path[strings.LastIndexByte(path, '/')+1:]
	var regex string
	if us := strings.IndexByte(base, '_'); us >= 0 && us < len(base)-len(ext) {
		regex = fmt.Sprintf("^%s/%s.*%s$", Escape(dir), Escape(base[:us+1]), Escape(ext))
	} else {
		regex = fmt.Sprintf("^%s/.*%s$", Escape(dir), Escape(ext))
	}
	return &Generated{
		Regex:             regex,
		NeedsConfirmation: true,
		Examples: []string{
			dir + "/foo" + ext,
			dir + "/bar" + ext,
			dir + "/other" + ext,
		},
	}
}

// ForCommand proposes a one- or two-token command prefix. Commands that
// are unsafe to match are approved exactly, with nothing to store.
func ForCommand(command string, shell cmdguard.ShellType) (*Generated, error) {
	parsed, err := cmdguard.Parse(command, shell)
	if err != nil {
		return nil, err
	}
	if !parsed.SafeForMatching() {
		return &Generated{Exact: true}, nil
	}
	n := len(parsed.Tokens)
	if n == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if n > 2 {
		n = 2
	}
	prefix := append([]string(nil), parsed.Tokens[:n]...)
	g := &Generated{Prefix: prefix}
	if len(parsed.Tokens) <= n {
		g.Exact = true
		return g, nil
	}

	// Only a two-token prefix of a longer command gets here.
	head := prefix[0] + " " + prefix[1]
	g.NeedsConfirmation = true
	g.Examples = []string{
		head + " <any args>",
		head + " -v",
		head + " --all",
	}
	return g, nil
}

// ForURL allows every path on the URL's scheme and host.
func ForURL(u string) (*Generated, error) {
	i := strings.Index(u, "://")
	if i < 0 {
		return exact(u), nil
	}
	scheme := u[:i]
	rest := u[i+3:]
	end := strings.IndexAny(rest, "/:?")
	if end < 0 {
		end = len(rest)
	}
	host := rest[:end]
	if host == "" {
		return nil, fmt.Errorf("url %q has no host", u)
	}
	base := u[:i+3+end]
	return &Generated{
		Regex:             fmt.Sprintf("^%s://%s(/|$)", Escape(scheme), Escape(host)),
		NeedsConfirmation: true,
		Examples:          []string{base + "/any/path", base + "/api/v1", base},
	}, nil
}

// Apply stores g in p under tool: a prefix as a shell entry for any
// shell, otherwise the regex.
func Apply(p *policy.Policy, tool string, g *Generated) error {
	if g == nil {
		return ErrNothingToApply
	}
	if len(g.Prefix) > 0 {
		return p.AddShell(g.Prefix, cmdguard.ShellUnknown)
	}
	if g.Regex != "" {
		return p.AddRegex(tool, g.Regex)
	}
	return ErrNothingToApply
}

const regexMeta = `\^$.|?*+()[]{}`

// Escape quotes regex metacharacters.
func Escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(regexMeta, s[i]) >= 0 {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func exact(s string) *Generated {
	return &Generated{Regex: "^" + Escape(s) + "$", Exact: true}
}

func isRootPath(path string) bool {
	path = strings.TrimPrefix(path, "./")
	return !strings.Contains(path, "/")
}

func directory(path string) string {
	i := strings.LastIndexByte(path, '/')
	switch {
	case i < 0:
		return "."
	case i == 0:
		return "/"
	}
	return path[:i]
}

// extension returns the final ".ext" of the base name; dotfiles have none.
func extension(path string) string {
	base := path[strings.LastIndexByte(path, '/')+1:]
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 {
		return ""
	}
	return base[dot:]
}
