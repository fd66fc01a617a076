// Package cmdguard tokenizes shell commands and flags the constructs that
// make a command unsafe to match against an allowlist prefix.
package cmdguard

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// MaxCommandLength bounds the input accepted by Parse.
const MaxCommandLength = 64 * 1024

// ShellType selects the tokenizer rules.
type ShellType int

const (
	ShellUnknown ShellType = iota
	ShellPOSIX
	ShellCmd
	ShellPowerShell
)

func (s ShellType) String() string {
	switch s {
	case ShellPOSIX:
		return "posix"
	case ShellCmd:
		return "cmd"
	case ShellPowerShell:
		return "powershell"
	default:
		return "unknown"
	}
}

// ParseShellType maps a shell name to a ShellType. Unrecognized names
// yield ShellUnknown.
func ParseShellType(name string) ShellType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "posix", "bash", "sh", "zsh", "dash":
		return ShellPOSIX
	case "cmd", "cmd.exe":
		return ShellCmd
	case "powershell", "pwsh", "ps":
		return ShellPowerShell
	default:
		return ShellUnknown
	}
}

// DetectShellType guesses the shell that will run commands on this host.
func DetectShellType() ShellType {
	if runtime.GOOS == "windows" {
		if os.Getenv("PSModulePath") != "" {
			return ShellPowerShell
		}
		if os.Getenv("COMSPEC") != "" {
			return ShellCmd
		}
		return ShellPowerShell
	}
	shell := strings.ToLower(os.Getenv("SHELL"))
	if strings.Contains(shell, "pwsh") || strings.Contains(shell, "powershell") {
		return ShellPowerShell
	}
	return ShellPOSIX
}

// Parsed is the tokenized form of a command.
type Parsed struct {
	Tokens      []string
	ShellType   ShellType
	HasChain    bool
	HasPipe     bool
	HasSubshell bool
	HasRedirect bool
	IsDangerous bool
}

// Parse tokenizes command under the rules of shell. ShellUnknown is
// parsed as POSIX.
func Parse(command string, shell ShellType) (*Parsed, error) {
	if len(command) > MaxCommandLength {
		return nil, fmt.Errorf("command too long: %d bytes (max %d)", len(command), MaxCommandLength)
	}

	p := &Parsed{ShellType: shell}
	switch shell {
	case ShellCmd:
		parseCmd(command, p)
	case ShellPowerShell:
		parsePowerShell(command, p)
	default:
		parsePOSIX(command, p)
	}

	if hasNonASCII(command) {
		p.HasChain = true
	}
	p.IsDangerous = isDangerous(command)
	if shell == ShellPowerShell && isDangerousPowerShell(command) {
		p.IsDangerous = true
	}
	return p, nil
}

// SafeForMatching reports whether the command is a single plain
// invocation that may be compared against allowlist prefixes.
func (p *Parsed) SafeForMatching() bool {
	return !p.HasChain && !p.HasPipe && !p.HasSubshell && !p.HasRedirect && !p.IsDangerous
}

// MatchesPrefix reports whether prefix is a literal token prefix of the
// command. Unsafe commands never match.
func (p *Parsed) MatchesPrefix(prefix []string) bool {
	if !p.SafeForMatching() || len(prefix) == 0 || len(prefix) > len(p.Tokens) {
		return false
	}
	for i, tok := range prefix {
		if p.Tokens[i] != tok {
			return false
		}
	}
	return true
}

func hasNonASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return true
		}
	}
	return false
}

// tokenBuilder accumulates one token for the hand-written scanners.
// quoted records that the token contained quotes, so "" still yields an
// empty token.
type tokenBuilder struct {
	buf    strings.Builder
	quoted bool
}

func (t *tokenBuilder) add(c byte) { t.buf.WriteByte(c) }

// flush emits the pending token, including an empty quoted one.
func (t *tokenBuilder) flush(p *Parsed) {
	if t.buf.Len() > 0 || t.quoted {
		p.Tokens = append(p.Tokens, t.buf.String())
	}
	t.buf.Reset()
	t.quoted = false
}

// end emits the pending token only when it has content. Used at
// metacharacters.
func (t *tokenBuilder) end(p *Parsed) {
	if t.buf.Len() > 0 {
		p.Tokens = append(p.Tokens, t.buf.String())
	}
	t.buf.Reset()
	t.quoted = false
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func peek(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}
