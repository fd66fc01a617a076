package cmdguard

import "strings"

// Equivalents groups command names that do the same thing across
// shells. An allowlist entry for one name admits the others.
type Equivalents [][]string

// DefaultEquivalents covers the common POSIX, cmd.exe and PowerShell
// spellings.
var DefaultEquivalents = Equivalents{
	{"ls", "dir", "Get-ChildItem", "gci"},
	{"cat", "type", "Get-Content", "gc"},
	{"pwd", "Get-Location", "gl"},
	{"rm", "del", "erase", "Remove-Item", "ri"},
	{"cp", "copy", "Copy-Item", "cpi"},
	{"mv", "move", "ren", "Move-Item", "mi"},
	{"echo", "Write-Output", "Write-Host"},
	{"clear", "cls", "Clear-Host"},
}

// Equivalent reports whether a and b name the same command.
func (e Equivalents) Equivalent(a, b string) bool {
	if a == b {
		return true
	}
	for _, group := range e {
		if containsFold(group, a) && containsFold(group, b) {
			return true
		}
	}
	return false
}

func containsFold(group []string, name string) bool {
	for _, g := range group {
		if strings.EqualFold(g, name) {
			return true
		}
	}
	return false
}
