package cmdguard

import "strings"

var destructivePatterns = []string{
	"rm -rf", "rm -fr", "rm -r -f", "rm -f -r",
	"chmod 777", "chmod -R",
	":(){ :|:& };:",
	"of=/dev/sd", "of=/dev/hd", "of=/dev/nvme",
	"> /dev/sd", "> /dev/hd", "> /dev/nvme",
}

var pipeToShell = []string{"| sh", "| bash", "| zsh", "|sh", "|bash", "|zsh"}

// powerShellPatterns are matched case-insensitively.
var powerShellPatterns = []string{
	"invoke-expression", "invoke-command", "start-process",
	"invoke-webrequest", "invoke-restmethod",
	"iex", "icm", "iwr", "irm",
	"-encodedcommand", "-enc",
	"downloadstring", "downloadfile",
}

// isDangerous checks the raw command text, so quoting cannot hide a
// pattern from it.
func isDangerous(cmd string) bool {
	for _, p := range destructivePatterns {
		if strings.Contains(cmd, p) {
			return true
		}
	}
	if strings.Contains(cmd, "curl") || strings.Contains(cmd, "wget") {
		for _, p := range pipeToShell {
			if strings.Contains(cmd, p) {
				return true
			}
		}
	}
	if strings.Contains(cmd, "dd ") && strings.Contains(cmd, "of=/dev/") {
		return true
	}
	return false
}

func isDangerousPowerShell(cmd string) bool {
	lower := strings.ToLower(cmd)
	for _, p := range powerShellPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
