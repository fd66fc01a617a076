package policy

import (
	"bufio"
	"strings"

	"github.com/ppiankov/toolgate/internal/model"
)

// ToolMeta is what a dynamic tool declares about its own gating.
type ToolMeta struct {
	Category *model.Category
	MatchArg string
}

// ToolRegistry is implemented by the host of dynamically loaded tools.
type ToolRegistry interface {
	Lookup(tool string) (ToolMeta, bool)
}

// StaticRegistry is a fixed map of tool metadata.
type StaticRegistry map[string]ToolMeta

// Lookup implements ToolRegistry.
func (r StaticRegistry) Lookup(tool string) (ToolMeta, bool) {
	m, ok := r[tool]
	return m, ok
}

// ParseDirectives reads "Gate: <category>" and "Match: <arg>" lines from
// a tool docstring. ok is false when neither directive is present.
// An unknown category is ignored.
func ParseDirectives(doc string) (meta ToolMeta, ok bool) {
	sc := bufio.NewScanner(strings.NewReader(doc))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Gate:"):
			if meta.Category != nil {
				continue
			}
			cat, err := model.ParseCategory(strings.TrimSpace(line[len("Gate:"):]))
			if err != nil {
				continue
			}
			meta.Category = &cat
			ok = true
		case strings.HasPrefix(line, "Match:"):
			if meta.MatchArg != "" {
				continue
			}
			if arg := strings.TrimSpace(line[len("Match:"):]); arg != "" {
				meta.MatchArg = arg
				ok = true
			}
		}
	}
	return meta, ok
}
