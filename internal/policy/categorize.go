package policy

import (
	"strings"

	"github.com/ppiankov/toolgate/internal/model"
)

var staticCategories = map[string]model.Category{
	"remember":             model.Memory,
	"recall_memories":      model.Memory,
	"forget_memory":        model.Memory,
	"todo":                 model.Memory,
	"process_pdf_document": model.FileRead,
	"read_file":            model.FileRead,
	"file_info":            model.FileRead,
	"list_dir":             model.FileRead,
	"search_files":         model.FileRead,
	"python":               model.Dynamic,
	"subagent":             model.Subagent,
	"subagent_status":      model.Subagent,
	"shell":                model.Shell,
	"write_file":           model.FileWrite,
	"append_file":          model.FileWrite,
	"apply_delta":          model.FileWrite,
	"web_fetch":            model.Network,
}

// Categorize maps a tool name to its category. A registry declaration
// wins; unknown tools are dynamic.
func (p *Policy) Categorize(tool string) model.Category {
	if meta, ok := p.lookup(tool); ok && meta.Category != nil {
		return *meta.Category
	}
	return StaticCategory(tool)
}

// StaticCategory applies the built-in name rules only.
func StaticCategory(tool string) model.Category {
	switch {
	case strings.HasPrefix(tool, "vector_db_"):
		return model.Memory
	case strings.HasPrefix(tool, "mcp_"):
		return model.MCP
	}
	if c, ok := staticCategories[tool]; ok {
		return c
	}
	return model.Dynamic
}

func (p *Policy) lookup(tool string) (ToolMeta, bool) {
	p.mu.RLock()
	r := p.registry
	p.mu.RUnlock()
	if r == nil {
		return ToolMeta{}, false
	}
	return r.Lookup(tool)
}
