package mcp

import (
	"fmt"
	"sort"
	"strings"
)

// MarkdownCatalog renders the {TOOLS} prompt placeholder from a LazyRegistry,
// filtered to whatever tools the caller has enabled. Construction is never
// forced: DiscoverTools' discovery metadata is enough to describe a tool in
// the prompt without paying its load cost.
type MarkdownCatalog struct {
	registry *LazyRegistry
}

// NewMarkdownCatalog wraps registry so its discovery metadata can be
// rendered into chat system prompts.
func NewMarkdownCatalog(registry *LazyRegistry) *MarkdownCatalog {
	return &MarkdownCatalog{registry: registry}
}

// ToolsMarkdown renders a bullet list of the enabled tools, sorted by name.
// enabled with no true entries renders every discovered tool; this mirrors
// the "no explicit selection means no restriction" default the dispatcher
// itself applies when a caller omits tools_enabled.
func (c *MarkdownCatalog) ToolsMarkdown(enabled map[string]bool) string {
	if c == nil || c.registry == nil {
		return ""
	}

	anyEnabled := false
	for _, on := range enabled {
		if on {
			anyEnabled = true
			break
		}
	}

	discovered := c.registry.DiscoverTools("", "")
	sort.Slice(discovered, func(i, j int) bool { return discovered[i].Name < discovered[j].Name })

	var b strings.Builder
	for _, tool := range discovered {
		if anyEnabled && !enabled[tool.Name] {
			continue
		}
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", tool.Name, tool.Category, tool.Description)
	}
	return b.String()
}
