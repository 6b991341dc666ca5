package httpapi

import (
	"github.com/saptiva-copilot/gateway/internal/config"
	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// baseScopes are granted to every authenticated caller: the day-to-day tool
// and task surface, excluding admin operations.
var baseScopes = []string{
	mcp.ScopeToolsAudit,
	mcp.ScopeToolsAnalytics,
	mcp.ScopeToolsViz,
	mcp.ScopeToolsResearch,
	mcp.ScopeTasksCreate,
	mcp.ScopeTasksRead,
	mcp.ScopeTasksCancel,
}

// scopesFor derives a user's MCP authorization scopes. Users named in the
// admin allow-list additionally receive every admin scope.
func scopesFor(cfg *config.Config, user *models.User) map[string]struct{} {
	scopes := make(map[string]struct{}, len(baseScopes)+1)
	for _, s := range baseScopes {
		scopes[s] = struct{}{}
	}
	if isAdmin(cfg, user) {
		scopes[mcp.ScopeAdminAll] = struct{}{}
		scopes[mcp.ScopeToolsAll] = struct{}{}
	}
	return scopes
}

func isAdmin(cfg *config.Config, user *models.User) bool {
	if cfg == nil || user == nil {
		return false
	}
	for _, name := range cfg.MCP.AdminUsers {
		if name == user.Username {
			return true
		}
	}
	return false
}
