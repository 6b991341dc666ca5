package main

import (
	"github.com/saptiva-copilot/gateway/internal/config"
	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/internal/objectstore"
	"github.com/saptiva-copilot/gateway/internal/ragcache"
	"github.com/saptiva-copilot/gateway/internal/tools"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

// registerTools declares every built-in tool's discovery metadata and lazy
// factory against registry. Factories close over the collaborators each
// tool needs; none run until a caller actually discovers or invokes them.
func registerTools(registry *mcp.LazyRegistry, docCache *ragcache.Cache, objects objectstore.Store, tasks tools.CancellationChecker, cfg *config.Config) {
	registry.RegisterFactory(mcp.DiscoveryMeta{
		Name:        "audit_file",
		Category:    "audit",
		Description: "Runs brand/content audit plugins over cached document text.",
	}, func() (models.Tool, error) {
		return tools.NewAuditFileTool(docCache), nil
	})

	registry.RegisterFactory(mcp.DiscoveryMeta{
		Name:        "viz_tool",
		Category:    "analytics",
		Description: "Renders charts from tabular data as images or HTML.",
	}, func() (models.Tool, error) {
		return tools.NewVizTool(), nil
	})

	registry.RegisterFactory(mcp.DiscoveryMeta{
		Name:        "bank_analytics",
		Category:    "analytics",
		Description: "Proxies dashboard and timeline analytics to the bank-advisor service.",
	}, func() (models.Tool, error) {
		return tools.NewBankAnalyticsTool(cfg.BankAdvisor.BaseURL, cfg.BankAdvisor.Timeout, cfg.BankAdvisor.Enabled), nil
	})

	if objects != nil {
		registry.RegisterFactory(mcp.DiscoveryMeta{
			Name:        "excel_analyzer",
			Category:    "analytics",
			Description: "Inspects and summarizes uploaded spreadsheet workbooks.",
		}, func() (models.Tool, error) {
			return tools.NewExcelAnalyzerTool(objects, tasks), nil
		})
	}
}
