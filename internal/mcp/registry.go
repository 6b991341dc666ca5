// Package mcp implements the MCP Core: tool registry, lazy discovery,
// invocation dispatch pipeline, long-running task management, and result
// caching.
package mcp

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// ErrToolNotFound is returned by Resolve when no tool/version satisfies the
// request.
type ErrToolNotFound struct {
	Tool             string
	Version          string
	AvailableVersions []string
}

func (e *ErrToolNotFound) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("tool %q is not registered", e.Tool)
	}
	return fmt.Sprintf("tool %q has no version satisfying %q (available: %s)", e.Tool, e.Version, strings.Join(e.AvailableVersions, ", "))
}

// Factory lazily constructs a Tool. Used by LazyRegistry so that discovery
// can report tool metadata without paying construction cost until invoked.
type Factory func() (models.Tool, error)

// Registry holds name -> version -> Tool plus the latest registered version
// per name.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string]map[string]models.Tool
	latestVersion map[string]string
	logger        *slog.Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:         map[string]map[string]models.Tool{},
		latestVersion: map[string]string{},
		logger:        logger,
	}
}

// Register adds a tool implementation under its own name/version.
func (r *Registry) Register(tool models.Tool) {
	spec := tool.Spec()
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.tools[spec.Name]
	if !ok {
		versions = map[string]models.Tool{}
		r.tools[spec.Name] = versions
	}
	versions[spec.Version] = tool
	r.latestVersion[spec.Name] = highestVersion(versions)
	r.logger.Info("registered MCP tool", "tool", spec.Name, "version", spec.Version, "capabilities", spec.Capabilities)
}

// Unregister removes a tool. If version is empty, every version is removed.
func (r *Registry) Unregister(name, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.tools[name]
	if !ok {
		return
	}
	if version == "" {
		delete(r.tools, name)
		delete(r.latestVersion, name)
		return
	}
	delete(versions, version)
	if len(versions) == 0 {
		delete(r.tools, name)
		delete(r.latestVersion, name)
		return
	}
	if r.latestVersion[name] == version {
		r.latestVersion[name] = highestVersion(versions)
	}
}

// ListTools returns every registered tool's spec, sorted by (name, version).
func (r *Registry) ListTools() []models.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]models.ToolSpec, 0)
	for _, versions := range r.tools {
		for _, tool := range versions {
			specs = append(specs, tool.Spec())
		}
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Name != specs[j].Name {
			return specs[i].Name < specs[j].Name
		}
		return specs[i].Version < specs[j].Version
	})
	return specs
}

// Resolve returns the tool implementation for (name, versionConstraint).
// An empty constraint resolves to the latest registered version; a semver
// constraint (exact, `^`, `~`, range) resolves to the highest satisfying
// version.
func (r *Registry) Resolve(name, versionConstraint string) (models.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.tools[name]
	if !ok || len(versions) == 0 {
		return nil, &ErrToolNotFound{Tool: name}
	}

	if versionConstraint == "" {
		latest := r.latestVersion[name]
		if tool, ok := versions[latest]; ok {
			return tool, nil
		}
		return nil, &ErrToolNotFound{Tool: name, AvailableVersions: versionKeys(versions)}
	}

	if tool, ok := versions[versionConstraint]; ok {
		return tool, nil
	}

	constraint, err := semver.NewConstraint(versionConstraint)
	if err != nil {
		return nil, &ErrToolNotFound{Tool: name, Version: versionConstraint, AvailableVersions: versionKeys(versions)}
	}

	var best *semver.Version
	var bestTool models.Tool
	for v, tool := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		if !constraint.Check(sv) {
			continue
		}
		if best == nil || sv.GreaterThan(best) {
			best = sv
			bestTool = tool
		}
	}
	if best == nil {
		return nil, &ErrToolNotFound{Tool: name, Version: versionConstraint, AvailableVersions: versionKeys(versions)}
	}
	return bestTool, nil
}

func versionKeys(versions map[string]models.Tool) []string {
	keys := make([]string, 0, len(versions))
	for k := range versions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func highestVersion(versions map[string]models.Tool) string {
	keys := versionKeys(versions)
	if len(keys) == 0 {
		return ""
	}
	sort.Slice(keys, func(i, j int) bool {
		vi, erri := semver.NewVersion(keys[i])
		vj, errj := semver.NewVersion(keys[j])
		if erri == nil && errj == nil {
			return vi.LessThan(vj)
		}
		return keys[i] < keys[j]
	})
	return keys[len(keys)-1]
}

// LazyRegistry discovers tool metadata without constructing tools, and only
// pays construction cost (via the registered Factory) on first load/spec
// access/invoke.
type LazyRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	meta      map[string]DiscoveryMeta
	loaded    map[string]models.Tool
	registry  *Registry
	logger    *slog.Logger
}

// DiscoveryMeta is the minimal metadata returned by DiscoverTools, cheap
// enough to compute without constructing the underlying tool.
type DiscoveryMeta struct {
	Name        string
	Category    string
	Description string
}

// NewLazyRegistry builds an empty LazyRegistry backed by an inner Registry
// for resolved (constructed) tools.
func NewLazyRegistry(logger *slog.Logger) *LazyRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &LazyRegistry{
		factories: map[string]Factory{},
		meta:      map[string]DiscoveryMeta{},
		loaded:    map[string]models.Tool{},
		registry:  NewRegistry(logger),
		logger:    logger,
	}
}

// RegisterFactory declares a tool without constructing it.
func (l *LazyRegistry) RegisterFactory(meta DiscoveryMeta, factory Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[meta.Name] = factory
	l.meta[meta.Name] = meta
}

// DiscoverTools lists known tools (optionally filtered by category or a
// case-insensitive substring search against name/description) without
// forcing construction.
func (l *LazyRegistry) DiscoverTools(category, search string) []DiscoveredTool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	search = strings.ToLower(search)
	out := make([]DiscoveredTool, 0, len(l.meta))
	for name, meta := range l.meta {
		if category != "" && meta.Category != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(name), search) && !strings.Contains(strings.ToLower(meta.Description), search) {
			continue
		}
		_, loaded := l.loaded[name]
		out = append(out, DiscoveredTool{
			Name:        meta.Name,
			Category:    meta.Category,
			Description: meta.Description,
			Loaded:      loaded,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DiscoveredTool is the minimal discovery-time projection of a lazily
// registered tool.
type DiscoveredTool struct {
	Name        string
	Category    string
	Description string
	Loaded      bool
}

// GetToolSpec forces construction (if not already loaded) and returns the
// full spec.
func (l *LazyRegistry) GetToolSpec(name string) (models.ToolSpec, error) {
	tool, err := l.ensureLoaded(name)
	if err != nil {
		return models.ToolSpec{}, err
	}
	return tool.Spec(), nil
}

// Resolve forces construction and resolves the tool via the inner Registry,
// which is how multiple versions of a lazily-loaded tool are handled.
func (l *LazyRegistry) Resolve(name, versionConstraint string) (models.Tool, error) {
	if _, err := l.ensureLoaded(name); err != nil {
		return nil, err
	}
	return l.registry.Resolve(name, versionConstraint)
}

// UnloadTool frees the cached instance for name, keeping its factory
// registered so a later call reconstructs it.
func (l *LazyRegistry) UnloadTool(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tool, ok := l.loaded[name]; ok {
		l.registry.Unregister(tool.Spec().Name, tool.Spec().Version)
		delete(l.loaded, name)
	}
}

func (l *LazyRegistry) ensureLoaded(name string) (models.Tool, error) {
	l.mu.RLock()
	tool, ok := l.loaded[name]
	l.mu.RUnlock()
	if ok {
		return tool, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if tool, ok := l.loaded[name]; ok {
		return tool, nil
	}

	factory, ok := l.factories[name]
	if !ok {
		return nil, &ErrToolNotFound{Tool: name}
	}
	tool, err := factory()
	if err != nil {
		return nil, fmt.Errorf("mcp: construct tool %q: %w", name, err)
	}
	l.loaded[name] = tool
	l.registry.Register(tool)
	return tool, nil
}

// RegistryStats reports the lazy registry's memory efficiency.
type RegistryStats struct {
	ToolsDiscovered  int     `json:"tools_discovered"`
	ToolsLoaded      int     `json:"tools_loaded"`
	MemoryEfficiency float64 `json:"memory_efficiency"`
}

// GetRegistryStats computes (discovered - loaded) / discovered.
func (l *LazyRegistry) GetRegistryStats() RegistryStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	discovered := len(l.meta)
	loaded := len(l.loaded)
	var efficiency float64
	if discovered > 0 {
		efficiency = float64(discovered-loaded) / float64(discovered)
	}
	return RegistryStats{ToolsDiscovered: discovered, ToolsLoaded: loaded, MemoryEfficiency: efficiency}
}
