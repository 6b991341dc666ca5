// Package prompts implements the Prompt Registry: loading per-model prompt
// profiles from a declarative YAML file and resolving a concrete system
// prompt plus generation params for a (model, channel, tools_markdown)
// triple, with a stable fingerprint for telemetry and cache discrimination.
package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saptiva-copilot/gateway/pkg/models"
)

// channelMaxTokens is the channel -> max_tokens override table. Unknown
// channels fall back to the "chat" budget.
var channelMaxTokens = map[string]int{
	"chat":    1200,
	"report":  3500,
	"title":   64,
	"summary": 256,
	"code":    2048,
}

const defaultChannelMaxTokens = 1200

const toolsBlockPrefix = "Herramientas disponibles\n{TOOLS}"
const noToolsSentence = "No hay herramientas externas disponibles en este momento."

// Registry is a loaded, resolvable set of per-model prompt entries.
type Registry struct {
	logger       *slog.Logger
	Version      string
	CopilotName  string
	OrgName      string
	Models       map[string]models.PromptEntry
}

// rawFile mirrors the registry file's declarative shape.
type rawFile struct {
	Version     string                    `yaml:"version"`
	CopilotName string                    `yaml:"copilot_name"`
	OrgName     string                    `yaml:"org_name"`
	Models      map[string]rawModelConfig `yaml:"models"`
}

type rawModelConfig struct {
	SystemBase string             `yaml:"system_base"`
	Addendum   string             `yaml:"addendum"`
	Params     rawModelParamsInput `yaml:"params"`
}

// rawModelParamsInput carries optional params with defaults matching the
// reference implementation's Pydantic field defaults.
type rawModelParamsInput struct {
	Temperature      *float64 `yaml:"temperature"`
	TopP             *float64 `yaml:"top_p"`
	PresencePenalty  *float64 `yaml:"presence_penalty"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty"`
	MaxTokens        *int     `yaml:"max_tokens"`
}

func (r rawModelParamsInput) resolve() models.ModelParams {
	p := models.ModelParams{
		Temperature:      0.3,
		TopP:             0.9,
		PresencePenalty:  0.0,
		FrequencyPenalty: 0.2,
	}
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	if r.TopP != nil {
		p.TopP = *r.TopP
	}
	if r.PresencePenalty != nil {
		p.PresencePenalty = *r.PresencePenalty
	}
	if r.FrequencyPenalty != nil {
		p.FrequencyPenalty = *r.FrequencyPenalty
	}
	if r.MaxTokens != nil {
		p.MaxTokens = *r.MaxTokens
	}
	return p
}

// New builds an empty registry with the default organization names, ready
// for Load.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:      logger,
		Version:     "v1",
		CopilotName: "CopilotOS",
		OrgName:     "Saptiva",
		Models:      map[string]models.PromptEntry{},
	}
}

// Load parses the declarative file at path into the registry. It fails with
// a wrapped error when the file is empty, unreadable, or defines no models;
// entries missing system_base are skipped with a warning rather than
// failing the whole load.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("prompt registry not found: %w", err)
	}

	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid YAML in prompt registry: %w", err)
	}
	if len(data) == 0 || (raw.Models == nil && raw.Version == "" && raw.CopilotName == "") {
		return fmt.Errorf("empty prompt registry file")
	}
	if len(raw.Models) == 0 {
		return fmt.Errorf("no models defined in registry")
	}

	if raw.Version != "" {
		r.Version = raw.Version
	}
	if raw.CopilotName != "" {
		r.CopilotName = raw.CopilotName
	}
	if raw.OrgName != "" {
		r.OrgName = raw.OrgName
	}

	loaded := map[string]models.PromptEntry{}
	for name, cfg := range raw.Models {
		if strings.TrimSpace(cfg.SystemBase) == "" {
			r.logger.Warn("model missing system_base, skipping", "model", name)
			continue
		}
		loaded[name] = models.PromptEntry{
			SystemBase: cfg.SystemBase,
			Addendum:   cfg.Addendum,
			Params:     cfg.Params.resolve(),
		}
	}
	if len(loaded) == 0 {
		return fmt.Errorf("no valid models loaded from registry")
	}

	r.Models = loaded
	r.logger.Info("prompt registry loaded",
		"path", path, "version", r.Version, "models_count", len(r.Models))
	return nil
}

// Validate enforces the registry's structural invariant: a "default" entry
// must exist.
func (r *Registry) Validate() error {
	if len(r.Models) == 0 {
		return fmt.Errorf("no models loaded in registry")
	}
	if _, ok := r.Models["default"]; !ok {
		return fmt.Errorf("registry must have a 'default' model entry")
	}
	return nil
}

// AvailableModels returns the registered model names.
func (r *Registry) AvailableModels() []string {
	names := make([]string, 0, len(r.Models))
	for name := range r.Models {
		names = append(names, name)
	}
	return names
}

// Resolve computes the concrete system prompt and generation params for
// (model, channel, tools_markdown). Unknown models fall back to "default";
// if no default exists it returns an error.
func (r *Registry) Resolve(model string, toolsMarkdown string, channel string) (models.ResolvedPrompt, error) {
	entry, ok := r.Models[model]
	hasTools := toolsMarkdown != ""
	if !ok {
		r.logger.Warn("model not found in registry, using default",
			"model", model, "available_models", r.AvailableModels())
		entry, ok = r.Models["default"]
		if !ok {
			return models.ResolvedPrompt{}, fmt.Errorf("model %q not found and no default model available", model)
		}
	}

	systemText := entry.SystemBase
	systemText = strings.ReplaceAll(systemText, "{CopilotOS}", r.CopilotName)
	systemText = strings.ReplaceAll(systemText, "{Saptiva}", r.OrgName)

	if hasTools {
		systemText = strings.ReplaceAll(systemText, "{TOOLS}", toolsMarkdown)
	} else {
		systemText = strings.ReplaceAll(systemText, toolsBlockPrefix, noToolsSentence)
		systemText = strings.ReplaceAll(systemText, "{TOOLS}", "")
	}

	if entry.Addendum != "" {
		systemText = fmt.Sprintf("%s\n\n---\n**Instrucciones específicas del modelo:**\n%s", systemText, entry.Addendum)
	}

	params := entry.Params
	if limit, ok := channelMaxTokens[channel]; ok {
		params.MaxTokens = limit
	} else {
		params.MaxTokens = defaultChannelMaxTokens
	}

	hash := systemHash(systemText)
	r.logger.Debug("resolved prompt for model",
		"model", model, "channel", channel, "system_hash", hash, "max_tokens", params.MaxTokens)

	return models.ResolvedPrompt{
		SystemText: systemText,
		Params:     params,
		Metadata: models.PromptMetadata{
			Model:         model,
			Channel:       channel,
			PromptVersion: r.Version,
			SystemHash:    hash,
			HasAddendum:   entry.Addendum != "",
			HasTools:      hasTools,
		},
	}, nil
}

// systemHash computes the first 16 hex characters of SHA-256(systemText),
// used as a deterministic fingerprint for telemetry and cache discrimination.
func systemHash(systemText string) string {
	sum := sha256.Sum256([]byte(systemText))
	return hex.EncodeToString(sum[:])[:16]
}
