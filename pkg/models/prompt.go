package models

import "strconv"

// ModelParams bounds the generation parameters attached to a resolved
// prompt entry. Validate enforces the numeric ranges from the registry file
// format: temperature in [0,2], top_p in [0,1], the two penalties in
// [-2,2], max_tokens >= 1.
type ModelParams struct {
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	TopP             float64 `json:"top_p" yaml:"top_p"`
	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
}

// Validate reports the first out-of-range field, if any.
func (p ModelParams) Validate() error {
	switch {
	case p.Temperature < 0 || p.Temperature > 2:
		return fieldRangeError("temperature", 0, 2)
	case p.TopP < 0 || p.TopP > 1:
		return fieldRangeError("top_p", 0, 1)
	case p.PresencePenalty < -2 || p.PresencePenalty > 2:
		return fieldRangeError("presence_penalty", -2, 2)
	case p.FrequencyPenalty < -2 || p.FrequencyPenalty > 2:
		return fieldRangeError("frequency_penalty", -2, 2)
	case p.MaxTokens < 1:
		return fieldRangeError("max_tokens", 1, 0)
	}
	return nil
}

// PromptEntry is one `models.<name>` block in the prompt registry file.
type PromptEntry struct {
	SystemBase string      `yaml:"system_base" json:"system_base"`
	Addendum   string      `yaml:"addendum" json:"addendum,omitempty"`
	Params     ModelParams `yaml:"params" json:"params"`
}

// ResolvedPrompt is the output of PromptRegistry.Resolve.
type ResolvedPrompt struct {
	SystemText string         `json:"system_text"`
	Params     ModelParams    `json:"params"`
	Metadata   PromptMetadata `json:"_metadata"`
}

// PromptMetadata is the `_metadata` block attached to a resolved prompt.
type PromptMetadata struct {
	Model         string `json:"model"`
	Channel       string `json:"channel"`
	PromptVersion string `json:"prompt_version"`
	SystemHash    string `json:"system_hash"`
	HasAddendum   bool   `json:"has_addendum"`
	HasTools      bool   `json:"has_tools"`
}

type rangeError struct {
	field      string
	min, max   float64
	onlyFloor  bool
}

func fieldRangeError(field string, min, max float64) error {
	return rangeError{field: field, min: min, max: max, onlyFloor: max == 0 && min == 1}
}

func (e rangeError) Error() string {
	if e.onlyFloor {
		return e.field + " must be >= " + formatFloat(e.min)
	}
	return e.field + " must be in [" + formatFloat(e.min) + ", " + formatFloat(e.max) + "]"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
