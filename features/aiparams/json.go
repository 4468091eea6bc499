package aiparams

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/sagan/aimeta/util"
)

// JSON parameter keys (NovelAI and similar writers) mapped to parameter names.
var jsonKeys = map[string]string{
	"prompt":          KeyPrompt,
	"uc":              KeyNegativePrompt,
	"negative_prompt": KeyNegativePrompt,
	"negativePrompt":  KeyNegativePrompt,
	"steps":           KeySteps,
	"scale":           KeyCFGScale,
	"cfg_scale":       KeyCFGScale,
	"cfgScale":        KeyCFGScale,
	"seed":            KeySeed,
	"sampler":         KeySampler,
	"sampler_name":    KeySampler,
	"noise_schedule":  KeyScheduleType,
	"scheduler":       KeyScheduleType,
	"strength":        KeyDenoisingStrength,
	"denoise":         KeyDenoisingStrength,
	"model":           KeyModel,
	"clip_skip":       KeyClipSkip,
	"clipSkip":        KeyClipSkip,
}

// IsComfyJSON reports whether the decoded JSON value carries ComfyUI node
// markers: a "nodes" list, a node id key "1", or a top level object value
// with "inputs" or "class_type".
func IsComfyJSON(value any) bool {
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if node, ok := item.(map[string]any); ok && isNode(node) {
				return true
			}
		}
	case map[string]any:
		if _, ok := v["nodes"]; ok {
			return true
		}
		if _, ok := v["1"]; ok {
			return true
		}
		for _, item := range v {
			if node, ok := item.(map[string]any); ok && isNode(node) {
				return true
			}
		}
	}
	return false
}

func isNode(node map[string]any) bool {
	_, hasInputs := node["inputs"]
	_, hasClassType := node["class_type"]
	return hasInputs || hasClassType
}

func parseJSON(text string, params *Params) (Format, bool) {
	decoder := json.NewDecoder(strings.NewReader(text))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil || decoder.More() {
		return FormatEmpty, false
	}
	if IsComfyJSON(value) {
		return FormatComfyJSON, true
	}
	object, ok := value.(map[string]any)
	if !ok {
		return FormatEmpty, false
	}
	mapJSON(object, params)
	return FormatJSON, true
}

// mapJSON maps a flat JSON parameter object. Known keys are renamed; other
// scalar values are kept under their own key.
func mapJSON(object map[string]any, params *Params) {
	// Walk known keys in a fixed order so the result is deterministic.
	for _, key := range []string{"prompt", "uc", "negative_prompt", "negativePrompt", "steps", "sampler",
		"sampler_name", "noise_schedule", "scheduler", "scale", "cfg_scale", "cfgScale", "seed", "strength",
		"denoise", "model", "clip_skip", "clipSkip"} {
		if value, ok := object[key]; ok {
			params.Set(jsonKeys[key], util.JSONScalar(value))
		}
	}
	width, _ := util.JSONScalar(object["width"]).(int64)
	height, _ := util.JSONScalar(object["height"]).(int64)
	params.SetSize(width, height, ConfidenceText)
	for _, key := range slices.Sorted(maps.Keys(object)) {
		if _, known := jsonKeys[key]; known || key == "width" || key == "height" {
			continue
		}
		switch value := util.JSONScalar(object[key]).(type) {
		case string, int64, float64, bool:
			params.Set(key, value)
		}
	}
}
