// Package comfy classifies and reads ComfyUI node graphs: the full workflow
// saved by the editor and the reduced "prompt" (node id => inputs) sent to
// the server at generation time.
package comfy

import (
	"encoding/json"
	"regexp"
)

type Variant string

const (
	NotJSON       Variant = "not-json"
	PlainJSON     Variant = "plain-json"
	ReducedPrompt Variant = "reduced-prompt"
	FullWorkflow  Variant = "full-workflow"
)

// Shorter JSON texts are never workflow artifacts.
const minArtifactLength = 100

var guidRegexp = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Classify classifies text:
//   - NotJSON: not valid JSON.
//   - PlainJSON: valid JSON that is shorter than 100 characters, does not
//     start with '{' or '[', or carries no workflow artifacts.
//   - FullWorkflow: artifacts plus a top level GUID "id".
//   - ReducedPrompt: any other artifact bearing JSON.
//
// Artifacts are: an array value, a "nodes" or "links" property, or an object
// value with a "class_type" field.
func Classify(text string) Variant {
	text = trimJSONText(text)
	if !json.Valid([]byte(text)) {
		return NotJSON
	}
	if len(text) < minArtifactLength || (text[0] != '{' && text[0] != '[') {
		return PlainJSON
	}
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return NotJSON
	}
	return classifyValue(value)
}

func classifyValue(value any) Variant {
	if !hasArtifacts(value) {
		return PlainJSON
	}
	if object, ok := value.(map[string]any); ok {
		if id, ok := object["id"].(string); ok && guidRegexp.MatchString(id) {
			return FullWorkflow
		}
	}
	return ReducedPrompt
}

func hasArtifacts(value any) bool {
	switch v := value.(type) {
	case []any:
		return true
	case map[string]any:
		if _, ok := v["nodes"]; ok {
			return true
		}
		if _, ok := v["links"]; ok {
			return true
		}
		for _, item := range v {
			if node, ok := item.(map[string]any); ok {
				if _, ok := node["class_type"]; ok {
					return true
				}
			}
		}
	}
	return false
}
