package container

import "strings"

// Logical keywords the extraction pipeline routes on.
const (
	KeywordParameters = "parameters"
	KeywordPrompt     = "prompt"
	KeywordWorkflow   = "workflow"
)

var keywordAliases = map[string]string{
	"parameters":   KeywordParameters,
	"description":  KeywordParameters,
	"comment":      KeywordParameters,
	"usercomment":  KeywordParameters,
	"xpcomment":    KeywordParameters,
	"prompt":       KeywordPrompt,
	"workflow":     KeywordWorkflow,
	"comfyui":      KeywordWorkflow,
	"comfyui_json": KeywordWorkflow,
}

// LogicalKeyword maps a raw chunk keyword to its logical name.
// Unknown keywords map to their own lower-cased form.
func LogicalKeyword(keyword string) string {
	key := strings.ToLower(strings.TrimSpace(keyword))
	if logical, ok := keywordAliases[key]; ok {
		return logical
	}
	return key
}
