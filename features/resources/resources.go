// Package resources extracts model resource references (checkpoints, LoRAs,
// embeddings...) from AI generation parameters text and merges the
// references that name the same resource.
package resources

import (
	"strings"

	"github.com/sagan/aimeta/util/stringutil"
)

// Style identifies the text convention a reference was extracted from.
// Higher styles carry richer data and win merges.
type Style int

const (
	// "Model hash: <hex>, Model: <name>"
	StyleModelHash Style = 1
	// `Hashes: {"lora:name": "<hex>", ...}`
	StyleHashes Style = 2
	// `Lora hashes: "name: <hex>, ..."` and `TI hashes: "..."`
	StyleHashLists Style = 3
	// `Civitai resources: [{...}, ...]`
	StyleCivitai Style = 4
)

// Resource types, named as the registry names them.
const (
	TypeCheckpoint       = "Checkpoint"
	TypeLORA             = "LORA"
	TypeTextualInversion = "TextualInversion"
	TypeVAE              = "VAE"
	TypeADetailer        = "ADetailer"
	TypeUnknown          = "Unknown"
)

type Reference struct {
	Type           string   `json:"type"`
	Prefix         string   `json:"prefix,omitempty"`
	Hash           string   `json:"hash,omitempty"`
	Name           string   `json:"name,omitempty"`
	Version        string   `json:"version,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	AirURN         string   `json:"air,omitempty"`
	ModelID        int64    `json:"model_id,omitempty"`
	ModelVersionID int64    `json:"model_version_id,omitempty"`
	// Other names seen on merged duplicates.
	Aliases []string `json:"aliases,omitempty"`
	Source  Style    `json:"-"`
}

var markers = []string{"Hashes:", "Model hash:", "Lora hashes:", "TI hashes:", "Civitai resources:"}

// HasMarkers reports whether text carries any resource marker.
func HasMarkers(text string) bool {
	for _, marker := range markers {
		if stringutil.IndexI(text, marker) >= 0 {
			return true
		}
	}
	return false
}

// Extract runs all four extraction styles over text and returns the
// deduplicated references.
func Extract(text string) []*Reference {
	if !HasMarkers(text) {
		return nil
	}
	var refs []*Reference
	refs = append(refs, ExtractModelHash(text)...)
	refs = append(refs, ExtractHashes(text)...)
	refs = append(refs, ExtractHashLists(text)...)
	refs = append(refs, ExtractCivitaiResources(text)...)
	return Dedupe(refs)
}

// TypeOf maps a prefix or registry type name to a resource type.
func TypeOf(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "model", "checkpoint":
		return TypeCheckpoint
	case "lora", "locon", "lycoris", "lyco", "dora":
		return TypeLORA
	case "embed", "embedding", "textualinversion", "ti":
		return TypeTextualInversion
	case "vae":
		return TypeVAE
	case "adetailer":
		return TypeADetailer
	case "":
		return TypeUnknown
	}
	return name
}

// baseName strips directories of both path conventions.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
