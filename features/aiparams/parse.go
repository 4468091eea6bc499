// Package aiparams parses free-form AI generation parameters text (the
// "parameters" PNG chunk, EXIF UserComment and similar) into Params.
//
// Two layouts are recognized, the traditional A1111 layout
//
//	prompt
//	Negative prompt: negative
//	Steps: 20, Sampler: Euler a, CFG scale: 7, Seed: 1, Size: 512x768
//
// and the quoted sections layout `"prompt","negative","Steps: 20, ..."`.
// JSON parameter blobs are mapped by key; ComfyUI graphs are rejected and
// left to the workflow pipeline.
package aiparams

import (
	"encoding/csv"
	"regexp"
	"strings"

	"github.com/sagan/aimeta/util/stringutil"
)

type Format string

const (
	FormatEmpty       Format = ""
	FormatComfyJSON   Format = "comfyui-json"
	FormatJSON        Format = "json"
	FormatQuoted      Format = "quoted"
	FormatTraditional Format = "a1111"
	// Text without any known marker. The whole text is taken as the prompt.
	FormatPlain Format = "plain"
)

const negativeMarker = "Negative prompt:"

// Markers that start the metadata section, in priority order.
var metadataMarkers = []string{
	"Steps:",
	"CFG scale:",
	"Seed:",
	"Size:",
	"Model hash:",
	"Model:",
	"Sampler:",
	"Lora hashes:",
	"TI hashes:",
	"Hashes:",
	"Civitai resources:",
	"Schedule type:",
	"Denoising strength:",
	"Clip skip:",
	"Version:",
}

var quotedSeparatorRegexp = regexp.MustCompile(`"\s*,\s*"`)

// Parse parses a parameters-class text blob.
func Parse(text string) (*Params, Format) {
	params := New()
	text = trimEnclosing(text)
	if text == "" {
		return params, FormatEmpty
	}
	if text[0] == '{' || text[0] == '[' {
		if format, ok := parseJSON(text, params); ok {
			return params, format
		}
		// Unparsable graphs (e.g. with bare NaN tokens) still belong to the
		// workflow pipeline.
		if strings.Contains(text, `"class_type"`) || strings.Contains(text, `"links"`) {
			return params, FormatComfyJSON
		}
	}
	if isQuoted(text) {
		if parseQuoted(text, params) {
			return params, FormatQuoted
		}
	}
	return params, parseTraditional(text, params)
}

func trimEnclosing(text string) string {
	text = strings.TrimPrefix(strings.TrimSpace(text), "\ufeff")
	return strings.Trim(text, ", \t\r\n\x00")
}

// isQuoted reports whether text uses the "p","n","meta" layout: it starts
// with a quote, has balanced unescaped quotes and a comma between quotes.
func isQuoted(text string) bool {
	if !strings.HasPrefix(text, `"`) {
		return false
	}
	quotes := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\\' {
			i++
			continue
		}
		if text[i] == '"' {
			quotes++
		}
	}
	return quotes%2 == 0 && quotedSeparatorRegexp.MatchString(text)
}

func parseQuoted(text string, params *Params) bool {
	// Writers escape inner quotes as \", csv expects "".
	text = strings.ReplaceAll(text, `\"`, `""`)
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	fields, err := reader.Read()
	if err != nil || len(fields) < 2 {
		return false
	}
	var prompt, negative, meta string
	switch {
	case len(fields) >= 3:
		prompt, negative, meta = fields[0], fields[1], strings.Join(fields[2:], ", ")
	case findMetadataMarker(fields[1], 0) >= 0:
		prompt, meta = fields[0], fields[1]
	default:
		prompt, negative = fields[0], fields[1]
	}
	params.Set(KeyPrompt, cleanPrompt(prompt))
	params.Set(KeyNegativePrompt, cleanPrompt(negative))
	parseMetadata(meta, params)
	return true
}

func parseTraditional(text string, params *Params) Format {
	negative := indexMarker(text, negativeMarker, 0)
	from := 0
	if negative >= 0 {
		from = negative + len(negativeMarker)
	}
	meta := findMetadataMarker(text, from)
	if negative < 0 && meta < 0 {
		params.Set(KeyPrompt, cleanPrompt(text))
		return FormatPlain
	}
	switch {
	case negative >= 0:
		params.Set(KeyPrompt, cleanPrompt(text[:negative]))
		end := len(text)
		if meta >= 0 {
			end = meta
		}
		params.Set(KeyNegativePrompt, cleanPrompt(text[from:end]))
	default:
		params.Set(KeyPrompt, cleanPrompt(text[:meta]))
	}
	if meta >= 0 {
		parseMetadata(text[meta:], params)
	}
	return FormatTraditional
}

// findMetadataMarker returns the offset of the metadata section in text at or
// after from, or -1. A marker at the start of a line is preferred over an
// earlier one inside a line, since prompts may contain marker-like words.
func findMetadataMarker(text string, from int) int {
	best := -1
	for _, lineStart := range []bool{true, false} {
		for _, marker := range metadataMarkers {
			for at := from; ; {
				i := indexMarker(text, marker, at)
				if i < 0 {
					break
				}
				if !lineStart || i == 0 || text[i-1] == '\n' {
					if best < 0 || i < best {
						best = i
					}
					break
				}
				at = i + len(marker)
			}
		}
		if best >= 0 {
			return best
		}
	}
	return best
}

// indexMarker returns the first case-insensitive occurrence of marker at or
// after from that starts a word.
func indexMarker(text, marker string, from int) int {
	for from <= len(text) {
		i := stringutil.IndexI(text[from:], marker)
		if i < 0 {
			return -1
		}
		at := from + i
		if at == 0 || strings.ContainsRune(" \t\r\n,", rune(text[at-1])) {
			return at
		}
		from = at + 1
	}
	return -1
}

func cleanPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	for strings.HasSuffix(prompt, ",") {
		prompt = strings.TrimSpace(strings.TrimSuffix(prompt, ","))
	}
	return prompt
}
