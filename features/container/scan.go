package container

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/sagan/aimeta/util/stringutil"
)

// Markers that locate A1111 style parameters text in an unstructured buffer.
var scanMarkers = []string{"Negative prompt:", "Steps:"}

// Bound on trial JSON decodes per buffer.
const maxJSONAttempts = 512

type span struct {
	start, end int
}

func inSpans(spans []span, pos int) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}

// ScanText searches the first limit bytes of data for AI generation metadata
// without structural parsing: embedded JSON objects carrying a
// prompt / workflow / parameters payload (as ComfyUI video writers store
// them), and a run of A1111 parameters text around the first marker.
func ScanText(data []byte, limit int) []*TextChunk {
	if limit > 0 && len(data) > limit {
		data = data[:limit]
	}
	text := string(data)
	if !utf8.ValidString(text) {
		// Keep embedded UTF-8 runs intact; only the binary bytes are replaced.
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	chunks, spans := scanJSON(text)
	if chunk := scanParameters(text, spans); chunk != nil {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func scanJSON(text string) (chunks []*TextChunk, spans []span) {
	attempts := 0
	for pos := 0; pos < len(text) && attempts < maxJSONAttempts; {
		i := strings.Index(text[pos:], `{"`)
		if i < 0 {
			break
		}
		start := pos + i
		attempts++
		decoder := json.NewDecoder(strings.NewReader(text[start:]))
		var object map[string]json.RawMessage
		if err := decoder.Decode(&object); err != nil {
			pos = start + 2
			continue
		}
		end := start + int(decoder.InputOffset())
		if found := jsonChunks(object, text[start:end]); len(found) > 0 {
			chunks = append(chunks, found...)
			spans = append(spans, span{start, end})
		}
		pos = end
	}
	return chunks, spans
}

// jsonChunks maps a decoded object to text chunks: either a wrapper whose
// keys name the payloads, or a bare ComfyUI graph.
func jsonChunks(object map[string]json.RawMessage, raw string) []*TextChunk {
	var chunks []*TextChunk
	for _, keyword := range []string{KeywordParameters, KeywordPrompt, KeywordWorkflow} {
		value, ok := object[keyword]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				chunks = append(chunks, &TextChunk{Keyword: keyword, Logical: keyword, Text: s, Source: "scan"})
			}
		} else if len(value) > 0 && (value[0] == '{' || value[0] == '[') {
			chunks = append(chunks, &TextChunk{Keyword: keyword, Logical: keyword, Text: string(value), Source: "scan"})
		}
	}
	if len(chunks) > 0 {
		return chunks
	}
	if _, ok := object["nodes"]; ok {
		return []*TextChunk{{Keyword: KeywordWorkflow, Logical: KeywordWorkflow, Text: raw, Source: "scan"}}
	}
	for _, value := range object {
		var node struct {
			ClassType string `json:"class_type"`
		}
		if json.Unmarshal(value, &node) == nil && node.ClassType != "" {
			return []*TextChunk{{Keyword: KeywordPrompt, Logical: KeywordPrompt, Text: raw, Source: "scan"}}
		}
	}
	return nil
}

// scanParameters returns the run of printable text around the first marker
// found outside the JSON spans.
func scanParameters(text string, spans []span) *TextChunk {
	pos := -1
	for _, marker := range scanMarkers {
		for from := 0; from < len(text); {
			i := stringutil.IndexI(text[from:], marker)
			if i < 0 {
				break
			}
			if at := from + i; !inSpans(spans, at) {
				if pos < 0 || at < pos {
					pos = at
				}
				break
			}
			from += i + len(marker)
		}
	}
	if pos < 0 {
		return nil
	}
	start := pos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if isBinaryRune(r) {
			break
		}
		start -= size
	}
	end := pos
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if isBinaryRune(r) {
			break
		}
		end += size
	}
	run := strings.TrimSpace(text[start:end])
	if run == "" {
		return nil
	}
	return &TextChunk{Keyword: KeywordParameters, Logical: KeywordParameters, Text: run, Source: "scan"}
}

func isBinaryRune(r rune) bool {
	switch {
	case r == utf8.RuneError:
		return true
	case r == '\n' || r == '\r' || r == '\t':
		return false
	case r < 0x20 || r == 0x7F:
		return true
	}
	return false
}
