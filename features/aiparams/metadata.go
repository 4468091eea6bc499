package aiparams

import (
	"regexp"
	"strconv"
	"strings"
)

type field struct {
	key   string
	value string
}

var (
	intRegexp   = regexp.MustCompile(`^-?\d+$`)
	floatRegexp = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	sizeRegexp  = regexp.MustCompile(`^(\d+)\s*[xX×]\s*(\d+)$`)
)

var intFields = map[string]bool{
	KeySteps:         true,
	KeySeed:          true,
	KeyClipSkip:      true,
	"ENSD":           true,
	"Hires steps":    true,
	"Variation seed": true,
	"Batch size":     true,
	"Batch pos":      true,
}

var floatFields = map[string]bool{
	KeyCFGScale:               true,
	KeyDenoisingStrength:      true,
	"Hires upscale":           true,
	"Variation seed strength": true,
	"Eta":                     true,
	"Distilled CFG Scale":     true,
	"Guidance":                true,
	"Mask blur":               true,
}

var canonicalKeys = map[string]string{}

func init() {
	for _, key := range []string{KeyPrompt, KeyNegativePrompt, KeySampler, KeyScheduleType, KeySize, KeyModel,
		KeyModelHash, KeyVersion} {
		canonicalKeys[strings.ToLower(key)] = key
	}
	for key := range intFields {
		canonicalKeys[strings.ToLower(key)] = key
	}
	for key := range floatFields {
		canonicalKeys[strings.ToLower(key)] = key
	}
}

// canonicalKey restores the usual spelling of a well known key written in
// another letter case.
func canonicalKey(key string) string {
	if canonical, ok := canonicalKeys[strings.ToLower(key)]; ok {
		return canonical
	}
	return key
}

// parseMetadata parses the "Key: value, Key: value" section.
func parseMetadata(meta string, params *Params) {
	for _, f := range tokenize(meta) {
		f.key = canonicalKey(f.key)
		if f.key == KeySize {
			if m := sizeRegexp.FindStringSubmatch(f.value); m != nil {
				width, _ := strconv.ParseInt(m[1], 10, 64)
				height, _ := strconv.ParseInt(m[2], 10, 64)
				params.SetSize(width, height, ConfidenceText)
				continue
			}
		}
		params.Set(f.key, typedValue(f.key, f.value))
	}
}

// typedValue converts the raw value of key according to the field's known
// type. Unknown fields, hashes and names stay strings.
func typedValue(key, value string) any {
	numeric := false
	if strings.HasPrefix(key, "ADetailer ") {
		lower := strings.ToLower(key)
		numeric = !strings.Contains(lower, "model") && !strings.Contains(lower, "prompt") &&
			!strings.Contains(lower, "version")
	}
	if intFields[key] || numeric {
		if intRegexp.MatchString(value) {
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				return n
			}
			// seeds beyond int64 stay strings
			return value
		}
	}
	if floatFields[key] || numeric {
		if floatRegexp.MatchString(value) {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				return f
			}
		}
	}
	return value
}

// tokenize splits the metadata section into key/value pairs. Values may be
// bare (up to the next comma or newline), double quoted, or a balanced
// {...} / [...] JSON value.
func tokenize(meta string) []field {
	var fields []field
	i := 0
	for i < len(meta) {
		for i < len(meta) && strings.IndexByte(", \t\r\n", meta[i]) >= 0 {
			i++
		}
		if i >= len(meta) {
			break
		}
		j := i
		for j < len(meta) && meta[j] != ':' && meta[j] != ',' && meta[j] != '\n' {
			j++
		}
		if j >= len(meta) || meta[j] != ':' {
			// a segment without a key
			i = j
			continue
		}
		key := strings.TrimSpace(meta[i:j])
		i = j + 1
		for i < len(meta) && (meta[i] == ' ' || meta[i] == '\t') {
			i++
		}
		var value string
		value, i = readValue(meta, i)
		if key != "" {
			fields = append(fields, field{key, value})
		}
	}
	return fields
}

func readValue(s string, i int) (string, int) {
	if i >= len(s) {
		return "", i
	}
	switch s[i] {
	case '"':
		var b strings.Builder
		for j := i + 1; j < len(s); j++ {
			switch {
			case s[j] == '\\' && j+1 < len(s):
				j++
				b.WriteByte(s[j])
			case s[j] == '"':
				return strings.TrimSpace(b.String()), j + 1
			default:
				b.WriteByte(s[j])
			}
		}
		// unterminated: treat as a bare value
		return readBare(s, i)
	case '{', '[':
		if end := balancedEnd(s, i); end > 0 {
			return s[i:end], end
		}
	}
	return readBare(s, i)
}

func readBare(s string, i int) (string, int) {
	j := i
	for j < len(s) && s[j] != ',' && s[j] != '\n' {
		j++
	}
	return strings.TrimSpace(s[i:j]), j
}

// balancedEnd returns the offset just past the bracket that closes the one
// at s[i], ignoring brackets inside JSON strings, or -1.
func balancedEnd(s string, i int) int {
	depth := 0
	inString := false
	for j := i; j < len(s); j++ {
		c := s[j]
		if inString {
			switch c {
			case '\\':
				j++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return -1
}
