package stringutil

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
)

// 0xEF, 0xBB, 0xBF
var Utf8bom = []byte{0xEF, 0xBB, 0xBF}

// Clean:
// 1. removes non-graphic (excluding spaces) characters from the given string.
// Non-graphic chars are the ones for which unicode.IsGraphic() returns false.
// For details, see https://stackoverflow.com/a/58994297/1705598 .
// 2. TrimSpace.
func Clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	s = strings.TrimSpace(s)
	return s
}

// StringFromBytes returns the canonical text of a text file's contents:
// 1. UTF-8 BOM removed.
// 2. Decoded to UTF-8 by DecodeBest.
// 3. Line breaks converted to \n.
func StringFromBytes(data []byte) string {
	text := DecodeBest(bytes.TrimPrefix(data, Utf8bom))
	if strings.ContainsRune(text, '\r') {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\r", "\n")
	}
	return text
}

// IndexI is the case-insensitive strings.Index. Only ASCII folding is applied,
// so byte offsets in the result are valid for the original string.
func IndexI(str string, substr string) int {
	return strings.Index(asciiLower(str), asciiLower(substr))
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// PadRight pads str with spaces to the given display width. Wider strings are returned unchanged.
func PadRight(str string, width int) string {
	if w := runewidth.StringWidth(str); w < width {
		return str + strings.Repeat(" ", width-w)
	}
	return str
}

// StringWidth returns the terminal display width of str.
func StringWidth(str string) int {
	return runewidth.StringWidth(str)
}
