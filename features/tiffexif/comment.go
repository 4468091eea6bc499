package tiffexif

import (
	"bytes"
	"strings"

	"github.com/sagan/aimeta/util/stringutil"
)

// Character code prefixes of the EXIF UserComment field.
var (
	codeASCII     = []byte("ASCII\x00\x00\x00")
	codeUnicode   = []byte("UNICODE\x00")
	codeJIS       = []byte("JIS\x00\x00\x00\x00\x00")
	codeUndefined = []byte("\x00\x00\x00\x00\x00\x00\x00\x00")
)

// Share of zero bytes above which an uncoded payload is treated as UTF-16.
const utf16ZeroRatio = 0.25

// DecodeUserComment decodes the raw UserComment payload (8-byte character
// code followed by the text). Writers disagree on the byte order of the
// UNICODE code, so both orders are tried and the one yielding more printable
// ASCII wins.
func DecodeUserComment(raw []byte) string {
	if len(raw) < 8 {
		return cleanComment(stringutil.DecodeBest(raw))
	}
	code, payload := raw[:8], raw[8:]
	switch {
	case bytes.Equal(code, codeASCII):
		return cleanComment(stringutil.DecodeBest(payload))
	case bytes.Equal(code, codeUnicode):
		return cleanComment(stringutil.DecodeUTF16Guess(payload))
	case bytes.Equal(code, codeJIS):
		if text, err := stringutil.DecodeText(payload, "ISO-2022-JP", false); err == nil {
			return cleanComment(string(text))
		}
		return cleanComment(stringutil.DecodeBest(payload))
	case bytes.Equal(code, codeUndefined):
		return decodeUncoded(payload)
	}
	// Unknown code: the code bytes may themselves be text from a writer that
	// ignored the header, so the whole payload is decoded.
	return decodeUncoded(raw)
}

func decodeUncoded(payload []byte) string {
	if stringutil.ZeroByteRatio(payload) >= utf16ZeroRatio {
		return cleanComment(stringutil.DecodeUTF16Guess(payload))
	}
	return cleanComment(stringutil.DecodeBest(payload))
}

// DecodeXP decodes the Windows XP* tags, which are always UTF-16LE.
func DecodeXP(raw []byte) string {
	return cleanComment(stringutil.DecodeUTF16(raw, false))
}

func cleanComment(s string) string {
	return strings.TrimRight(s, "\x00 ")
}
