package stringutil

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	unicodeEncoding "golang.org/x/text/encoding/unicode"
)

var (
	ErrSeemsInvalid = fmt.Errorf("input seems not a valid string of specified charset")
)

// Key: IANA charset name (case sensitive) used by chardet.
var encodings = map[string]encoding.Encoding{
	"GB-18030":    simplifiedchinese.GB18030,
	"Big5":        traditionalchinese.Big5,
	"EUC-JP":      japanese.EUCJP, // GBK 字符串容易被误识别为 EUC-JP。
	"ISO-2022-JP": japanese.ISO2022JP,
	"Shift_JIS":   japanese.ShiftJIS,
	"EUC-KR":      korean.EUCKR,
	"UTF-16BE":    unicodeEncoding.UTF16(unicodeEncoding.BigEndian, unicodeEncoding.IgnoreBOM),
	"UTF-16LE":    unicodeEncoding.UTF16(unicodeEncoding.LittleEndian, unicodeEncoding.IgnoreBOM),
	"ISO-8859-1":  charmap.ISO8859_1,
}

func DecodeText(input []byte, charset string, force bool) ([]byte, error) {
	if charset == "UTF-8" {
		if !force && strings.ContainsRune(string(input), '\uFFFD') {
			return input, ErrSeemsInvalid
		}
		return input, nil
	}
	if enc, ok := encodings[charset]; ok {
		output, err := enc.NewDecoder().Bytes(input)
		if !force && strings.ContainsRune(string(output), '\uFFFD') { // U+FFFD, unicode REPLACEMENT CHARACTER
			return output, ErrSeemsInvalid
		}
		return output, err
	}
	return nil, fmt.Errorf("unsupported charset %s", charset)
}

// DecodeUTF16 decodes input as UTF-16 of the given byte order. A leading BOM, if any, is dropped.
// An odd trailing byte is ignored.
func DecodeUTF16(input []byte, bigEndian bool) string {
	if len(input)%2 == 1 {
		input = input[:len(input)-1]
	}
	charset := "UTF-16LE"
	if bigEndian {
		charset = "UTF-16BE"
	}
	output, _ := DecodeText(input, charset, true)
	return strings.TrimPrefix(string(output), "\ufeff")
}

// DecodeUTF16Guess decodes input as UTF-16, choosing the byte order from the BOM if present,
// otherwise the one whose result has the higher ratio of printable ASCII characters.
// Ties go to little-endian.
func DecodeUTF16Guess(input []byte) string {
	switch {
	case bytes.HasPrefix(input, []byte{0xFF, 0xFE}):
		return DecodeUTF16(input[2:], false)
	case bytes.HasPrefix(input, []byte{0xFE, 0xFF}):
		return DecodeUTF16(input[2:], true)
	}
	le := DecodeUTF16(input, false)
	be := DecodeUTF16(input, true)
	if PrintableASCIIRatio(be) > PrintableASCIIRatio(le) {
		return be
	}
	return le
}

// DecodeLatin1 maps every byte to the code point of the same value.
func DecodeLatin1(input []byte) string {
	output, _ := DecodeText(input, "ISO-8859-1", true)
	return string(output)
}

// DecodeBest returns input as UTF-8 text. Valid UTF-8 is returned as is;
// otherwise chardet guesses the charset and Latin-1 is the last resort.
func DecodeBest(input []byte) string {
	if utf8.Valid(input) {
		return string(input)
	}
	detector := chardet.NewTextDetector()
	if result, err := detector.DetectBest(input); err == nil && result.Charset != "UTF-8" {
		if output, err := DecodeText(input, result.Charset, false); err == nil {
			log.Debugf("decoded %d bytes as %s (confidence %d)", len(input), result.Charset, result.Confidence)
			return string(output)
		}
	}
	return DecodeLatin1(input)
}

// PrintableASCIIRatio returns the share of runes in s that are printable ASCII
// (0x20-0x7E) or common whitespace. Empty input has ratio 0.
func PrintableASCIIRatio(s string) float64 {
	total, printable := 0, 0
	for _, r := range s {
		total++
		if r >= 0x20 && r <= 0x7E || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}

// ZeroByteRatio returns the share of 0x00 bytes in input.
func ZeroByteRatio(input []byte) float64 {
	if len(input) == 0 {
		return 0
	}
	return float64(bytes.Count(input, []byte{0})) / float64(len(input))
}
