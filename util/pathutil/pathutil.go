package pathutil

import (
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sagan/aimeta/util/stringutil"
)

const FILENAME_MAX_LENGTH = 240

// Invalid filename characters in Windows (NTFS) and their full width
// alternatives. A subset of https://rclone.org/overview/#restricted-filenames-caveats .
var FilenameRestrictedCharacterReplacer = strings.NewReplacer(
	"*", "＊",
	":", "：",
	"<", "＜",
	">", "＞",
	"|", "｜",
	"?", "？",
	`"`, "＂",
	"/", "／",
	`\`, "＼",
)

// CleanFileBasename returns a safe base filename (without path): restricted
// chars replaced, invisible chars and trailing dots removed, truncated to
// FILENAME_MAX_LENGTH bytes with the extension kept.
func CleanFileBasename(name string) string {
	name = stringutil.Clean(FilenameRestrictedCharacterReplacer.Replace(name))
	name = strings.TrimSpace(strings.TrimRight(name, "."))
	ext := path.Ext(name)
	if len(ext) > 14 || strings.ContainsAny(ext, " ") {
		ext = ""
	}
	base := strings.TrimSpace(name[:len(name)-len(ext)])
	return prefixInBytes(base, FILENAME_MAX_LENGTH-len(ext)) + ext
}

// ExportName is the file name of an artifact exported from the input file
// named input: "dir/a.png" with suffix ".workflow.json" => "a.workflow.json".
// Inputs without a file name (stdin, data URLs) use "image".
func ExportName(input string, suffix string) string {
	base := "image"
	if input != "" && input != "-" && !strings.HasPrefix(input, "data:") {
		base = filepath.Base(input)
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return CleanFileBasename(base + suffix)
}

// prefixInBytes truncates s to at most n bytes without splitting a rune.
func prefixInBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
