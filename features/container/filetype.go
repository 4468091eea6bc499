package container

import (
	"bytes"
	"strings"
)

type FileType string

const (
	PNG   FileType = "png"
	JPEG  FileType = "jpeg"
	WEBP  FileType = "webp"
	GIF   FileType = "gif"
	Video FileType = "video"
	Other FileType = "other"
)

// ParseFileType maps a declared type tag (a file extension or a mime type)
// to a FileType. Unknown tags yield Other.
func ParseFileType(declared string) FileType {
	declared = strings.ToLower(strings.TrimSpace(declared))
	declared = strings.TrimPrefix(declared, ".")
	if kind, sub, ok := strings.Cut(declared, "/"); ok {
		if kind == "video" {
			return Video
		}
		declared = sub
	}
	switch declared {
	case "png", "apng":
		return PNG
	case "jpg", "jpeg", "jfif", "jpe":
		return JPEG
	case "webp":
		return WEBP
	case "gif":
		return GIF
	case "mp4", "m4v", "mov", "qt", "webm", "mkv", "avi", "quicktime", "x-matroska", "x-msvideo", "video":
		return Video
	}
	return Other
}

// DetectType sniffs the container format from the leading magic bytes.
// The declared type is returned when the data matches no known signature.
func DetectType(data []byte, declared FileType) FileType {
	switch {
	case bytes.HasPrefix(data, []byte(pngSignature)):
		return PNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return JPEG
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return WEBP
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return GIF
	case len(data) >= 12 && string(data[4:8]) == "ftyp":
		return Video
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return Video
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "AVI ":
		return Video
	}
	if declared == "" {
		return Other
	}
	return declared
}
