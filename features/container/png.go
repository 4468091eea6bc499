package container

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"

	"github.com/sagan/aimeta/features/bytereader"
	"github.com/sagan/aimeta/util/stringutil"
)

const pngSignature = "\x89PNG\r\n\x1a\n"

// Upper bound of an inflated zTXt / iTXt payload.
const maxInflatedSize = 64 << 20

func (w *walker) walkPNG(data []byte) error {
	r := bytereader.New(data, nil)
	if !r.HasPrefixAt(0, pngSignature) {
		return fmt.Errorf("bad PNG signature")
	}
	offset := len(pngSignature)
	for offset < r.Len() {
		length, err := r.Uint32(offset)
		if err != nil {
			return fmt.Errorf("chunk header at %d: %w", offset, err)
		}
		chunkType, err := r.String(offset+4, 4)
		if err != nil {
			return fmt.Errorf("chunk header at %d: %w", offset, err)
		}
		payload, err := r.Bytes(offset+8, uint64(length))
		if err != nil {
			return fmt.Errorf("%s chunk at %d: %w", chunkType, offset, err)
		}
		switch chunkType {
		case "tEXt":
			w.pngText(payload)
		case "zTXt":
			w.pngCompressedText(payload)
		case "iTXt":
			w.pngInternationalText(payload)
		case "eXIf":
			w.h.Exif = append(w.h.Exif, bytes.TrimPrefix(payload, []byte(exifSignature)))
		case "IEND":
			return nil
		}
		// length + type + data + crc
		offset += 12 + int(length)
	}
	return nil
}

// tEXt: keyword NUL text. The text is nominally Latin-1 but generators
// commonly write UTF-8.
func (w *walker) pngText(payload []byte) {
	keyword, text, ok := bytes.Cut(payload, []byte{0})
	if !ok {
		w.warnf("tEXt chunk without keyword separator")
		return
	}
	w.addText(string(keyword), decodeLatin1OrUTF8(text), "PNG tEXt")
}

// zTXt: keyword NUL method compressed-text.
func (w *walker) pngCompressedText(payload []byte) {
	keyword, rest, ok := bytes.Cut(payload, []byte{0})
	if !ok || len(rest) < 1 {
		w.warnf("malformed zTXt chunk")
		return
	}
	text, err := inflate(rest[1:])
	if err != nil {
		w.warnf("zTXt %q: %v", keyword, err)
		return
	}
	w.addText(string(keyword), decodeLatin1OrUTF8(text), "PNG zTXt")
}

// iTXt: keyword NUL flag method language NUL translated-keyword NUL text.
func (w *walker) pngInternationalText(payload []byte) {
	keyword, rest, ok := bytes.Cut(payload, []byte{0})
	if !ok || len(rest) < 2 {
		w.warnf("malformed iTXt chunk")
		return
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		w.warnf("iTXt %q: missing language tag", keyword)
		return
	}
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		w.warnf("iTXt %q: missing translated keyword", keyword)
		return
	}
	text := rest
	if compressed {
		var err error
		if text, err = inflate(rest); err != nil {
			w.warnf("iTXt %q: %v", keyword, err)
			return
		}
	}
	w.addText(string(keyword), stringutil.DecodeBest(text), "PNG iTXt")
}

func inflate(compressed []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer reader.Close()
	output, err := io.ReadAll(io.LimitReader(reader, maxInflatedSize+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(output) > maxInflatedSize {
		return nil, fmt.Errorf("inflate: output exceeds %d bytes", maxInflatedSize)
	}
	return output, nil
}

func decodeLatin1OrUTF8(text []byte) string {
	if utf8.Valid(text) {
		return string(text)
	}
	return stringutil.DecodeLatin1(text)
}
