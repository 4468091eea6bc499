package container

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sagan/aimeta/features/bytereader"
)

func (w *walker) walkWEBP(data []byte) error {
	r := bytereader.New(data, binary.LittleEndian)
	if !r.HasPrefixAt(0, "RIFF") || !r.HasPrefixAt(8, "WEBP") {
		return fmt.Errorf("bad RIFF/WEBP header")
	}
	riffSize, _ := r.Uint32(4)
	end := min(uint64(r.Len()), 8+uint64(riffSize))
	offset := 12
	for uint64(offset)+8 <= end {
		fourCC, _ := r.String(offset, 4)
		size, _ := r.Uint32(offset + 4)
		payload, err := r.Bytes(offset+8, uint64(size))
		if err != nil {
			return fmt.Errorf("%q chunk at %d: %w", fourCC, offset, err)
		}
		switch fourCC {
		case "EXIF":
			w.h.Exif = append(w.h.Exif, bytes.TrimPrefix(payload, []byte(exifSignature)))
		case "XMP ":
			w.xmp.AddPacket(payload)
		}
		offset += 8 + int(size) + int(size&1)
	}
	return nil
}
