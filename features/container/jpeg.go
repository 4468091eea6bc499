package container

import (
	"bytes"
	"fmt"

	"github.com/sagan/aimeta/features/bytereader"
)

const exifSignature = "Exif\x00\x00"

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP1 = 0xE1
	markerCOM  = 0xFE
)

func (w *walker) walkJPEG(data []byte) error {
	r := bytereader.New(data, nil)
	if marker, _ := r.Uint16(0); marker != 0xFF00|markerSOI {
		return fmt.Errorf("missing SOI marker")
	}
	offset := 2
	for offset < r.Len() {
		prefix, err := r.Uint8(offset)
		if err != nil {
			return err
		}
		if prefix != 0xFF {
			return fmt.Errorf("expected marker at %d, got 0x%02X", offset, prefix)
		}
		marker, err := r.Uint8(offset + 1)
		if err != nil {
			return fmt.Errorf("marker at %d: %w", offset, err)
		}
		switch {
		case marker == 0xFF:
			// fill byte
			offset++
			continue
		case marker == markerSOS || marker == markerEOI:
			return nil
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			offset += 2
			continue
		}
		length, err := r.Uint16(offset + 2)
		if err != nil {
			return fmt.Errorf("segment 0x%02X at %d: %w", marker, offset, err)
		}
		if length < 2 {
			return fmt.Errorf("segment 0x%02X at %d has length %d", marker, offset, length)
		}
		segment, err := r.Bytes(offset+4, uint64(length)-2)
		if err != nil {
			return fmt.Errorf("segment 0x%02X at %d: %w", marker, offset, err)
		}
		switch marker {
		case markerAPP1:
			if bytes.HasPrefix(segment, []byte(exifSignature)) {
				w.h.Exif = append(w.h.Exif, segment[len(exifSignature):])
			} else if !w.xmp.Add(segment) {
				w.warnf("unrecognized APP1 segment at %d", offset)
			}
		case markerCOM:
			if text := decodeLatin1OrUTF8(bytes.TrimRight(segment, "\x00")); text != "" {
				w.addText("comment", text, "JPEG COM")
			}
		}
		offset += 2 + int(length)
	}
	return nil
}
