// Package tiffexif decodes TIFF structured EXIF payloads into a flat tag table.
//
// Only IFD0 and the IFDs it points to (Exif, GPS, Interop) are decoded;
// thumbnails (IFD1) and maker notes are not interpreted.
package tiffexif

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sagan/aimeta/features/bytereader"
)

var ErrBadHeader = fmt.Errorf("bad TIFF header")

const ifdEntrySize = 12

type Tag struct {
	ID    uint16   `json:"id"`
	Name  string   `json:"name"`
	IFD   string   `json:"ifd"`
	Type  DataType `json:"type"`
	Count uint32   `json:"count"`
	Value any      `json:"value"`
}

type Exif struct {
	// "II" (little endian) or "MM" (big endian).
	ByteOrder string `json:"byte_order"`
	// Tags in decode order.
	Tags []*Tag `json:"-"`
	// Flat name => value table. First occurrence of a name wins.
	Fields map[string]any `json:"fields"`
	// The AI generation text candidate: UserComment, else ImageDescription,
	// else XPComment.
	Text       string   `json:"text,omitempty"`
	TextSource string   `json:"text_source,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Get returns the value of the named field.
func (e *Exif) Get(name string) (any, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// GetString returns the named field if it is a non-empty string.
func (e *Exif) GetString(name string) string {
	if s, ok := e.Fields[name].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

type decoder struct {
	r       *bytereader.Reader
	visited map[uint32]bool
	exif    *Exif
}

func (d *decoder) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Debugf("exif: %s", msg)
	d.exif.Warnings = append(d.exif.Warnings, msg)
}

// Decode decodes data that begins with a TIFF header. Only a bad header or
// an unreadable IFD0 is an error; problems in sub IFDs or individual tags
// are recorded in Exif.Warnings and skipped.
func Decode(data []byte) (*Exif, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadHeader, len(data))
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: byte order %q", ErrBadHeader, data[:2])
	}
	r := bytereader.New(data, order)
	if magic, _ := r.Uint16(2); magic != 0x2A {
		return nil, fmt.Errorf("%w: magic 0x%04X", ErrBadHeader, magic)
	}
	ifd0, _ := r.Uint32(4)
	d := &decoder{
		r:       r,
		visited: map[uint32]bool{},
		exif: &Exif{
			ByteOrder: string(data[:2]),
			Fields:    map[string]any{},
		},
	}
	tags, err := d.readIFD(ifd0, IFD0)
	if err != nil {
		return nil, fmt.Errorf("IFD0: %w", err)
	}
	for _, tag := range tags {
		switch tag.ID {
		case TagExifIFDPointer:
			exifTags := d.followPointer(tag, IFDExif)
			for _, sub := range exifTags {
				if sub.ID == TagInteropIFDPointer {
					d.followPointer(sub, IFDInterop)
				}
			}
		case TagGPSIFDPointer:
			d.followPointer(tag, IFDGPS)
		}
	}
	d.pickText()
	return d.exif, nil
}

func (d *decoder) followPointer(tag *Tag, ifd string) []*Tag {
	offset, ok := tag.Value.(int64)
	if !ok || offset < 0 || offset > math.MaxUint32 {
		d.warnf("%s pointer has malformed value %v", ifd, tag.Value)
		return nil
	}
	tags, err := d.readIFD(uint32(offset), ifd)
	if err != nil {
		d.warnf("%s IFD skipped: %v", ifd, err)
		return nil
	}
	return tags
}

// readIFD reads the IFD at offset. Tags are appended to the result table and
// also returned. An IFD offset already visited returns no tags.
func (d *decoder) readIFD(offset uint32, ifd string) ([]*Tag, error) {
	if d.visited[offset] {
		d.warnf("%s IFD at offset %d already visited", ifd, offset)
		return nil, nil
	}
	d.visited[offset] = true
	count, err := d.r.Uint16(int(offset))
	if err != nil {
		return nil, err
	}
	var tags []*Tag
	for i := range int(count) {
		entry := int(offset) + 2 + i*ifdEntrySize
		if !d.r.Has(entry, ifdEntrySize) {
			d.warnf("%s IFD truncated at entry %d of %d", ifd, i, count)
			break
		}
		id, _ := d.r.Uint16(entry)
		typeID, _ := d.r.Uint16(entry + 2)
		n, _ := d.r.Uint32(entry + 4)
		typ := DataType(typeID)
		if typ.Size() == 0 {
			d.warnf("%s tag 0x%04X has unknown type %d", ifd, id, typeID)
			continue
		}
		size := uint64(typ.Size()) * uint64(n)
		valueOffset := entry + 8
		if size > 4 {
			pointer, _ := d.r.Uint32(entry + 8)
			valueOffset = int(pointer)
		}
		raw, err := d.r.Bytes(valueOffset, size)
		if err != nil {
			d.warnf("%s tag 0x%04X value skipped: %v", ifd, id, err)
			continue
		}
		tag := &Tag{
			ID:    id,
			Name:  TagName(ifd, id),
			IFD:   ifd,
			Type:  typ,
			Count: n,
			Value: decodeValue(id, typ, n, raw, d.r.Order()),
		}
		tags = append(tags, tag)
		d.exif.Tags = append(d.exif.Tags, tag)
		if _, ok := d.exif.Fields[tag.Name]; !ok {
			d.exif.Fields[tag.Name] = tag.Value
		}
	}
	return tags, nil
}

func (d *decoder) pickText() {
	for _, name := range []string{NameUserComment, NameImageDescription, NameXPComment} {
		if text := d.exif.GetString(name); text != "" {
			d.exif.Text = text
			d.exif.TextSource = name
			return
		}
	}
}
