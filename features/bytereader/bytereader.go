// Package bytereader provides bounds-checked integer reads over an in-memory byte buffer.
// Every structured read in the container walkers and the TIFF decoder goes through it,
// so a truncated or hostile file yields ErrOutOfBounds instead of a panic.
package bytereader

import (
	"encoding/binary"
	"fmt"
)

var (
	ErrOutOfBounds = fmt.Errorf("read out of bounds")
)

type Reader struct {
	buf   []byte
	order binary.ByteOrder
}

func New(buf []byte, order binary.ByteOrder) *Reader {
	if order == nil {
		order = binary.BigEndian
	}
	return &Reader{buf: buf, order: order}
}

// WithOrder returns a reader over the same buffer using another byte order.
func (r *Reader) WithOrder(order binary.ByteOrder) *Reader {
	return &Reader{buf: r.buf, order: order}
}

func (r *Reader) Order() binary.ByteOrder {
	return r.order
}

func (r *Reader) Len() int {
	return len(r.buf)
}

func (r *Reader) Buffer() []byte {
	return r.buf
}

// Check reports whether [offset, offset+size) lies inside the buffer.
// Sizes are computed in uint64 so that huge declared counts cannot overflow.
func (r *Reader) Check(offset int, size uint64) error {
	if offset < 0 || uint64(offset)+size > uint64(len(r.buf)) {
		return fmt.Errorf("%w: %d bytes at offset %d (buffer %d)", ErrOutOfBounds, size, offset, len(r.buf))
	}
	return nil
}

// Has is the boolean form of Check.
func (r *Reader) Has(offset int, size uint64) bool {
	return r.Check(offset, size) == nil
}

// Bytes returns a sub-slice (not a copy) of the buffer.
func (r *Reader) Bytes(offset int, size uint64) ([]byte, error) {
	if err := r.Check(offset, size); err != nil {
		return nil, err
	}
	return r.buf[offset : uint64(offset)+size], nil
}

func (r *Reader) Uint8(offset int) (uint8, error) {
	if err := r.Check(offset, 1); err != nil {
		return 0, err
	}
	return r.buf[offset], nil
}

func (r *Reader) Int8(offset int) (int8, error) {
	v, err := r.Uint8(offset)
	return int8(v), err
}

func (r *Reader) Uint16(offset int) (uint16, error) {
	if err := r.Check(offset, 2); err != nil {
		return 0, err
	}
	return r.order.Uint16(r.buf[offset:]), nil
}

func (r *Reader) Int16(offset int) (int16, error) {
	v, err := r.Uint16(offset)
	return int16(v), err
}

func (r *Reader) Uint32(offset int) (uint32, error) {
	if err := r.Check(offset, 4); err != nil {
		return 0, err
	}
	return r.order.Uint32(r.buf[offset:]), nil
}

func (r *Reader) Int32(offset int) (int32, error) {
	v, err := r.Uint32(offset)
	return int32(v), err
}

// Uint64 and Float variants are needed for TIFF DOUBLE values only.
func (r *Reader) Uint64(offset int) (uint64, error) {
	if err := r.Check(offset, 8); err != nil {
		return 0, err
	}
	return r.order.Uint64(r.buf[offset:]), nil
}

// String returns size bytes at offset as a Go string without any decoding.
func (r *Reader) String(offset int, size uint64) (string, error) {
	b, err := r.Bytes(offset, size)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// HasPrefixAt reports whether the buffer contains prefix at offset.
func (r *Reader) HasPrefixAt(offset int, prefix string) bool {
	b, err := r.Bytes(offset, uint64(len(prefix)))
	return err == nil && string(b) == prefix
}
