package tiffexif

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/sagan/aimeta/util/stringutil"
)

type DataType uint16

const (
	TypeByte      DataType = 1
	TypeASCII     DataType = 2
	TypeShort     DataType = 3
	TypeLong      DataType = 4
	TypeRational  DataType = 5
	TypeSByte     DataType = 6
	TypeUndefined DataType = 7
	TypeSShort    DataType = 8
	TypeSLong     DataType = 9
	TypeSRational DataType = 10
	TypeFloat     DataType = 11
	TypeDouble    DataType = 12
)

// Size returns the byte size of one element, or 0 for unknown types.
func (t DataType) Size() int {
	switch t {
	case TypeByte, TypeASCII, TypeSByte, TypeUndefined:
		return 1
	case TypeShort, TypeSShort:
		return 2
	case TypeLong, TypeSLong, TypeFloat:
		return 4
	case TypeRational, TypeSRational, TypeDouble:
		return 8
	}
	return 0
}

func (t DataType) String() string {
	switch t {
	case TypeByte:
		return "BYTE"
	case TypeASCII:
		return "ASCII"
	case TypeShort:
		return "SHORT"
	case TypeLong:
		return "LONG"
	case TypeRational:
		return "RATIONAL"
	case TypeSByte:
		return "SBYTE"
	case TypeUndefined:
		return "UNDEFINED"
	case TypeSShort:
		return "SSHORT"
	case TypeSLong:
		return "SLONG"
	case TypeSRational:
		return "SRATIONAL"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	}
	return "UNKNOWN"
}

// decodeValue converts the raw bytes of a tag into a Go value.
// Single element numeric values are returned as scalars, otherwise as slices.
// A rational with a zero denominator decodes to NaN.
func decodeValue(id uint16, typ DataType, count uint32, raw []byte, order binary.ByteOrder) any {
	switch {
	case id == TagUserComment:
		return DecodeUserComment(raw)
	case isXPTag(id) && (typ == TypeByte || typ == TypeUndefined):
		return DecodeXP(raw)
	}
	n := int(count)
	switch typ {
	case TypeASCII:
		return strings.TrimRight(stringutil.DecodeBest(raw), "\x00 ")
	case TypeByte, TypeUndefined:
		if n == 1 {
			return int64(raw[0])
		}
		return raw
	case TypeSByte:
		values := make([]int64, n)
		for i := range n {
			values[i] = int64(int8(raw[i]))
		}
		return scalarOrSlice(values)
	case TypeShort, TypeSShort:
		values := make([]int64, n)
		for i := range n {
			v := order.Uint16(raw[i*2:])
			if typ == TypeSShort {
				values[i] = int64(int16(v))
			} else {
				values[i] = int64(v)
			}
		}
		return scalarOrSlice(values)
	case TypeLong, TypeSLong:
		values := make([]int64, n)
		for i := range n {
			v := order.Uint32(raw[i*4:])
			if typ == TypeSLong {
				values[i] = int64(int32(v))
			} else {
				values[i] = int64(v)
			}
		}
		return scalarOrSlice(values)
	case TypeRational, TypeSRational:
		values := make([]float64, n)
		for i := range n {
			num, den := order.Uint32(raw[i*8:]), order.Uint32(raw[i*8+4:])
			switch {
			case den == 0:
				values[i] = math.NaN()
			case typ == TypeSRational:
				values[i] = float64(int32(num)) / float64(int32(den))
			default:
				values[i] = float64(num) / float64(den)
			}
		}
		return scalarOrSlice(values)
	case TypeFloat:
		values := make([]float64, n)
		for i := range n {
			values[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
		}
		return scalarOrSlice(values)
	case TypeDouble:
		values := make([]float64, n)
		for i := range n {
			values[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
		return scalarOrSlice(values)
	}
	return raw
}

func scalarOrSlice[T any](values []T) any {
	if len(values) == 1 {
		return values[0]
	}
	return values
}
