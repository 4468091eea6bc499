package tiffexif

import (
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
)

const (
	TagImageDescription  uint16 = 0x010E
	TagMake              uint16 = 0x010F
	TagModel             uint16 = 0x0110
	TagExifIFDPointer    uint16 = 0x8769
	TagGPSIFDPointer     uint16 = 0x8825
	TagInteropIFDPointer uint16 = 0xA005
	TagUserComment       uint16 = 0x9286
	TagXPTitle           uint16 = 0x9C9B
	TagXPComment         uint16 = 0x9C9C
	TagXPAuthor          uint16 = 0x9C9D
	TagXPKeywords        uint16 = 0x9C9E
	TagXPSubject         uint16 = 0x9C9F
)

// IFD names used in Tag.IFD and in generated names of unknown tags.
const (
	IFD0       = "IFD0"
	IFDExif    = "Exif"
	IFDGPS     = "GPS"
	IFDInterop = "Interop"
)

// Field names of the flat tag table. Standard names come from goexif so that
// the output keys match what other EXIF tooling prints.
var (
	NameImageDescription = string(exif.ImageDescription)
	NameMake             = string(exif.Make)
	NameModel            = string(exif.Model)
	NameUserComment      = string(exif.UserComment)
	NameXPComment        = "XPComment"
)

var ifd0Names = map[uint16]string{
	0x0100:              string(exif.ImageWidth),
	0x0101:              string(exif.ImageLength),
	TagImageDescription: NameImageDescription,
	TagMake:             NameMake,
	TagModel:            NameModel,
	0x0112:              string(exif.Orientation),
	0x011A:              string(exif.XResolution),
	0x011B:              string(exif.YResolution),
	0x0128:              string(exif.ResolutionUnit),
	0x0131:              string(exif.Software),
	0x0132:              string(exif.DateTime),
	0x013B:              string(exif.Artist),
	0x8298:              string(exif.Copyright),
	TagExifIFDPointer:   string(exif.ExifIFDPointer),
	TagGPSIFDPointer:    string(exif.GPSInfoIFDPointer),
	TagXPTitle:          "XPTitle",
	TagXPComment:        NameXPComment,
	TagXPAuthor:         "XPAuthor",
	TagXPKeywords:       "XPKeywords",
	TagXPSubject:        "XPSubject",
}

var exifNames = map[uint16]string{
	0x9000:               string(exif.ExifVersion),
	0x9003:               string(exif.DateTimeOriginal),
	0x9004:               string(exif.DateTimeDigitized),
	0x927C:               string(exif.MakerNote),
	TagUserComment:       NameUserComment,
	0xA000:               string(exif.FlashpixVersion),
	0xA001:               string(exif.ColorSpace),
	0xA002:               string(exif.PixelXDimension),
	0xA003:               string(exif.PixelYDimension),
	TagInteropIFDPointer: string(exif.InteroperabilityIFDPointer),
}

var gpsNames = map[uint16]string{
	0x0000: string(exif.GPSVersionID),
	0x0001: string(exif.GPSLatitudeRef),
	0x0002: string(exif.GPSLatitude),
	0x0003: string(exif.GPSLongitudeRef),
	0x0004: string(exif.GPSLongitude),
	0x0006: string(exif.GPSAltitude),
}

var interopNames = map[uint16]string{
	0x0001: "InteroperabilityIndex",
}

// TagName returns the flat-table name of tag id found in the named IFD.
// IFD0 and the Exif IFD share one namespace; GPS and Interop tags get a prefix
// when unknown because their ids overlap with IFD0 ids.
func TagName(ifd string, id uint16) string {
	switch ifd {
	case IFDGPS:
		if name, ok := gpsNames[id]; ok {
			return name
		}
		return fmt.Sprintf("GPSTag0x%04X", id)
	case IFDInterop:
		if name, ok := interopNames[id]; ok {
			return name
		}
		return fmt.Sprintf("InteropTag0x%04X", id)
	}
	if name, ok := ifd0Names[id]; ok {
		return name
	}
	if name, ok := exifNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Tag0x%04X", id)
}

func isXPTag(id uint16) bool {
	return id >= TagXPTitle && id <= TagXPSubject
}
