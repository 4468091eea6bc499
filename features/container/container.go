// Package container walks image and video containers and harvests the raw
// metadata payloads they carry: keyword tagged text, EXIF (TIFF) streams and
// XMP packets. It does not interpret the payloads.
package container

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sagan/aimeta/features/xmp"
)

var ErrUnrecognizedFormat = fmt.Errorf("unrecognized container format")

// Default number of leading bytes examined by the text scan fallback.
const DefaultScanLimit = 1 << 20

type TextChunk struct {
	// Keyword as found in the file.
	Keyword string `json:"keyword"`
	// Logical routing keyword, see LogicalKeyword.
	Logical string `json:"logical"`
	Text    string `json:"text"`
	// Where the chunk came from, e.g. "PNG tEXt" or "scan".
	Source string `json:"source"`
}

type Harvest struct {
	Format FileType     `json:"format"`
	Texts  []*TextChunk `json:"texts,omitempty"`
	// TIFF streams (the "Exif\0\0" signature already stripped).
	Exif [][]byte      `json:"-"`
	XMP  *xmp.Document `json:"xmp,omitempty"`
	// Non nil when the text scan fallback was used instead of (or after) a
	// structural walk.
	Fallback error    `json:"-"`
	Warnings []string `json:"warnings,omitempty"`
}

type Options struct {
	// Bytes examined by the text scan fallback. <= 0 means DefaultScanLimit.
	ScanLimit int
}

type walker struct {
	h   *Harvest
	xmp *xmp.Assembler
}

func (w *walker) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Debugf("%s: %s", w.h.Format, msg)
	w.h.Warnings = append(w.h.Warnings, msg)
}

func (w *walker) addText(keyword string, text string, source string) {
	w.h.Texts = append(w.h.Texts, &TextChunk{
		Keyword: keyword,
		Logical: LogicalKeyword(keyword),
		Text:    text,
		Source:  source,
	})
}

// Walk harvests the metadata payloads of data. declared is the type tag
// provided by the caller and is used when sniffing fails. Walk never fails:
// malformed segments are skipped and reported in Harvest.Warnings, and
// formats without a structural walker fall back to the text scan.
func Walk(data []byte, declared FileType, options *Options) *Harvest {
	if options == nil {
		options = &Options{}
	}
	scanLimit := options.ScanLimit
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	format := DetectType(data, declared)
	w := &walker{
		h:   &Harvest{Format: format},
		xmp: xmp.NewAssembler(),
	}
	var err error
	switch format {
	case PNG:
		err = w.walkPNG(data)
	case JPEG:
		err = w.walkJPEG(data)
	case WEBP:
		err = w.walkWEBP(data)
	case GIF, Video:
		w.h.Fallback = fmt.Errorf("%s has no structural walker", format)
	default:
		w.h.Fallback = fmt.Errorf("%w: %s", ErrUnrecognizedFormat, declared)
	}
	if err != nil {
		w.warnf("%v", err)
		if len(w.h.Texts) == 0 && len(w.h.Exif) == 0 {
			w.h.Fallback = err
		}
	}
	if w.h.Fallback != nil {
		w.h.Texts = append(w.h.Texts, ScanText(data, scanLimit)...)
	}
	w.h.XMP = w.xmp.Result()
	if w.h.XMP != nil {
		w.h.Warnings = append(w.h.Warnings, w.h.XMP.Warnings...)
	}
	return w.h
}
