// Package mediainfo probes the pixel dimensions of image and video files.
package mediainfo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os/exec"
	"sync"

	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type Info struct {
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration,omitempty"`  // video duration (seconds)
	Signature string `json:"signature,omitempty"` // sha256 of pixel data, see PixelDataHashAlphaAware
}

type ffprobeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"` // duration (seconds) string
	} `json:"format"`
}

var (
	initializeOnce sync.Once
	ffprobeExists  bool
)

// Init looks up ffprobe. Safe to call multiples.
func Init() {
	initializeOnce.Do(func() {
		_, err := exec.LookPath("ffprobe")
		if err == nil {
			ffprobeExists = true
		} else {
			log.Debugf(`"ffprobe" not found in PATH, video dimensions are disabled: %v`, err)
		}
	})
}

// ProbeImage reads the format and dimensions from the image header without
// decoding pixels. Supports png, jpeg, gif, webp, bmp and tiff.
func ProbeImage(data []byte) (*Info, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image config: %w", err)
	}
	return &Info{Format: format, Width: config.Width, Height: config.Height}, nil
}

// ProbeVideo runs ffprobe on data. Init must have been called.
func ProbeVideo(ctx context.Context, data []byte) (*Info, error) {
	if !ffprobeExists {
		return nil, fmt.Errorf("ffprobe not found in PATH")
	}
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height", "-show_entries", "format=format_name,duration",
		"-of", "json", "-")
	cmd.Stdin = bytes.NewReader(data)
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var probe *ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, err
	}
	info := &Info{Format: probe.Format.FormatName, Duration: probe.Format.Duration}
	if len(probe.Streams) > 0 {
		info.Width = probe.Streams[0].Width
		info.Height = probe.Streams[0].Height
	}
	return info, nil
}

// Signature decodes the whole image and returns its PixelDataHashAlphaAware.
func Signature(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	return PixelDataHashAlphaAware(img), nil
}

// PixelDataHashAlphaAware returns a SHA-256 hash of the image's pixel data
// as non-premultiplied 8-bit RGBA in scanline order. RGB of fully
// transparent pixels is zeroed, so the hash only changes with visible output.
func PixelDataHashAlphaAware(img image.Image) string {
	b := img.Bounds()
	var nrgba *image.NRGBA
	if v, ok := img.(*image.NRGBA); ok && v.Bounds() == b {
		nrgba = v
	} else {
		nrgba = image.NewNRGBA(b)
		draw.Draw(nrgba, b, img, b.Min, draw.Src)
	}

	h := sha256.New()
	w, hgt := b.Dx(), b.Dy()
	row := make([]byte, w*4)
	for y := range hgt {
		offset := y * nrgba.Stride
		copy(row, nrgba.Pix[offset:offset+w*4])
		for x := range w {
			if i := x * 4; row[i+3] == 0 {
				row[i], row[i+1], row[i+2] = 0, 0, 0
			}
		}
		h.Write(row)
	}
	return hex.EncodeToString(h.Sum(nil))
}
