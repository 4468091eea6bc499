package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/sagan/aimeta/features/xmp"
)

func pngChunk(chunkType string, data []byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
	out = append(out, chunkType...)
	out = append(out, data...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(append([]byte(chunkType), data...)))
}

func deflate(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func buildPNG(chunks ...[]byte) []byte {
	out := []byte(pngSignature)
	out = append(out, pngChunk("IHDR", make([]byte, 13))...)
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return append(out, pngChunk("IEND", nil)...)
}

func jpegSegment(marker byte, payload []byte) []byte {
	out := []byte{0xFF, marker}
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)+2))
	return append(out, payload...)
}

func webpChunk(fourCC string, payload []byte) []byte {
	out := []byte(fourCC)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, payload...)
	if len(payload)%2 == 1 {
		out = append(out, 0)
	}
	return out
}

func buildWEBP(chunks ...[]byte) []byte {
	body := []byte("WEBP")
	for _, chunk := range chunks {
		body = append(body, chunk...)
	}
	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func textsByLogical(h *Harvest) map[string]string {
	texts := map[string]string{}
	for _, chunk := range h.Texts {
		texts[chunk.Logical] = chunk.Text
	}
	return texts
}

func TestWalkPNG(t *testing.T) {
	itxt := append([]byte("workflow\x00\x01\x00en\x00\x00"), deflate(t, `{"nodes":[]}`)...)
	data := buildPNG(
		pngChunk("tEXt", []byte("parameters\x00a cat\nSteps: 20")),
		pngChunk("zTXt", append([]byte("prompt\x00\x00"), deflate(t, `{"3":{"class_type":"KSampler"}}`)...)),
		pngChunk("iTXt", itxt),
		pngChunk("tEXt", []byte("Software\x00caf\xe9")),
		pngChunk("eXIf", []byte("MM\x00\x2A\x00\x00\x00\x08")),
	)
	h := Walk(data, Other, nil)
	if h.Format != PNG {
		t.Errorf("Format = %q", h.Format)
	}
	texts := textsByLogical(h)
	want := map[string]string{
		KeywordParameters: "a cat\nSteps: 20",
		KeywordPrompt:     `{"3":{"class_type":"KSampler"}}`,
		KeywordWorkflow:   `{"nodes":[]}`,
		"software":        "café",
	}
	for key, value := range want {
		if texts[key] != value {
			t.Errorf("text %q = %q, want %q", key, texts[key], value)
		}
	}
	if len(h.Exif) != 1 || string(h.Exif[0][:2]) != "MM" {
		t.Errorf("Exif = %q", h.Exif)
	}
	if h.Fallback != nil || len(h.Warnings) != 0 {
		t.Errorf("Fallback = %v, Warnings = %v", h.Fallback, h.Warnings)
	}
}

func TestWalkPNGTruncated(t *testing.T) {
	data := buildPNG(pngChunk("tEXt", []byte("parameters\x00a dog, Steps: 5")))
	// Drop the IEND chunk and cut into a second tEXt chunk.
	data = data[:len(data)-12]
	data = append(data, pngChunk("tEXt", []byte("comment\x00lost"))[:10]...)
	h := Walk(data, PNG, nil)
	if got := textsByLogical(h)[KeywordParameters]; got != "a dog, Steps: 5" {
		t.Errorf("parameters = %q", got)
	}
	if len(h.Warnings) == 0 {
		t.Errorf("expected a warning for the truncated chunk")
	}
	if h.Fallback != nil {
		t.Errorf("Fallback = %v, want nil when chunks were harvested", h.Fallback)
	}
}

func TestWalkJPEG(t *testing.T) {
	packet := `<x:xmpmeta><sd:parameters>from xmp</sd:parameters></x:xmpmeta>`
	data := []byte{0xFF, markerSOI}
	data = append(data, jpegSegment(0xE0, []byte("JFIF\x00\x01\x01"))...)
	data = append(data, jpegSegment(markerAPP1, []byte(exifSignature+"II\x2A\x00\x08\x00\x00\x00"))...)
	data = append(data, jpegSegment(markerAPP1, []byte(xmp.StandardPreamble+packet))...)
	data = append(data, jpegSegment(markerCOM, []byte("a comment"))...)
	data = append(data, 0xFF, markerSOS, 0x00, 0x02)
	// A segment after SOS must not be read.
	data = append(data, jpegSegment(markerCOM, []byte("after scan"))...)
	h := Walk(data, JPEG, nil)
	if len(h.Exif) != 1 || string(h.Exif[0][:2]) != "II" {
		t.Errorf("Exif = %q", h.Exif)
	}
	if h.XMP == nil || h.XMP.Parameters != "from xmp" {
		t.Errorf("XMP = %+v", h.XMP)
	}
	if len(h.Texts) != 1 || h.Texts[0].Text != "a comment" || h.Texts[0].Logical != KeywordParameters {
		t.Errorf("Texts = %+v", h.Texts)
	}
}

func TestWalkJPEGBadSegment(t *testing.T) {
	data := []byte{0xFF, markerSOI}
	data = append(data, jpegSegment(markerCOM, []byte("kept"))...)
	data = append(data, 0xFF, markerAPP1, 0x40, 0x00, 'E', 'x')
	h := Walk(data, JPEG, nil)
	if len(h.Texts) != 1 || h.Texts[0].Text != "kept" {
		t.Errorf("Texts = %+v", h.Texts)
	}
	if len(h.Warnings) != 1 {
		t.Errorf("Warnings = %v", h.Warnings)
	}
}

func TestWalkWEBP(t *testing.T) {
	tiff := []byte("II\x2A\x00\x08\x00\x00\x00\x00\x00\x00")
	data := buildWEBP(
		webpChunk("VP8X", make([]byte, 10)),
		webpChunk("EXIF", tiff),
		webpChunk("EXIF", append([]byte(exifSignature), tiff...)),
		webpChunk("XMP ", []byte(`<x:xmpmeta><sd:workflow>{"a":1}</sd:workflow>`)),
		webpChunk("XMP ", []byte(`</x:xmpmeta>`)),
	)
	h := Walk(data, Other, nil)
	if h.Format != WEBP {
		t.Errorf("Format = %q", h.Format)
	}
	if len(h.Exif) != 2 {
		t.Fatalf("len(Exif) = %d", len(h.Exif))
	}
	for i, stream := range h.Exif {
		if !bytes.Equal(stream, tiff) {
			t.Errorf("Exif[%d] = %q", i, stream)
		}
	}
	if h.XMP == nil || h.XMP.Workflow != `{"a":1}` {
		t.Errorf("XMP = %+v", h.XMP)
	}
}

func TestWalkFallback(t *testing.T) {
	binaryNoise := "\x00\x00\x01\x9f\xff"
	wrapper := `{"prompt":"{\"3\":{\"class_type\":\"KSampler\"}}","workflow":{"nodes":[]}}`
	data := []byte("\x00\x00\x00\x18ftypmp42" + binaryNoise + wrapper + binaryNoise +
		"a red fox\nNegative prompt: blurry\nSteps: 30, Seed: 1" + binaryNoise)
	h := Walk(data, Video, nil)
	if h.Format != Video || h.Fallback == nil {
		t.Errorf("Format = %q, Fallback = %v", h.Format, h.Fallback)
	}
	texts := textsByLogical(h)
	if texts[KeywordPrompt] != `{"3":{"class_type":"KSampler"}}` {
		t.Errorf("prompt = %q", texts[KeywordPrompt])
	}
	if texts[KeywordWorkflow] != `{"nodes":[]}` {
		t.Errorf("workflow = %q", texts[KeywordWorkflow])
	}
	if texts[KeywordParameters] != "a red fox\nNegative prompt: blurry\nSteps: 30, Seed: 1" {
		t.Errorf("parameters = %q", texts[KeywordParameters])
	}
}

func TestWalkUnrecognized(t *testing.T) {
	h := Walk([]byte("plain text, Steps: 12"), Other, nil)
	if !errors.Is(h.Fallback, ErrUnrecognizedFormat) {
		t.Errorf("Fallback = %v, want ErrUnrecognizedFormat", h.Fallback)
	}
	if got := textsByLogical(h)[KeywordParameters]; got != "plain text, Steps: 12" {
		t.Errorf("parameters = %q", got)
	}
}

func TestScanTextLimit(t *testing.T) {
	data := []byte(strings.Repeat("\x00", 100) + "Steps: 20")
	if chunks := ScanText(data, 50); len(chunks) != 0 {
		t.Errorf("ScanText() beyond limit = %+v", chunks)
	}
	if chunks := ScanText(data, 0); len(chunks) != 1 {
		t.Errorf("ScanText() without limit = %+v", chunks)
	}
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		data     string
		declared FileType
		want     FileType
	}{
		{pngSignature + "rest", Other, PNG},
		{"\xFF\xD8\xFF\xE0", Other, JPEG},
		{"RIFF\x00\x00\x00\x00WEBPVP8 ", Other, WEBP},
		{"GIF89a", Other, GIF},
		{"\x00\x00\x00\x20ftypisom", Other, Video},
		{"\x1A\x45\xDF\xA3", Other, Video},
		{"unknown", JPEG, JPEG},
		{"unknown", "", Other},
	}
	for _, tt := range tests {
		if got := DetectType([]byte(tt.data), tt.declared); got != tt.want {
			t.Errorf("DetectType(%q, %q) = %q, want %q", tt.data, tt.declared, got, tt.want)
		}
	}
	for declared, want := range map[string]FileType{
		"image/png": PNG, ".JPG": JPEG, "video/mp4": Video, "webm": Video, "txt": Other,
	} {
		if got := ParseFileType(declared); got != want {
			t.Errorf("ParseFileType(%q) = %q, want %q", declared, got, want)
		}
	}
}

func TestLogicalKeyword(t *testing.T) {
	for keyword, want := range map[string]string{
		"parameters": KeywordParameters, "UserComment": KeywordParameters, "Description": KeywordParameters,
		"prompt": KeywordPrompt, "ComfyUI_JSON": KeywordWorkflow, "Software": "software",
	} {
		if got := LogicalKeyword(keyword); got != want {
			t.Errorf("LogicalKeyword(%q) = %q, want %q", keyword, got, want)
		}
	}
}
