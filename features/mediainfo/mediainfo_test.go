package mediainfo

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestProbeImage(t *testing.T) {
	data := encodePNG(t, image.NewNRGBA(image.Rect(0, 0, 7, 3)))
	info, err := ProbeImage(data)
	if err != nil {
		t.Fatalf("ProbeImage: %v", err)
	}
	if info.Format != "png" || info.Width != 7 || info.Height != 3 {
		t.Errorf("info = %+v", info)
	}
	if _, err := ProbeImage([]byte("not an image")); err == nil {
		t.Error("expected error")
	}
}

func TestSignatureIgnoresInvisiblePixels(t *testing.T) {
	a := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	b := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	a.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 0})
	b.SetNRGBA(0, 0, color.NRGBA{G: 255, A: 0})
	sa, err := Signature(encodePNG(t, a))
	if err != nil {
		t.Fatalf("Signature: %v", err)
	}
	sb, _ := Signature(encodePNG(t, b))
	if sa != sb {
		t.Errorf("signatures differ: %s != %s", sa, sb)
	}
	b.SetNRGBA(1, 1, color.NRGBA{B: 255, A: 255})
	if sc, _ := Signature(encodePNG(t, b)); sc == sa {
		t.Error("visible change did not change the signature")
	}
}
