package stringutil

import (
	"strings"
	"testing"
)

func TestDecodeUTF16Guess(t *testing.T) {
	le := []byte{'S', 0, 't', 0, 'e', 0, 'p', 0, 's', 0}
	be := []byte{0, 'S', 0, 't', 0, 'e', 0, 'p', 0, 's'}
	if got := DecodeUTF16Guess(le); got != "Steps" {
		t.Fatalf("LE: got %q", got)
	}
	if got := DecodeUTF16Guess(be); got != "Steps" {
		t.Fatalf("BE: got %q", got)
	}
	bom := append([]byte{0xFE, 0xFF}, be...)
	if got := DecodeUTF16Guess(bom); got != "Steps" {
		t.Fatalf("BOM: got %q", got)
	}
}

func TestDecodeBest(t *testing.T) {
	if got := DecodeBest([]byte("plain ascii")); got != "plain ascii" {
		t.Fatalf("got %q", got)
	}
	if got := DecodeBest([]byte{'c', 'a', 'f', 0xE9}); got == "" {
		t.Fatal("expected non-empty decode of latin-1 input")
	}
	if got := DecodeLatin1([]byte{'c', 'a', 'f', 0xE9}); got != "café" {
		t.Fatalf("DecodeLatin1 got %q", got)
	}
}

func TestIndexI(t *testing.T) {
	s := "a cat\nNEGATIVE prompt: blurry"
	if got := IndexI(s, "negative prompt:"); got != 6 {
		t.Fatalf("IndexI = %d, want 6", got)
	}
	if got := IndexI("\xffSteps: 1", "steps:"); got != 1 {
		t.Fatalf("IndexI on invalid utf-8 = %d, want 1", got)
	}
}

func TestRatios(t *testing.T) {
	if r := ZeroByteRatio([]byte{0, 1, 0, 1}); r != 0.5 {
		t.Fatalf("ZeroByteRatio = %v", r)
	}
	if r := PrintableASCIIRatio("ab\x01\x02"); r != 0.5 {
		t.Fatalf("PrintableASCIIRatio = %v", r)
	}
	if PadRight("ab", 4) != "ab  " || PadRight("abcdef", 4) != "abcdef" {
		t.Fatal("PadRight mismatch")
	}
}

func TestStringFromBytes(t *testing.T) {
	latin1 := []byte{'c', 'a', 'f', 0xE9, '\r', '\n'}
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"plain", []byte("a\nb"), "a\nb"},
		{"bom", append(append([]byte{}, Utf8bom...), "a\nb"...), "a\nb"},
		{"crlf", []byte("a\r\nb\r\n"), "a\nb\n"},
		{"cr", []byte("a\rb"), "a\nb"},
		{"latin-1", latin1, strings.ReplaceAll(DecodeBest(latin1), "\r\n", "\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringFromBytes(tt.input); got != tt.want {
				t.Errorf("StringFromBytes() = %q, want %q", got, tt.want)
			}
		})
	}
}
