package xmp

import (
	"encoding/binary"
	"strings"
	"testing"
)

const testGUID = "0123456789ABCDEF0123456789ABCDEF"

func extendedChunk(guid string, total, offset int, data string) []byte {
	out := []byte(ExtendedPreamble + guid)
	out = binary.BigEndian.AppendUint32(out, uint32(total))
	out = binary.BigEndian.AppendUint32(out, uint32(offset))
	return append(out, data...)
}

func TestAssemblerStandard(t *testing.T) {
	a := NewAssembler()
	packet := `<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:Description>` +
		`<sd:parameters>a cat &amp; a dog
Steps: 20</sd:parameters></rdf:Description></x:xmpmeta>`
	if !a.Add([]byte(StandardPreamble + packet)) {
		t.Fatalf("Add() = false for a standard packet")
	}
	if a.Add([]byte("Exif\x00\x00II*\x00")) {
		t.Errorf("Add() = true for an EXIF segment")
	}
	doc := a.Result()
	if doc == nil {
		t.Fatalf("Result() = nil")
	}
	if doc.Parameters != "a cat & a dog\nSteps: 20" {
		t.Errorf("Parameters = %q", doc.Parameters)
	}
	if doc.XML != packet {
		t.Errorf("XML = %q", doc.XML)
	}
}

func TestAssemblerExtendedOutOfOrder(t *testing.T) {
	extended := `<rdf:Description><comfy:workflow>{"nodes":[]}</comfy:workflow></rdf:Description>`
	split := 20
	a := NewAssembler()
	a.Add([]byte(StandardPreamble + `<x:xmpmeta xmpNote:HasExtendedXMP="` + testGUID + `"/>`))
	a.Add(extendedChunk(testGUID, len(extended), split, extended[split:]))
	a.Add(extendedChunk(testGUID, len(extended), 0, extended[:split]))
	doc := a.Result()
	if doc.ExtendedGUID != testGUID {
		t.Errorf("ExtendedGUID = %q", doc.ExtendedGUID)
	}
	if len(doc.Incomplete) != 0 {
		t.Errorf("Incomplete = %v", doc.Incomplete)
	}
	if !strings.Contains(doc.XML, extended) {
		t.Errorf("XML does not contain reassembled packet: %q", doc.XML)
	}
	if doc.Workflow != `{"nodes":[]}` {
		t.Errorf("Workflow = %q", doc.Workflow)
	}
}

func TestAssemblerExtendedIncomplete(t *testing.T) {
	a := NewAssembler()
	a.Add(extendedChunk(testGUID, 100, 50, strings.Repeat("x", 50)))
	a.Add(extendedChunk(testGUID, 100, 90, strings.Repeat("y", 20)))
	doc := a.Result()
	if len(doc.Incomplete) != 1 || doc.Incomplete[0] != testGUID {
		t.Errorf("Incomplete = %v", doc.Incomplete)
	}
	if doc.XML != "" {
		t.Errorf("XML = %q, want empty", doc.XML)
	}
	// The out of range chunk and the incomplete packet.
	if len(doc.Warnings) != 2 {
		t.Errorf("Warnings = %v", doc.Warnings)
	}
}

func TestAssemblerBarePackets(t *testing.T) {
	a := NewAssembler()
	a.AddPacket([]byte(`<?xpacket begin=""?><rdf:Description sd:parameters="first &quot;quoted&quot;"/>`))
	a.AddPacket([]byte("   "))
	if !a.Add([]byte("\n<x:xmpmeta/>")) {
		t.Errorf("Add() = false for a bare packet")
	}
	doc := a.Result()
	if doc.Parameters != `first "quoted"` {
		t.Errorf("Parameters = %q", doc.Parameters)
	}
	if got := strings.Count(doc.XML, "\n"); got != 2 {
		t.Errorf("packets not joined in order: %q", doc.XML)
	}
}

func TestAssemblerEmpty(t *testing.T) {
	if doc := NewAssembler().Result(); doc != nil {
		t.Errorf("Result() = %+v, want nil", doc)
	}
	if IsXMPSegment([]byte("random")) {
		t.Errorf("IsXMPSegment(random) = true")
	}
}
