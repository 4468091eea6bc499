// Package xmp reassembles standard and extended XMP packets and scrapes the
// AI generation sections out of the resulting XML.
package xmp

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"html"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/sagan/aimeta/util/stringutil"
)

const (
	StandardPreamble = "http://ns.adobe.com/xap/1.0/\x00"
	ExtendedPreamble = "http://ns.adobe.com/xmp/extension/\x00"
)

const (
	guidLength = 32
	// GUID + total length + chunk offset.
	extendedHeaderLength = guidLength + 8
	// Upper bound of an extended packet; larger declared lengths are dropped.
	MaxExtendedLength = 64 << 20
)

var (
	parametersElementRegexp   = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?parameters\b[^>]*>(.*?)</(?:[\w.-]+:)?parameters>`)
	parametersAttributeRegexp = regexp.MustCompile(`(?s)\s(?:[\w.-]+:)?parameters="([^"]*)"`)
	workflowElementRegexp     = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?workflow\b[^>]*>(.*?)</(?:[\w.-]+:)?workflow>`)
	workflowAttributeRegexp   = regexp.MustCompile(`(?s)\s(?:[\w.-]+:)?workflow="([^"]*)"`)
	hasExtendedRegexp         = regexp.MustCompile(`HasExtendedXMP(?:="|>)([0-9A-Fa-f]{32})`)
)

type Document struct {
	// Standard packets in encounter order followed by completed extended packets.
	XML string `json:"xml"`
	// Content of the <parameters> section, entity-decoded.
	Parameters string `json:"parameters,omitempty"`
	// Content of the <workflow> section, entity-decoded.
	Workflow string `json:"workflow,omitempty"`
	// GUID announced by the standard packet's xmpNote:HasExtendedXMP.
	ExtendedGUID string `json:"extended_guid,omitempty"`
	// GUIDs of extended packets with missing chunks.
	Incomplete []string `json:"incomplete,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

type byteRange struct {
	start, end uint32
}

type extendedPacket struct {
	buf    []byte
	ranges []byteRange
}

func (p *extendedPacket) complete() bool {
	ranges := slices.Clone(p.ranges)
	slices.SortFunc(ranges, func(a, b byteRange) int {
		return cmp.Compare(a.start, b.start)
	})
	var covered uint32
	for _, r := range ranges {
		if r.start > covered {
			return false
		}
		covered = max(covered, r.end)
	}
	return covered == uint32(len(p.buf))
}

// Assembler collects XMP segments of one file. The zero value is not usable;
// use NewAssembler.
type Assembler struct {
	standard []string
	extended map[string]*extendedPacket
	// GUIDs in first-seen order.
	guids    []string
	warnings []string
}

func NewAssembler() *Assembler {
	return &Assembler{extended: map[string]*extendedPacket{}}
}

// IsXMPSegment reports whether segment starts with a standard or extended
// XMP preamble, or looks like a bare XMP packet.
func IsXMPSegment(segment []byte) bool {
	return bytes.HasPrefix(segment, []byte(StandardPreamble)) ||
		bytes.HasPrefix(segment, []byte(ExtendedPreamble)) ||
		looksLikeXML(segment)
}

func looksLikeXML(segment []byte) bool {
	head := segment[:min(len(segment), 256)]
	head = bytes.TrimPrefix(head, []byte("\xEF\xBB\xBF"))
	head = bytes.TrimLeft(head, " \t\r\n")
	return bytes.HasPrefix(head, []byte("<?xpacket")) || bytes.HasPrefix(head, []byte("<x:xmpmeta"))
}

func (a *Assembler) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Debugf("xmp: %s", msg)
	a.warnings = append(a.warnings, msg)
}

// Add consumes one segment (JPEG APP1 payload). It returns false if the
// segment is not XMP.
func (a *Assembler) Add(segment []byte) bool {
	switch {
	case bytes.HasPrefix(segment, []byte(StandardPreamble)):
		a.AddPacket(segment[len(StandardPreamble):])
	case bytes.HasPrefix(segment, []byte(ExtendedPreamble)):
		a.addExtended(segment[len(ExtendedPreamble):])
	case looksLikeXML(segment):
		a.AddPacket(segment)
	default:
		return false
	}
	return true
}

// AddPacket adds a bare XML packet, e.g. a WEBP "XMP " chunk.
func (a *Assembler) AddPacket(packet []byte) {
	text := decodeXMLText(packet)
	if strings.TrimSpace(text) == "" {
		return
	}
	a.standard = append(a.standard, text)
}

func (a *Assembler) addExtended(payload []byte) {
	if len(payload) < extendedHeaderLength {
		a.warnf("extended chunk header truncated (%d bytes)", len(payload))
		return
	}
	guid := string(payload[:guidLength])
	total := binary.BigEndian.Uint32(payload[guidLength:])
	offset := binary.BigEndian.Uint32(payload[guidLength+4:])
	data := payload[extendedHeaderLength:]
	if total > MaxExtendedLength {
		a.warnf("extended packet %s declares %d bytes, dropped", guid, total)
		return
	}
	packet := a.extended[guid]
	if packet == nil {
		packet = &extendedPacket{buf: make([]byte, total)}
		a.extended[guid] = packet
		a.guids = append(a.guids, guid)
	} else if uint32(len(packet.buf)) != total {
		a.warnf("extended packet %s chunk declares total %d, expected %d", guid, total, len(packet.buf))
		return
	}
	end := uint64(offset) + uint64(len(data))
	if end > uint64(total) {
		a.warnf("extended packet %s chunk [%d,%d) exceeds total %d", guid, offset, end, total)
		return
	}
	copy(packet.buf[offset:], data)
	packet.ranges = append(packet.ranges, byteRange{offset, uint32(end)})
}

// Result returns the assembled document, or nil if nothing was collected.
func (a *Assembler) Result() *Document {
	if len(a.standard) == 0 && len(a.extended) == 0 {
		return nil
	}
	doc := &Document{Warnings: slices.Clone(a.warnings)}
	standard := strings.Join(a.standard, "\n")
	if m := hasExtendedRegexp.FindStringSubmatch(standard); m != nil {
		doc.ExtendedGUID = m[1]
	}
	// The announced packet goes first; others follow in arrival order.
	guids := slices.Clone(a.guids)
	if i := slices.Index(guids, doc.ExtendedGUID); i > 0 {
		guids = slices.Delete(guids, i, i+1)
		guids = slices.Insert(guids, 0, doc.ExtendedGUID)
	}
	parts := []string{}
	if standard != "" {
		parts = append(parts, standard)
	}
	for _, guid := range guids {
		packet := a.extended[guid]
		if !packet.complete() {
			doc.Incomplete = append(doc.Incomplete, guid)
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("extended packet %s is incomplete", guid))
			continue
		}
		if text := decodeXMLText(packet.buf); text != "" {
			parts = append(parts, text)
		}
	}
	doc.XML = strings.Join(parts, "\n")
	doc.Parameters = scrape(doc.XML, parametersElementRegexp, parametersAttributeRegexp)
	doc.Workflow = scrape(doc.XML, workflowElementRegexp, workflowAttributeRegexp)
	return doc
}

// scrape returns the first non-empty match of the element form, else of the
// attribute form.
func scrape(xml string, element, attribute *regexp.Regexp) string {
	for _, re := range []*regexp.Regexp{element, attribute} {
		for _, m := range re.FindAllStringSubmatch(xml, -1) {
			if text := strings.TrimSpace(unescape(m[1])); text != "" {
				return text
			}
		}
	}
	return ""
}

func unescape(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<![CDATA[") && strings.HasSuffix(s, "]]>") {
		return s[len("<![CDATA[") : len(s)-len("]]>")]
	}
	return html.UnescapeString(s)
}

func decodeXMLText(data []byte) string {
	data = bytes.TrimRight(data, "\x00")
	if utf8.Valid(data) {
		return strings.TrimPrefix(string(data), "\ufeff")
	}
	return stringutil.DecodeBest(data)
}
