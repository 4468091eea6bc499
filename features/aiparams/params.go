package aiparams

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// Well known parameter names shared by the text and workflow parsers.
const (
	KeyPrompt            = "Prompt"
	KeyNegativePrompt    = "Negative prompt"
	KeySteps             = "Steps"
	KeySampler           = "Sampler"
	KeyScheduleType      = "Schedule type"
	KeyCFGScale          = "CFG scale"
	KeySeed              = "Seed"
	KeySize              = "Size"
	KeyWidth             = "Width"
	KeyHeight            = "Height"
	KeyModel             = "Model"
	KeyModelHash         = "Model hash"
	KeyDenoisingStrength = "Denoising strength"
	KeyClipSkip          = "Clip skip"
	KeyCLIPType          = "CLIP type"
	KeyVersion           = "Version"
)

type Confidence int

const (
	ConfidenceNone Confidence = iota
	// Parsed from free-form parameters text.
	ConfidenceText
	// Derived from a ComfyUI node graph.
	ConfidenceWorkflow
)

// Params is the ordered set of generation parameters of one image.
// Values are string, int64, float64 or bool. Width and Height are only ever
// set together, through SetSize.
type Params struct {
	keys       []string
	values     map[string]any
	confidence map[string]Confidence
}

func New() *Params {
	return &Params{
		values:     map[string]any{},
		confidence: map[string]Confidence{},
	}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}

// Set sets key with text confidence. See SetWith.
func (p *Params) Set(key string, value any) bool {
	return p.SetWith(key, value, ConfidenceText)
}

// SetWith sets key to value unless the current value is non-empty and its
// confidence is not lower than c. Empty values are ignored. Width and Height
// are rejected; use SetSize. It reports whether the value was stored.
func (p *Params) SetWith(key string, value any, c Confidence) bool {
	if key == KeyWidth || key == KeyHeight {
		return false
	}
	return p.set(key, value, c)
}

func (p *Params) set(key string, value any, c Confidence) bool {
	if key == "" || isEmpty(value) {
		return false
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	if current, ok := p.values[key]; ok {
		if !isEmpty(current) && p.confidence[key] >= c {
			return false
		}
	} else {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	p.confidence[key] = c
	return true
}

// SetSize sets Width and Height together. Non positive sizes are ignored.
func (p *Params) SetSize(width, height int64, c Confidence) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	if _, ok := p.values[KeyWidth]; ok && p.confidence[KeyWidth] >= c {
		return false
	}
	p.set(KeyWidth, width, c)
	p.set(KeyHeight, height, c)
	return true
}

func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	value, ok := p.values[key]
	return value, ok
}

// GetString returns the value of key formatted as a string, or "".
func (p *Params) GetString(key string) string {
	value, ok := p.Get(key)
	if !ok {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

func (p *Params) Confidence(key string) Confidence {
	if p == nil {
		return ConfidenceNone
	}
	return p.confidence[key]
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Merge adds the values of other, keeping each value's own confidence.
func (p *Params) Merge(other *Params) {
	if other == nil {
		return
	}
	for _, key := range other.keys {
		switch key {
		case KeyWidth:
			width, _ := other.values[KeyWidth].(int64)
			height, _ := other.values[KeyHeight].(int64)
			p.SetSize(width, height, other.confidence[KeyWidth])
		case KeyHeight:
		default:
			p.set(key, other.values[key], other.confidence[key])
		}
	}
}

// MarshalJSON writes the parameters as an object in insertion order.
func (p *Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.values[key])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (Params) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: "Generation parameters in the order they were found. Values are strings, numbers or booleans.",
	}
}
