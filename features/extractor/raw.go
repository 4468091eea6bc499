package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/sagan/aimeta/util"
)

// Raw record keys.
const (
	RawExifFields    = "EXIF_fields"
	RawExifText      = "EXIF_text"
	RawExifPrompt    = "EXIF_prompt"
	RawExifWorkflow  = "EXIF_workflow"
	RawXMPData       = "XMP_data"
	RawXMPParameters = "XMP_parameters"
	RawXMPWorkflow   = "XMP_workflow"
	RawHashes        = "hashes"
)

// Raw is the harvested metadata of one file by namespaced key. Values are
// strings, maps or byte blobs. Entries are only ever added: a repeated key
// is stored as "key#2", "key#3"...
type Raw struct {
	keys   []string
	values map[string]any
}

func NewRaw() *Raw {
	return &Raw{values: map[string]any{}}
}

// Add stores value and returns the key it was stored under.
func (r *Raw) Add(key string, value any) string {
	stored := key
	for i := 2; ; i++ {
		if _, ok := r.values[stored]; !ok {
			break
		}
		stored = fmt.Sprintf("%s#%d", key, i)
	}
	r.keys = append(r.keys, stored)
	r.values[stored] = value
	return stored
}

func (r *Raw) Get(key string) (any, bool) {
	value, ok := r.values[key]
	return value, ok
}

// GetString returns the string (or byte blob) value of key.
func (r *Raw) GetString(key string) string {
	switch v := r.values[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (r *Raw) Keys() []string {
	return append([]string(nil), r.keys...)
}

func (r *Raw) Len() int {
	return len(r.keys)
}

// MarshalJSON writes the record as an object in insertion order. Byte blobs
// are base64 encoded, non finite floats become strings.
func (r *Raw) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		v, err := json.Marshal(util.JSONSafe(r.values[key]))
		if err != nil {
			return nil, fmt.Errorf("raw %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (Raw) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: "Harvested metadata by namespaced key, in the order found.",
	}
}
