package util

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"math/rand/v2"
	"mime"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dop251/goja"
	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/jsonc"
	"golang.org/x/exp/constraints"
	"gopkg.in/yaml.v3"
)

func ToJson(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("ToJson error: %v", err)
		return ""
	}
	return string(b)
}

// Parse json string s to a generic value (map[string]any, []any, ...).
// Invalid json yields nil.
func FromJson(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		log.Printf("FromJson error: %v", err)
		return nil
	}
	return v
}

// Check whether a file (or dir) with name exists in file system.
// If it encounter an file system access error, return false,err
func FileExists(name string) (bool, error) {
	_, err := os.Stat(name)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func ParseInt[T constraints.Integer](s string, defaultValue T) T {
	if s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			return T(i)
		}
	}
	return defaultValue
}

// Map applies a function to each element of a slice and returns a new slice containing the results.
// If input is nil, the output will also be nil.
func Map[T1 any, T2 any](ss []T1, mapper func(T1) T2) (ret []T2) {
	for _, s := range ss {
		ret = append(ret, mapper(s))
	}
	return
}

// Keys returns a sorted slice of all keys in the map.
func Keys[T1 cmp.Ordered, T2 any](m map[T1]T2) []T1 {
	keys := make([]T1, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// UniqueSlice returns ss with duplicates removed, keeping the first occurrence order.
func UniqueSlice[T comparable](ss []T) []T {
	seen := map[T]struct{}{}
	var ret []T
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		ret = append(ret, s)
	}
	return ret
}

// ToString converts a scalar value to string. nil becomes "".
func ToString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []byte:
		return string(value)
	case fmt.Stringer:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// Eval runs input (converted to string) as JavaScript in vm and returns the exported result.
func Eval(vm *goja.Runtime, input any) (any, error) {
	v, err := vm.RunString(ToString(input))
	if err != nil {
		return nil, err
	}
	return v.Export(), nil
}

// CalculateBackoff returns the wait before retry attempt (0 based):
// base * 2^attempt capped at maxWait, with up to 50% random jitter removed.
func CalculateBackoff(base, maxWait time.Duration, attempt int) time.Duration {
	wait := maxWait
	if attempt < 32 {
		if w := base << attempt; w > 0 && w < maxWait {
			wait = w
		}
	}
	jitter := time.Duration(rand.Int64N(int64(wait)/2 + 1))
	return wait - jitter
}

// IsTemporaryError reports whether err is a network level failure that may
// succeed on retry: timeouts, connection resets and refusals, unexpected EOF.
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// JSONScalar converts a json.Number (from a decoder with UseNumber) to int64
// if it is integral, else to float64. Other values are returned unchanged.
func JSONScalar(value any) any {
	n, ok := value.(json.Number)
	if !ok {
		return value
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// ObjectKeys returns the keys of the JSON object data in document order.
func ObjectKeys(data []byte) ([]string, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}
	var keys []string
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", token)
		}
		var skip json.RawMessage
		if err := decoder.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// JSONSafe returns value with NaN and infinite floats (which encoding/json
// rejects) replaced by their string forms. Maps and slices are copied.
func JSONSafe(value any) any {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	case []float64:
		if slices.ContainsFunc(v, func(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }) {
			return Map(v, func(f float64) any { return JSONSafe(f) })
		}
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = JSONSafe(item)
		}
		return items
	case map[string]any:
		m := make(map[string]any, len(v))
		for key, item := range v {
			m[key] = JSONSafe(item)
		}
		return m
	}
	return value
}

// Parse http content-type header and return mediatype, e.g. "text/html".
// contentType: the http Content-Type header, e.g. "text/html; charset=utf-8"
func MediaType(contentType string) string {
	if contentType != "" {
		if mediatype, _, err := mime.ParseMediaType(contentType); err == nil {
			return mediatype
		}
	}
	return ""
}

// Unmarshal a json / jsonc / yaml / toml / xml string according to contentType into target.
// contentType could be: a mediatype (e.g. "application/json"), or a file type or extension (e.g. "json" or ".json").
// If contentType is empty or is not a supported type, return an error.
func Unmarshal(contentType string, input io.Reader, target any) error {
	if strings.ContainsRune(contentType, '/') {
		contentType = MediaType(contentType)
	}
	switch contentType {
	case "application/json", "text/json", "json", ".json", "jsonc", ".jsonc",
		"application/yaml", "text/yaml", "yaml", ".yaml", "yml", ".yml",
		"application/xml", "text/xml", "xml", ".xml",
		"application/toml", "text/toml", "toml", ".toml":
	default:
		return fmt.Errorf("Unmarshal: unsupported contentType %s", contentType)
	}
	body, err := io.ReadAll(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %v", err)
	}
	if len(body) == 0 {
		return nil
	}
	switch contentType {
	case "application/json", "text/json", "json", ".json", "jsonc", ".jsonc":
		// jsonc is a superset; plain json passes through unchanged.
		return json.Unmarshal(jsonc.ToJSON(body), target)
	case "application/yaml", "text/yaml", "yaml", ".yaml", "yml", ".yml":
		return yaml.Unmarshal(body, target)
	case "application/xml", "text/xml", "xml", ".xml":
		return xml.Unmarshal(body, target)
	default:
		return toml.Unmarshal(body, target)
	}
}

// Marshal a object to json / yaml / toml / xml string according to contentType.
// contentType could be: a mediatype (e.g. "application/json"), or a file type or extension (e.g. "json" or ".json").
// If contentType is empty or is not a supported type, return an error.
func Marshal(contentType string, input any) (data []byte, err error) {
	if strings.ContainsRune(contentType, '/') {
		contentType = MediaType(contentType)
	}
	switch contentType {
	case "application/json", "text/json", "json", ".json":
		return json.Marshal(input)
	case "application/yaml", "text/yaml", "yaml", ".yaml", "yml", ".yml":
		return yaml.Marshal(input)
	case "application/xml", "text/xml", "xml", ".xml":
		return xml.Marshal(input)
	case "application/toml", "text/toml", "toml", ".toml":
		return toml.Marshal(input)
	default:
		return nil, fmt.Errorf("Marshal: unsupported format %s", contentType)
	}
}
