package aiparams

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sagan/aimeta/util/stringutil"
)

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprint(value)
}

// quoteMetadataValue quotes values that would break the "Key: value, ..."
// layout. JSON object and array values are kept as is.
func quoteMetadataValue(s string) string {
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	if !strings.ContainsAny(s, ",:\n\"") {
		return s
	}
	quoted, _ := json.Marshal(s)
	return string(quoted)
}

// Text renders the parameters in the A1111 text layout, the same layout
// Parse reads back.
func (p *Params) Text() string {
	var sb strings.Builder
	if prompt := p.GetString(KeyPrompt); prompt != "" {
		sb.WriteString(prompt)
		sb.WriteString("\n")
	}
	if negative := p.GetString(KeyNegativePrompt); negative != "" {
		sb.WriteString(negativeMarker + " " + negative + "\n")
	}
	var items []string
	for _, key := range p.keys {
		switch key {
		case KeyPrompt, KeyNegativePrompt, KeyHeight:
			continue
		case KeyWidth:
			items = append(items, fmt.Sprintf("%s: %sx%s", KeySize, p.GetString(KeyWidth), p.GetString(KeyHeight)))
		default:
			items = append(items, key+": "+quoteMetadataValue(formatValue(p.values[key])))
		}
	}
	sb.WriteString(strings.Join(items, ", "))
	return strings.TrimRight(sb.String(), "\n")
}

// PrintTable writes one aligned "key  value" line per parameter. Multi-line
// values are continued on indented lines.
func (p *Params) PrintTable(w io.Writer) error {
	width := 0
	for _, key := range p.keys {
		width = max(width, stringutil.StringWidth(key))
	}
	indent := strings.Repeat(" ", width+2)
	for _, key := range p.keys {
		lines := strings.Split(formatValue(p.values[key]), "\n")
		if _, err := fmt.Fprintf(w, "%s  %s\n", stringutil.PadRight(key, width), lines[0]); err != nil {
			return err
		}
		for _, line := range lines[1:] {
			if _, err := fmt.Fprintf(w, "%s%s\n", indent, line); err != nil {
				return err
			}
		}
	}
	return nil
}
