package comfy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sagan/aimeta/util"
)

var ErrMalformedJSON = fmt.Errorf("malformed JSON")

// ComfyUI serializes an unset "is_changed" as a bare NaN token.
var isChangedNaNRegexp = regexp.MustCompile(`"is_changed"\s*:\s*NaN\b`)

const isChangedPlaceholder = `"is_changed":"NaN"`

// RepairJSON substitutes the known malformed tokens of ComfyUI output.
// It reports whether anything was replaced.
func RepairJSON(text string) (string, bool) {
	repaired := isChangedNaNRegexp.ReplaceAllLiteralString(text, isChangedPlaceholder)
	return repaired, repaired != text
}

// trimJSONText strips the whitespace and NUL padding some writers leave
// around a text chunk.
func trimJSONText(text string) string {
	return strings.Trim(text, "\x00 \t\r\n")
}

// Workflow is a parsed node graph of either variant.
type Workflow struct {
	Variant Variant `json:"variant"`
	// False when the text could not be parsed even after repair. Text then
	// holds the original text and the other fields are empty.
	Valid    bool   `json:"valid"`
	Repaired bool   `json:"repaired,omitempty"`
	ID       string `json:"id,omitempty"`
	// The (repaired) graph JSON.
	Graph     json.RawMessage `json:"graph,omitempty"`
	Text      string          `json:"text,omitempty"`
	Nodes     []*Node         `json:"nodes,omitempty"`
	NodeTypes []string        `json:"node_types,omitempty"`
	// link id => origin node id (full workflows only)
	links map[string]string
}

type Node struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	// Literal and linked inputs of a reduced prompt node. Full workflow nodes
	// keep literal values in WidgetsValues and links in inputLinks.
	Inputs        map[string]any `json:"-"`
	WidgetsValues []any          `json:"-"`
	Properties    map[string]any `json:"-"`
	// input name => link id
	inputLinks map[string]string
}

// DisplayTitle returns the node title, falling back to its type.
func (n *Node) DisplayTitle() string {
	if n.Title != "" {
		return n.Title
	}
	return n.Type
}

// StringInput returns the named input if it is a literal string.
func (n *Node) StringInput(name string) (string, bool) {
	s, ok := n.Inputs[name].(string)
	return s, ok
}

// Widget returns widgets_values[i], or nil.
func (n *Node) Widget(i int) any {
	if i >= 0 && i < len(n.WidgetsValues) {
		return n.WidgetsValues[i]
	}
	return nil
}

// ParseWorkflow repairs and parses a workflow-class text. On failure the
// returned Workflow is still usable: Valid is false and Text holds the input.
func ParseWorkflow(text string) (*Workflow, error) {
	repaired, changed := RepairJSON(trimJSONText(text))
	w := &Workflow{Repaired: changed}
	decoder := json.NewDecoder(strings.NewReader(repaired))
	decoder.UseNumber()
	var value any
	err := decoder.Decode(&value)
	if err == nil {
		// Graph must hold exactly one JSON value.
		if _, tokenErr := decoder.Token(); tokenErr != io.EOF {
			err = fmt.Errorf("trailing data after offset %d", decoder.InputOffset())
		}
	}
	if err != nil {
		w.Variant = NotJSON
		w.Text = text
		return w, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	w.Valid = true
	w.Graph = json.RawMessage(repaired)
	if len(repaired) < minArtifactLength {
		w.Variant = PlainJSON
	} else {
		w.Variant = classifyValue(value)
	}
	if object, ok := value.(map[string]any); ok {
		w.ID, _ = object["id"].(string)
	}
	if w.Variant == FullWorkflow || w.Variant == ReducedPrompt {
		w.readNodes([]byte(repaired), value)
	}
	return w, nil
}

func (w *Workflow) readNodes(raw []byte, value any) {
	switch v := value.(type) {
	case []any:
		w.addNodeList(v)
	case map[string]any:
		if list, ok := v["nodes"].([]any); ok {
			w.addNodeList(list)
			w.readLinks(v["links"])
			break
		}
		keys, err := util.ObjectKeys(raw)
		if err != nil {
			log.Debugf("workflow node order: %v", err)
			keys = util.Keys(v)
		}
		for _, key := range keys {
			if object, ok := v[key].(map[string]any); ok {
				w.addNode(key, object)
			}
		}
	}
	for _, node := range w.Nodes {
		if node.Type != "" {
			w.NodeTypes = append(w.NodeTypes, node.Type)
		}
	}
	w.NodeTypes = util.UniqueSlice(w.NodeTypes)
}

func (w *Workflow) addNodeList(list []any) {
	for i, item := range list {
		object, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := util.ToString(object["id"])
		if id == "" {
			id = strconv.Itoa(i)
		}
		w.addNode(id, object)
	}
}

func (w *Workflow) addNode(id string, object map[string]any) {
	node := &Node{ID: id, Inputs: map[string]any{}}
	node.Type, _ = object["class_type"].(string)
	if node.Type == "" {
		node.Type, _ = object["type"].(string)
	}
	node.Title, _ = object["title"].(string)
	if meta, ok := object["_meta"].(map[string]any); ok && node.Title == "" {
		node.Title, _ = meta["title"].(string)
	}
	switch inputs := object["inputs"].(type) {
	case map[string]any:
		for name, value := range inputs {
			node.Inputs[name] = util.JSONScalar(value)
		}
	case []any:
		// full workflow: [{"name": "positive", "link": 4}, ...]
		for _, item := range inputs {
			input, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := input["name"].(string)
			if link := input["link"]; name != "" && link != nil {
				if node.inputLinks == nil {
					node.inputLinks = map[string]string{}
				}
				node.inputLinks[name] = util.ToString(link)
			}
		}
	}
	switch widgets := object["widgets_values"].(type) {
	case []any:
		node.WidgetsValues = util.Map(widgets, util.JSONScalar)
	case map[string]any:
		// some custom nodes store named widgets
		for name, value := range widgets {
			if _, ok := node.Inputs[name]; !ok {
				node.Inputs[name] = util.JSONScalar(value)
			}
		}
	}
	node.Properties, _ = object["properties"].(map[string]any)
	w.Nodes = append(w.Nodes, node)
}

// links: [[link id, origin id, origin slot, target id, target slot, type], ...]
func (w *Workflow) readLinks(value any) {
	list, ok := value.([]any)
	if !ok {
		return
	}
	w.links = map[string]string{}
	for _, item := range list {
		switch link := item.(type) {
		case []any:
			if len(link) >= 2 {
				w.links[util.ToString(link[0])] = util.ToString(link[1])
			}
		case map[string]any:
			w.links[util.ToString(link["id"])] = util.ToString(link["origin_id"])
		}
	}
}

// Node returns the node with id, or nil.
func (w *Workflow) Node(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}
	return nil
}

// Source returns the id of the node feeding input name of node, if the input
// is a link.
func (w *Workflow) Source(node *Node, name string) (string, bool) {
	if link, ok := node.inputLinks[name]; ok {
		id, ok := w.links[link]
		return id, ok
	}
	// reduced prompt: ["6", 0]
	if value, ok := node.Inputs[name].([]any); ok && len(value) == 2 {
		switch id := value[0].(type) {
		case string:
			return id, true
		case json.Number:
			return id.String(), true
		}
	}
	return "", false
}

// IsLink reports whether input name of node is a connection rather than a literal value.
func (w *Workflow) IsLink(node *Node, name string) bool {
	_, ok := w.Source(node, name)
	return ok
}

// MarshalIndent returns the graph as indented JSON for export.
func (w *Workflow) MarshalIndent() ([]byte, error) {
	if !w.Valid {
		return nil, fmt.Errorf("%w: workflow is not valid JSON", ErrMalformedJSON)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, w.Graph, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
