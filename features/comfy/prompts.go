package comfy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sagan/aimeta/util"
)

type Polarity int

const (
	PolarityUnknown Polarity = iota
	PolarityPositive
	PolarityNegative
)

// Prompts holds the prompt text found in a graph, one "[title] text" line
// per contributing node.
type Prompts struct {
	Positive string `json:"positive,omitempty"`
	Negative string `json:"negative,omitempty"`
}

type promptText struct {
	title    string
	text     string
	polarity Polarity
}

// promptReaders extract the prompt text of known node types. The returned
// polarity is PolarityUnknown when it depends on the graph wiring.
var promptReaders = map[string]func(n *Node) (string, Polarity){
	"easy positive": func(n *Node) (string, Polarity) {
		return firstString(n, "positive", 0), PolarityPositive
	},
	"easy negative": func(n *Node) (string, Polarity) {
		return firstString(n, "negative", 0), PolarityNegative
	},
	"CLIPTextEncode": func(n *Node) (string, Polarity) {
		return firstString(n, "text", 0), PolarityUnknown
	},
	"CLIPTextEncodeSDXL": func(n *Node) (string, Polarity) {
		return firstString(n, "text_g", 6), PolarityUnknown
	},
	"CLIPTextEncodeFlux": func(n *Node) (string, Polarity) {
		return firstString(n, "t5xxl", 1), PolarityUnknown
	},
	"SDPromptReader": func(n *Node) (string, Polarity) {
		if s, ok := n.Widget(2).(string); ok && strings.TrimSpace(s) != "" {
			return s, PolarityPositive
		}
		if s, ok := n.StringInput("positive"); ok {
			return s, PolarityPositive
		}
		s, _ := n.StringInput("text")
		return s, PolarityPositive
	},
}

// firstString returns the literal string input name, else widgets_values[widget].
func firstString(n *Node, name string, widget int) string {
	if s, ok := n.StringInput(name); ok {
		return s
	}
	s, _ := n.Widget(widget).(string)
	return s
}

// polarities marks every node upstream of a "positive" or "negative" input
// (of a sampler, guider or similar) with that polarity. The first mark wins.
func (w *Workflow) polarities() map[string]Polarity {
	marks := map[string]Polarity{}
	for _, node := range w.Nodes {
		for _, input := range []struct {
			name     string
			polarity Polarity
		}{{"positive", PolarityPositive}, {"negative", PolarityNegative}} {
			id, ok := w.Source(node, input.name)
			if !ok {
				continue
			}
			queue := []string{id}
			visited := map[string]bool{}
			for len(queue) > 0 {
				id := queue[0]
				queue = queue[1:]
				if visited[id] {
					continue
				}
				visited[id] = true
				if _, ok := marks[id]; !ok {
					marks[id] = input.polarity
				}
				if upstream := w.Node(id); upstream != nil {
					queue = append(queue, w.sources(upstream)...)
				}
			}
		}
	}
	return marks
}

// sources returns the ids of the nodes linked into node, ordered by input name.
func (w *Workflow) sources(node *Node) []string {
	names := append(util.Keys(node.Inputs), util.Keys(node.inputLinks)...)
	slices.Sort(names)
	var ids []string
	for _, name := range slices.Compact(names) {
		if id, ok := w.Source(node, name); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Prompts extracts the positive and negative prompt text from the graph.
// The polarity of generic text encoders comes from the sampler wiring, else
// from a title containing "negative".
func (w *Workflow) Prompts() Prompts {
	marks := w.polarities()
	var texts []promptText
	for _, node := range w.Nodes {
		reader := promptReaders[node.Type]
		if reader == nil {
			continue
		}
		text, polarity := reader(node)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if polarity == PolarityUnknown {
			polarity = marks[node.ID]
		}
		if polarity == PolarityUnknown {
			if strings.Contains(strings.ToLower(node.Title), "negative") {
				polarity = PolarityNegative
			} else {
				polarity = PolarityPositive
			}
		}
		texts = append(texts, promptText{title: node.DisplayTitle(), text: text, polarity: polarity})
	}
	return Prompts{
		Positive: joinPrompts(texts, PolarityPositive),
		Negative: joinPrompts(texts, PolarityNegative),
	}
}

func joinPrompts(texts []promptText, polarity Polarity) string {
	var matched []promptText
	for _, t := range texts {
		if t.polarity == polarity && !slices.ContainsFunc(matched, func(m promptText) bool { return m.text == t.text }) {
			matched = append(matched, t)
		}
	}
	lines := make([]string, len(matched))
	for i, t := range matched {
		lines[i] = fmt.Sprintf("[%s] %s", t.title, t.text)
	}
	return strings.Join(lines, "\n")
}
