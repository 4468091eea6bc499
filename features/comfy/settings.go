package comfy

import (
	"fmt"
	"strings"

	"github.com/sagan/aimeta/features/aiparams"
)

type valueKind int

const (
	kindAny valueKind = iota
	kindInt
	kindFloat
)

type setting struct {
	// input name in a reduced prompt
	input string
	// widgets_values index in a full workflow, -1 for none
	widget int
	key    string
	kind   valueKind
}

// Generation settings carried by node inputs, by node type. Widget indexes
// follow the node's widgets_values layout in saved workflows.
var nodeSettings = map[string][]setting{
	"KSampler": {
		{"seed", 0, aiparams.KeySeed, kindInt},
		{"steps", 2, aiparams.KeySteps, kindInt},
		{"cfg", 3, aiparams.KeyCFGScale, kindFloat},
		{"sampler_name", 4, aiparams.KeySampler, kindAny},
		{"scheduler", 5, aiparams.KeyScheduleType, kindAny},
		{"denoise", 6, aiparams.KeyDenoisingStrength, kindFloat},
	},
	"KSamplerAdvanced": {
		{"noise_seed", 1, aiparams.KeySeed, kindInt},
		{"steps", 3, aiparams.KeySteps, kindInt},
		{"cfg", 4, aiparams.KeyCFGScale, kindFloat},
		{"sampler_name", 5, aiparams.KeySampler, kindAny},
		{"scheduler", 6, aiparams.KeyScheduleType, kindAny},
	},
	"BasicScheduler": {
		{"scheduler", 0, aiparams.KeyScheduleType, kindAny},
		{"steps", 1, aiparams.KeySteps, kindInt},
		{"denoise", 2, aiparams.KeyDenoisingStrength, kindFloat},
	},
	"KSamplerSelect": {
		{"sampler_name", 0, aiparams.KeySampler, kindAny},
	},
	"RandomNoise": {
		{"noise_seed", 0, aiparams.KeySeed, kindInt},
	},
	"DualCLIPLoader": {
		{"type", 2, aiparams.KeyCLIPType, kindAny},
	},
	"CheckpointLoaderSimple": {
		{"ckpt_name", 0, aiparams.KeyModel, kindAny},
	},
}

// Latent image nodes whose width and height give the image size.
var sizeNodes = map[string]bool{
	"EmptyLatentImage":    true,
	"EmptySD3LatentImage": true,
}

// literal returns the literal value of a setting: the reduced prompt input
// unless it is a link, else the widget value.
func (w *Workflow) literal(node *Node, input string, widget int) any {
	if value, ok := node.Inputs[input]; ok {
		if w.IsLink(node, input) {
			return nil
		}
		return value
	}
	return node.Widget(widget)
}

func convert(value any, kind valueKind) any {
	switch kind {
	case kindInt:
		if f, ok := value.(float64); ok && f == float64(int64(f)) {
			return int64(f)
		}
	case kindFloat:
		if i, ok := value.(int64); ok {
			return float64(i)
		}
	}
	switch value.(type) {
	case string, int64, float64, bool:
		return value
	}
	return nil
}

// Params returns the prompts and generation settings of the graph, mapped to
// the parameter names of the text parser, with workflow confidence.
func (w *Workflow) Params() *aiparams.Params {
	params := aiparams.New()
	prompts := w.Prompts()
	params.SetWith(aiparams.KeyPrompt, prompts.Positive, aiparams.ConfidenceWorkflow)
	params.SetWith(aiparams.KeyNegativePrompt, prompts.Negative, aiparams.ConfidenceWorkflow)
	var loras []string
	for _, node := range w.Nodes {
		for _, s := range nodeSettings[node.Type] {
			if value := convert(w.literal(node, s.input, s.widget), s.kind); value != nil {
				params.SetWith(s.key, value, aiparams.ConfidenceWorkflow)
			}
		}
		switch {
		case sizeNodes[node.Type]:
			width, _ := convert(w.literal(node, "width", 0), kindInt).(int64)
			height, _ := convert(w.literal(node, "height", 1), kindInt).(int64)
			params.SetSize(width, height, aiparams.ConfidenceWorkflow)
		case node.Type == "CLIPSetLastLayer":
			if layer, ok := convert(w.literal(node, "stop_at_clip_layer", 0), kindInt).(int64); ok && layer != 0 {
				params.SetWith(aiparams.KeyClipSkip, max(layer, -layer), aiparams.ConfidenceWorkflow)
			}
		case node.Type == "LoraLoader" || node.Type == "LoraLoaderModelOnly":
			name, _ := w.literal(node, "lora_name", 0).(string)
			if name == "" {
				continue
			}
			if strength := convert(w.literal(node, "strength_model", 1), kindFloat); strength != nil {
				name = fmt.Sprintf("%s: %v", name, strength)
			}
			loras = append(loras, name)
		}
	}
	params.SetWith(KeyLoras, strings.Join(loras, ", "), aiparams.ConfidenceWorkflow)
	return params
}

// Parameter name of the LoRA list found in a graph.
const KeyLoras = "LoRAs"
