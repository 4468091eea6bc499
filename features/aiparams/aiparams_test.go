package aiparams

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"
)

func values(p *Params) map[string]any {
	m := map[string]any{}
	for _, key := range p.Keys() {
		m[key], _ = p.Get(key)
	}
	return m
}

func TestParseLayouts(t *testing.T) {
	want := map[string]any{
		KeyPrompt:         "a cat",
		KeyNegativePrompt: "blurry, low quality",
		KeySteps:          int64(20),
		KeySampler:        "Euler",
	}
	tests := []struct {
		name   string
		text   string
		format Format
	}{
		{"quoted", `"a cat","blurry, low quality","Steps: 20, Sampler: Euler"`, FormatQuoted},
		{"quoted with spaces", `"a cat", "blurry, low quality", "Steps: 20, Sampler: Euler"`, FormatQuoted},
		{"traditional", "a cat\nNegative prompt: blurry, low quality\nSteps: 20, Sampler: Euler", FormatTraditional},
		{"lower case markers", "a cat,\nnegative prompt: blurry, low quality,\nsteps: 20, Sampler: Euler", FormatTraditional},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, format := Parse(tt.text)
			if format != tt.format {
				t.Errorf("format = %q, want %q", format, tt.format)
			}
			if got := values(params); !reflect.DeepEqual(got, want) {
				t.Errorf("params = %v, want %v", got, want)
			}
		})
	}
}

func TestParseQuotedEscapes(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		prompt   string
		negative string
	}{
		{"escaped quotes", `"a cat, \"quoted\" thing","blurry","Steps: 20"`, `a cat, "quoted" thing`, "blurry"},
		{"escaped quote before comma", `"sign \"open\", neon","\"text\"","Steps: 20"`, `sign "open", neon`, `"text"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, format := Parse(tt.text)
			if format != FormatQuoted {
				t.Fatalf("format = %q, want %q", format, FormatQuoted)
			}
			if got := params.GetString(KeyPrompt); got != tt.prompt {
				t.Errorf("Prompt = %q, want %q", got, tt.prompt)
			}
			if got := params.GetString(KeyNegativePrompt); got != tt.negative {
				t.Errorf("Negative prompt = %q, want %q", got, tt.negative)
			}
			if got, _ := params.Get(KeySteps); got != int64(20) {
				t.Errorf("Steps = %v", got)
			}
		})
	}
}

func TestParseSingleLine(t *testing.T) {
	text := `a cat, masterpiece, Steps: 20, Sampler: DPM++ 2M Karras, CFG scale: 7.5, Seed: 12345, ` +
		`Size: 512x768, Model hash: 6ce0161689, Model: v1-5, ` +
		`Lora hashes: "add_detail: 7c6bad76eb54, more: 0123456789ab", ` +
		`Hashes: {"model": "6ce0161689", "lora:add_detail": "7c6bad76eb54"}, Version: v1.6.0`
	params, format := Parse(text)
	if format != FormatTraditional {
		t.Errorf("format = %q", format)
	}
	wantKeys := []string{KeyPrompt, KeySteps, KeySampler, KeyCFGScale, KeySeed, KeyWidth, KeyHeight,
		KeyModelHash, KeyModel, "Lora hashes", "Hashes", KeyVersion}
	if !reflect.DeepEqual(params.Keys(), wantKeys) {
		t.Errorf("keys = %q, want %q", params.Keys(), wantKeys)
	}
	want := map[string]any{
		KeyPrompt:     "a cat, masterpiece",
		KeySteps:      int64(20),
		KeySampler:    "DPM++ 2M Karras",
		KeyCFGScale:   7.5,
		KeySeed:       int64(12345),
		KeyWidth:      int64(512),
		KeyHeight:     int64(768),
		KeyModelHash:  "6ce0161689",
		KeyModel:      "v1-5",
		"Lora hashes": "add_detail: 7c6bad76eb54, more: 0123456789ab",
		"Hashes":      `{"model": "6ce0161689", "lora:add_detail": "7c6bad76eb54"}`,
		KeyVersion:    "v1.6.0",
	}
	if got := values(params); !reflect.DeepEqual(got, want) {
		t.Errorf("params = %v, want %v", got, want)
	}

	t.Run("round trip", func(t *testing.T) {
		again, _ := Parse(params.Text())
		if !reflect.DeepEqual(values(again), want) {
			t.Errorf("Parse(Text()) = %v\ntext: %s", values(again), params.Text())
		}
	})
}

func TestParseMarkerAtLineStart(t *testing.T) {
	params, _ := Parse("photo of a sign saying Steps: none\nSteps: 20, Seed: 5")
	if got := params.GetString(KeyPrompt); got != "photo of a sign saying Steps: none" {
		t.Errorf("Prompt = %q", got)
	}
	if got, _ := params.Get(KeySeed); got != int64(5) {
		t.Errorf("Seed = %v", got)
	}
}

func TestParseJSON(t *testing.T) {
	t.Run("comfy graph", func(t *testing.T) {
		params, format := Parse(`{"3":{"class_type":"KSampler","inputs":{"seed":1}}}`)
		if format != FormatComfyJSON || params.Len() != 0 {
			t.Errorf("format = %q, params = %v", format, values(params))
		}
	})
	t.Run("comfy graph with NaN", func(t *testing.T) {
		_, format := Parse(`{"3":{"class_type":"KSampler","is_changed":NaN}}`)
		if format != FormatComfyJSON {
			t.Errorf("format = %q", format)
		}
	})
	t.Run("novelai", func(t *testing.T) {
		params, format := Parse(`{"prompt":"1girl","uc":"lowres","steps":28,"scale":5.5,"seed":3960012345,` +
			`"sampler":"k_euler","width":832,"height":1216,"n_samples":1,"noise_schedule":"native","extra":{"a":1}}`)
		if format != FormatJSON {
			t.Errorf("format = %q", format)
		}
		wantKeys := []string{KeyPrompt, KeyNegativePrompt, KeySteps, KeySampler, KeyScheduleType, KeyCFGScale,
			KeySeed, KeyWidth, KeyHeight, "n_samples"}
		if !reflect.DeepEqual(params.Keys(), wantKeys) {
			t.Errorf("keys = %q", params.Keys())
		}
		if got, _ := params.Get(KeySeed); got != int64(3960012345) {
			t.Errorf("Seed = %v", got)
		}
		if got, _ := params.Get(KeyCFGScale); got != 5.5 {
			t.Errorf("CFG scale = %v", got)
		}
	})
}

func TestParsePlainAndEmpty(t *testing.T) {
	params, format := Parse("  Created with GIMP ")
	if format != FormatPlain || params.GetString(KeyPrompt) != "Created with GIMP" {
		t.Errorf("format = %q, params = %v", format, values(params))
	}
	if _, format := Parse(" ,\n "); format != FormatEmpty {
		t.Errorf("format = %q, want empty", format)
	}
}

func TestTypedValue(t *testing.T) {
	tests := []struct {
		key, value string
		want       any
	}{
		{KeySteps, "30", int64(30)},
		{KeySeed, "18446744073709551615", "18446744073709551615"},
		{KeyCFGScale, "7", 7.0},
		{KeyModelHash, "1234567890", "1234567890"},
		{"ADetailer confidence", "0.3", 0.3},
		{"ADetailer model", "face_yolov8n.pt", "face_yolov8n.pt"},
		{"ADetailer dilate erode", "4", int64(4)},
		{KeySampler, "12", "12"},
	}
	for _, tt := range tests {
		if got := typedValue(tt.key, tt.value); got != tt.want {
			t.Errorf("typedValue(%q, %q) = %#v, want %#v", tt.key, tt.value, got, tt.want)
		}
	}
}

func TestParamsConfidence(t *testing.T) {
	p := New()
	p.SetWith(KeyPrompt, "from workflow", ConfidenceWorkflow)
	if p.Set(KeyPrompt, "from text") {
		t.Errorf("text value replaced a workflow value")
	}
	p.Set(KeySteps, int64(20))
	if !p.SetWith(KeySteps, int64(30), ConfidenceWorkflow) {
		t.Errorf("workflow value did not replace a text value")
	}
	if p.Set(KeySampler, "") {
		t.Errorf("empty value stored")
	}
	if p.Set(KeyWidth, int64(512)) {
		t.Errorf("Width stored without Height")
	}
	p.SetSize(512, 768, ConfidenceText)
	if p.SetSize(1024, 1024, ConfidenceText) {
		t.Errorf("size replaced by an equal confidence value")
	}
	other := New()
	other.Set(KeyPrompt, "other")
	other.Set("Extra", "x")
	other.SetSize(64, 64, ConfidenceWorkflow)
	p.Merge(other)
	want := map[string]any{
		KeyPrompt: "from workflow",
		KeySteps:  int64(30),
		KeyWidth:  int64(64),
		KeyHeight: int64(64),
		"Extra":   "x",
	}
	if got := values(p); !reflect.DeepEqual(got, want) {
		t.Errorf("params = %v, want %v", got, want)
	}
}

func TestParamsJSONAndTable(t *testing.T) {
	p := New()
	p.Set(KeyPrompt, "a\nb")
	p.Set(KeySteps, int64(4))
	p.SetSize(8, 16, ConfidenceText)
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"Prompt":"a\nb","Steps":4,"Width":8,"Height":16}`; string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
	var buf bytes.Buffer
	if err := p.PrintTable(&buf); err != nil {
		t.Fatal(err)
	}
	want := "Prompt  a\n        b\nSteps   4\nWidth   8\nHeight  16\n"
	if buf.String() != want {
		t.Errorf("table = %q, want %q", buf.String(), want)
	}
	if text := p.Text(); text != "a\nb\nSteps: 4, Size: 8x16" {
		t.Errorf("Text() = %q", text)
	}
}
