package extractor

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"math"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/sagan/aimeta/features/aiparams"
	"github.com/sagan/aimeta/features/civitai"
	"github.com/sagan/aimeta/features/comfy"
	"github.com/sagan/aimeta/features/container"
)

const (
	a1111Text = "a cat, masterpiece\nNegative prompt: blurry\nSteps: 20, Sampler: Euler a, CFG scale: 7, " +
		`Seed: 42, Size: 512x768, Model hash: 6ce0161689, Model: v1-5, Lora hashes: "add_detail: 7c6bad76eb54", ` +
		"Version: v1.6.0"
	comfyPrompt = `{"3":{"class_type":"KSampler","inputs":{"seed":7,"steps":30,"cfg":5.5,` +
		`"sampler_name":"euler","scheduler":"normal","denoise":1,"model":["4",0],"positive":["6",0],` +
		`"negative":["7",0],"latent_image":["5",0]}},` +
		`"4":{"class_type":"CheckpointLoaderSimple","inputs":{"ckpt_name":"sdxl.safetensors"}},` +
		`"5":{"class_type":"EmptyLatentImage","inputs":{"width":1024,"height":1024,"batch_size":1}},` +
		`"6":{"class_type":"CLIPTextEncode","inputs":{"text":"a red fox","clip":["4",1]}},` +
		`"7":{"class_type":"CLIPTextEncode","inputs":{"text":"blurry","clip":["4",1]}}}`
	comfyWorkflow = `{"id":"2f1c3a8e-6d2b-4f5e-9a7c-1b2d3e4f5a6b","nodes":[{"id":3,"type":"KSampler",` +
		`"widgets_values":[7,"fixed",30,5.5,"euler","normal",1],"inputs":[]}],"links":[],` +
		`"extra":{"is_changed": NaN},"version":0.4}`
)

func pngChunk(typ string, data []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(typ)
	buf.Write(data)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(append([]byte(typ), data...)))
	return buf.Bytes()
}

func buildPNG(width, height uint32, chunks ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor
	buf.Write(pngChunk("IHDR", ihdr))
	for _, chunk := range chunks {
		buf.Write(chunk)
	}
	buf.Write(pngChunk("IEND", nil))
	return buf.Bytes()
}

func tEXt(keyword, text string) []byte {
	return pngChunk("tEXt", []byte(keyword+"\x00"+text))
}

// buildTIFF returns a little endian TIFF stream with ASCII tags in IFD0.
func buildTIFF(tags map[uint16]string, order []uint16) []byte {
	var header, data bytes.Buffer
	header.WriteString("II")
	binary.Write(&header, binary.LittleEndian, uint16(42))
	binary.Write(&header, binary.LittleEndian, uint32(8))
	binary.Write(&header, binary.LittleEndian, uint16(len(order)))
	dataOffset := 8 + 2 + 12*len(order) + 4
	for _, id := range order {
		value := append([]byte(tags[id]), 0)
		binary.Write(&header, binary.LittleEndian, id)
		binary.Write(&header, binary.LittleEndian, uint16(2))
		binary.Write(&header, binary.LittleEndian, uint32(len(value)))
		binary.Write(&header, binary.LittleEndian, uint32(dataOffset+data.Len()))
		data.Write(value)
	}
	binary.Write(&header, binary.LittleEndian, uint32(0))
	return append(header.Bytes(), data.Bytes()...)
}

func buildWEBP(exif []byte) []byte {
	var body bytes.Buffer
	body.WriteString("WEBP")
	body.WriteString("EXIF")
	binary.Write(&body, binary.LittleEndian, uint32(len(exif)))
	body.Write(exif)
	if len(exif)%2 == 1 {
		body.WriteByte(0)
	}
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(body.Len()))
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func TestExtractA1111PNG(t *testing.T) {
	result := Extract(buildPNG(64, 32, tEXt("parameters", a1111Text)), container.Other, nil)
	if result.Format != container.PNG {
		t.Errorf("format = %q", result.Format)
	}
	if result.Image == nil || result.Image.Width != 64 || result.Image.Height != 32 {
		t.Errorf("image = %+v", result.Image)
	}
	if result.ParamsFormat != aiparams.FormatTraditional {
		t.Errorf("parameters format = %q", result.ParamsFormat)
	}
	for key, want := range map[string]any{
		aiparams.KeyPrompt:         "a cat, masterpiece",
		aiparams.KeyNegativePrompt: "blurry",
		aiparams.KeySteps:          int64(20),
		aiparams.KeyWidth:          int64(512),
		aiparams.KeyHeight:         int64(768),
	} {
		if got, _ := result.Params.Get(key); got != want {
			t.Errorf("%s = %#v, want %#v", key, got, want)
		}
	}
	if keys := result.Raw.Keys(); !reflect.DeepEqual(keys, []string{"parameters", RawHashes}) {
		t.Errorf("raw keys = %q", keys)
	}
	hashes, _ := result.Raw.Get(RawHashes)
	wantHashes := map[string]any{"model:v1-5": "6ce0161689", "lora:add_detail": "7c6bad76eb54"}
	if !reflect.DeepEqual(hashes, wantHashes) {
		t.Errorf("hashes = %v", hashes)
	}
	if len(result.Resources) != 2 {
		t.Errorf("resources = %+v", result.Resources)
	}

	t.Run("exports", func(t *testing.T) {
		if text := result.ParametersText(); !strings.HasPrefix(text, "a cat, masterpiece\nNegative prompt: blurry\nSteps: 20") {
			t.Errorf("ParametersText = %q", text)
		}
		if _, err := result.WorkflowJSON(); err != ErrNoWorkflow {
			t.Errorf("WorkflowJSON error = %v", err)
		}
		var buf bytes.Buffer
		if err := result.PrintSummary(&buf); err != nil {
			t.Fatalf("PrintSummary: %v", err)
		}
		if s := buf.String(); !strings.Contains(s, "png 64x32") || !strings.Contains(s, "add_detail") {
			t.Errorf("summary = %q", s)
		}
	})
}

func TestExtractComfyPNG(t *testing.T) {
	data := buildPNG(8, 8, tEXt("prompt", comfyPrompt), tEXt("workflow", comfyWorkflow))
	result := Extract(data, container.PNG, nil)
	if result.Prompt == nil || result.Prompt.Variant != comfy.ReducedPrompt {
		t.Fatalf("prompt = %+v", result.Prompt)
	}
	if w := result.Workflow; w == nil || w.Variant != comfy.FullWorkflow || !w.Valid || !w.Repaired {
		t.Fatalf("workflow = %+v", result.Workflow)
	}
	for key, want := range map[string]any{
		aiparams.KeyPrompt:         "[CLIPTextEncode] a red fox",
		aiparams.KeyNegativePrompt: "[CLIPTextEncode] blurry",
		aiparams.KeySteps:          int64(30),
		aiparams.KeySeed:           int64(7),
	} {
		if got, _ := result.Params.Get(key); got != want {
			t.Errorf("%s = %#v, want %#v", key, got, want)
		}
	}
	if c := result.Params.Confidence(aiparams.KeyPrompt); c != aiparams.ConfidenceWorkflow {
		t.Errorf("prompt confidence = %v", c)
	}
	if result.ParamsFormat != aiparams.FormatEmpty {
		t.Errorf("parameters format = %q", result.ParamsFormat)
	}
	if keys := result.Raw.Keys(); !reflect.DeepEqual(keys, []string{"prompt", "workflow"}) {
		t.Errorf("raw keys = %q", keys)
	}
	exported, err := result.WorkflowJSON()
	if err != nil {
		t.Fatalf("WorkflowJSON: %v", err)
	}
	if !json.Valid(exported) || !bytes.Contains(exported, []byte(`"NaN"`)) {
		t.Errorf("WorkflowJSON = %s", exported)
	}
}

func TestExtractInvalidWorkflow(t *testing.T) {
	broken := strings.Replace(comfyWorkflow, `"version":0.4`, `"version":Infinity`, 1)
	result := Extract(buildPNG(8, 8, tEXt("workflow", broken)), container.PNG, nil)
	if w := result.Workflow; w == nil || w.Valid || w.Text != broken {
		t.Fatalf("workflow = %+v", result.Workflow)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning")
	}
	exported, err := result.WorkflowJSON()
	if err != nil || string(exported) != broken {
		t.Errorf("WorkflowJSON = %s, %v", exported, err)
	}
}

func TestExtractWEBPExifRouting(t *testing.T) {
	tiff := buildTIFF(map[uint16]string{
		0x010F: "workflow:" + comfyWorkflow,
		0x0110: "prompt:" + comfyPrompt,
	}, []uint16{0x010F, 0x0110})
	result := Extract(buildWEBP(tiff), container.Other, nil)
	if result.Format != container.WEBP {
		t.Errorf("format = %q", result.Format)
	}
	want := []string{RawExifFields, RawExifWorkflow, RawExifPrompt}
	if keys := result.Raw.Keys(); !reflect.DeepEqual(keys, want) {
		t.Errorf("raw keys = %q, want %q", keys, want)
	}
	if result.Workflow == nil || result.Workflow.Variant != comfy.FullWorkflow {
		t.Errorf("workflow = %+v", result.Workflow)
	}
	if result.Prompt == nil || result.Params.GetString(aiparams.KeyPrompt) != "[CLIPTextEncode] a red fox" {
		t.Errorf("prompt = %+v, params = %v", result.Prompt, result.Params.Keys())
	}
}

func TestExtractScanFallback(t *testing.T) {
	data := []byte("\x00\x01\x02junk a cat\nNegative prompt: ugly\nSteps: 20, Sampler: Euler\x00\x00tail")
	result := Extract(data, container.Other, nil)
	if result.Format != container.Other || result.Image != nil {
		t.Errorf("format = %q, image = %+v", result.Format, result.Image)
	}
	if got := result.Params.GetString(aiparams.KeyNegativePrompt); got != "ugly" {
		t.Errorf("negative prompt = %q", got)
	}
	if got, _ := result.Params.Get(aiparams.KeySteps); got != int64(20) {
		t.Errorf("steps = %#v", got)
	}
	if !result.Found() {
		t.Error("Found() = false")
	}

	empty := Extract([]byte("nothing here"), container.Other, nil)
	if empty.Found() || empty.Params.Len() != 0 {
		t.Errorf("unexpected metadata: %v", empty.Raw.Keys())
	}
}

func TestRaw(t *testing.T) {
	raw := NewRaw()
	if key := raw.Add("parameters", "a"); key != "parameters" {
		t.Errorf("key = %q", key)
	}
	if key := raw.Add("parameters", "b"); key != "parameters#2" {
		t.Errorf("key = %q", key)
	}
	raw.Add(RawExifFields, map[string]any{"FNumber": math.NaN()})
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"parameters":"a","parameters#2":"b","EXIF_fields":{"FNumber":"NaN"}}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
	if raw.GetString("parameters#2") != "b" {
		t.Error("GetString")
	}
}

type fakeRegistry struct{}

func (fakeRegistry) ModelVersionByHash(ctx context.Context, hash string) (*civitai.ModelVersion, error) {
	if hash == "6ce0161689" {
		return &civitai.ModelVersion{ID: 1, ModelID: 2, Name: "v1.5",
			Model: &civitai.ModelSummary{Name: "Stable Diffusion", Type: "Checkpoint"}}, nil
	}
	return nil, &civitai.ApiError{Status: http.StatusNotFound, Message: "not found"}
}

func (fakeRegistry) ModelVersion(ctx context.Context, id int64) (*civitai.ModelVersion, error) {
	return nil, &civitai.ApiError{Status: http.StatusNotFound, Message: "not found"}
}

func (fakeRegistry) Model(ctx context.Context, id int64) (*civitai.Model, error) {
	return nil, &civitai.ApiError{Status: http.StatusNotFound, Message: "not found"}
}

func TestResolve(t *testing.T) {
	result := Extract(buildPNG(8, 8, tEXt("parameters", a1111Text)), container.PNG, nil)
	resolver := &civitai.Resolver{Registry: fakeRegistry{}, SiteURL: "https://civitai.example"}
	result.Resolve(context.Background(), resolver)
	if len(result.Models) != 2 {
		t.Fatalf("models = %+v", result.Models)
	}
	if m := result.Models[0]; !m.Resolved || m.Name != "Stable Diffusion" ||
		m.URL != "https://civitai.example/models/2?modelVersionId=1" {
		t.Errorf("models[0] = %+v", m)
	}
	if m := result.Models[1]; m.Resolved || m.URL != "https://civitai.example/search/models?query=add_detail" {
		t.Errorf("models[1] = %+v", m)
	}
}
