// Package extractor runs the metadata extraction pipeline over one file:
// container walk, EXIF and XMP decoding, parameters text parsing, ComfyUI
// graph reading and resource extraction.
package extractor

import (
	"context"
	"fmt"
	"html"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sagan/aimeta/features/aiparams"
	"github.com/sagan/aimeta/features/civitai"
	"github.com/sagan/aimeta/features/comfy"
	"github.com/sagan/aimeta/features/container"
	"github.com/sagan/aimeta/features/mediainfo"
	"github.com/sagan/aimeta/features/resources"
	"github.com/sagan/aimeta/features/tiffexif"
	"github.com/sagan/aimeta/features/xmp"
	"github.com/sagan/aimeta/util"
)

type Options struct {
	// Bytes examined by the text scan fallback, <= 0 means container.DefaultScanLimit.
	ScanLimit int
	// Decode the pixels to compute the image signature.
	Signature bool
}

// Result is the output record of one file. It is read only once returned.
type Result struct {
	File     string             `json:"file,omitempty"`
	Format   container.FileType `json:"format"`
	Image    *mediainfo.Info    `json:"image,omitempty"`
	Raw      *Raw               `json:"raw"`
	Params   *aiparams.Params   `json:"parameters"`
	// Layout of the first accepted parameters text.
	ParamsFormat aiparams.Format `json:"parameters_format,omitempty"`
	// The full workflow, or an invalid one kept as text.
	Workflow *comfy.Workflow `json:"workflow,omitempty"`
	// The reduced prompt graph.
	Prompt    *comfy.Workflow          `json:"prompt,omitempty"`
	Resources []*resources.Reference   `json:"resources,omitempty"`
	Models    []*civitai.ResolvedModel `json:"models,omitempty"`
	Warnings  []string                 `json:"warnings,omitempty"`
}

// Found reports whether any metadata was harvested.
func (r *Result) Found() bool {
	return r.Raw.Len() > 0
}

// Resolve resolves the resources against the registry and stores them in
// Models. Lookup failures become fallback records.
func (r *Result) Resolve(ctx context.Context, resolver *civitai.Resolver) {
	if len(r.Resources) == 0 {
		return
	}
	r.Models = resolver.ResolveAll(ctx, r.Resources)
}

// Raw keywords whose text is taken as a prompt even without any marker.
var plainPromptKeywords = map[string]bool{
	"parameters":       true,
	"description":      true,
	"imagedescription": true,
}

type extraction struct {
	result    *Result
	refs      []*resources.Reference
	scanLimit int
}

func (e *extraction) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Debugf("%s: %s", e.result.File, msg)
	e.result.Warnings = append(e.result.Warnings, msg)
}

// Extract runs the pipeline over data. declared is the type tag given by
// the caller, used when sniffing fails. It never fails: an empty Raw record
// means no metadata was found.
func Extract(data []byte, declared container.FileType, options *Options) *Result {
	if options == nil {
		options = &Options{}
	}
	e := &extraction{
		result: &Result{
			Raw:    NewRaw(),
			Params: aiparams.New(),
		},
		scanLimit: options.ScanLimit,
	}
	if e.scanLimit <= 0 {
		e.scanLimit = container.DefaultScanLimit
	}
	harvest := container.Walk(data, declared, &container.Options{ScanLimit: e.scanLimit})
	e.result.Format = harvest.Format
	e.result.Warnings = append(e.result.Warnings, harvest.Warnings...)
	if harvest.Fallback != nil {
		log.Debugf("text scan: %v", harvest.Fallback)
	}
	for _, chunk := range harvest.Texts {
		e.text(chunk)
	}
	for _, stream := range harvest.Exif {
		e.exif(stream)
	}
	if harvest.XMP != nil {
		e.xmp(harvest.XMP)
	}
	e.finish()
	if harvest.Format != container.Video {
		e.image(data, options.Signature)
	}
	return e.result
}

func (e *extraction) text(chunk *container.TextChunk) {
	e.result.Raw.Add(chunk.Keyword, chunk.Text)
	switch chunk.Logical {
	case container.KeywordParameters:
		e.parameters(chunk.Text, chunk.Keyword)
	case container.KeywordPrompt:
		e.prompt(chunk.Text)
	case container.KeywordWorkflow:
		e.workflow(chunk.Text)
	default:
		if comfy.Classify(chunk.Text) == comfy.ReducedPrompt {
			e.prompt(chunk.Text)
		}
	}
}

func (e *extraction) exif(stream []byte) {
	x, err := tiffexif.Decode(stream)
	if err != nil {
		e.warnf("EXIF: %v", err)
		return
	}
	e.result.Warnings = append(e.result.Warnings, x.Warnings...)
	e.result.Raw.Add(RawExifFields, util.JSONSafe(x.Fields))

	// ComfyUI animated WEBP stores "prompt:{...}" and "workflow:{...}" in Make / Model.
	routed := map[string]bool{}
	for _, name := range []string{tiffexif.NameMake, tiffexif.NameModel, tiffexif.NameImageDescription} {
		key, payload, ok := strings.Cut(x.GetString(name), ":")
		payload = strings.TrimSpace(payload)
		if !ok || !strings.HasPrefix(payload, "{") {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case container.KeywordPrompt:
			e.result.Raw.Add(RawExifPrompt, payload)
			e.prompt(payload)
			routed[name] = true
		case container.KeywordWorkflow:
			e.result.Raw.Add(RawExifWorkflow, payload)
			e.workflow(payload)
			routed[name] = true
		}
	}
	if x.Text != "" && !routed[x.TextSource] {
		e.result.Raw.Add(RawExifText, x.Text)
		e.parameters(x.Text, x.TextSource)
	}
}

func (e *extraction) xmp(doc *xmp.Document) {
	e.result.Raw.Add(RawXMPData, doc.XML)
	if doc.Parameters != "" {
		e.result.Raw.Add(RawXMPParameters, doc.Parameters)
		e.parameters(doc.Parameters, container.KeywordParameters)
	}
	if doc.Workflow != "" {
		e.result.Raw.Add(RawXMPWorkflow, doc.Workflow)
		e.workflow(doc.Workflow)
	}
	if doc.Parameters == "" && doc.Workflow == "" {
		for _, chunk := range container.ScanText([]byte(html.UnescapeString(doc.XML)), e.scanLimit) {
			chunk.Source = "XMP scan"
			e.text(chunk)
		}
	}
}

// parameters handles a parameters-class text. ComfyUI graphs are handed to
// the prompt pipeline. Marker-less text is only a prompt when it comes from
// a parameters or description field.
func (e *extraction) parameters(text string, keyword string) {
	params, format := aiparams.Parse(text)
	if format == aiparams.FormatComfyJSON {
		e.prompt(text)
		return
	}
	if resources.HasMarkers(text) {
		e.refs = append(e.refs, resources.Extract(text)...)
	}
	switch format {
	case aiparams.FormatEmpty:
		return
	case aiparams.FormatPlain:
		if !plainPromptKeywords[strings.ToLower(keyword)] {
			log.Debugf("ignore plain %s text", keyword)
			return
		}
	}
	if e.result.ParamsFormat == aiparams.FormatEmpty {
		e.result.ParamsFormat = format
	}
	e.result.Params.Merge(params)
}

// prompt handles a prompt-class text. It is never parsed as A1111 text.
func (e *extraction) prompt(text string) {
	w, err := comfy.ParseWorkflow(text)
	if err != nil {
		e.warnf("prompt: %v", err)
		return
	}
	switch w.Variant {
	case comfy.FullWorkflow:
		e.setWorkflow(w)
	case comfy.ReducedPrompt:
		e.setPrompt(w)
	case comfy.PlainJSON:
		if params, format := aiparams.Parse(text); format == aiparams.FormatJSON {
			e.result.Params.Merge(params)
		}
	}
}

// workflow handles a workflow-class text. Unparsable text is kept with
// Valid false.
func (e *extraction) workflow(text string) {
	w, err := comfy.ParseWorkflow(text)
	if err != nil {
		e.warnf("workflow: %v", err)
	}
	if w.Variant == comfy.ReducedPrompt {
		e.setPrompt(w)
		return
	}
	e.setWorkflow(w)
}

func (e *extraction) setPrompt(w *comfy.Workflow) {
	if e.result.Prompt == nil {
		e.result.Prompt = w
	}
	e.result.Params.Merge(w.Params())
}

func (e *extraction) setWorkflow(w *comfy.Workflow) {
	if current := e.result.Workflow; current == nil || (!current.Valid && w.Valid) {
		e.result.Workflow = w
	}
	if w.Variant == comfy.FullWorkflow {
		e.result.Params.Merge(w.Params())
	}
}

func (e *extraction) finish() {
	e.result.Resources = resources.Dedupe(e.refs)
	hashes := map[string]any{}
	for _, ref := range e.result.Resources {
		if ref.Hash == "" {
			continue
		}
		key := ref.Prefix
		if ref.Name != "" {
			key += ":" + ref.Name
		}
		hashes[key] = ref.Hash
	}
	if len(hashes) > 0 {
		e.result.Raw.Add(RawHashes, hashes)
	}
}

func (e *extraction) image(data []byte, signature bool) {
	info, err := mediainfo.ProbeImage(data)
	if err != nil {
		log.Debugf("image dimensions: %v", err)
		return
	}
	if signature {
		if info.Signature, err = mediainfo.Signature(data); err != nil {
			e.warnf("signature: %v", err)
		}
	}
	e.result.Image = info
}
