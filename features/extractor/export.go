package extractor

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sagan/aimeta/util/stringutil"
)

var ErrNoWorkflow = errors.New("no workflow found")

// WorkflowJSON returns the workflow document for export: the indented full
// workflow, else the indented reduced prompt. A workflow that is not valid
// JSON is returned as its original text.
func (r *Result) WorkflowJSON() ([]byte, error) {
	w := r.Workflow
	if w == nil || (!w.Valid && r.Prompt != nil) {
		w = r.Prompt
	}
	if w == nil {
		return nil, ErrNoWorkflow
	}
	if !w.Valid {
		return []byte(w.Text), nil
	}
	return w.MarshalIndent()
}

// ParametersText returns the A1111 style parameters dump.
func (r *Result) ParametersText() string {
	return r.Params.Text()
}

// PrintSummary writes a human readable report: dimensions, the aligned
// parameters table, resources or resolved models, and warnings.
func (r *Result) PrintSummary(w io.Writer) error {
	header := string(r.Format)
	if r.Image != nil {
		header += fmt.Sprintf(" %dx%d", r.Image.Width, r.Image.Height)
	}
	if r.File != "" {
		header = r.File + ": " + header
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if !r.Found() {
		_, err := fmt.Fprintln(w, "No metadata found")
		return err
	}
	if r.Params.Len() > 0 {
		if err := r.Params.PrintTable(w); err != nil {
			return err
		}
	}
	if r.Workflow != nil || r.Prompt != nil {
		var parts []string
		if r.Workflow != nil {
			parts = append(parts, fmt.Sprintf("workflow (%s, valid=%t)", r.Workflow.Variant, r.Workflow.Valid))
		}
		if r.Prompt != nil {
			parts = append(parts, fmt.Sprintf("prompt (%d nodes)", len(r.Prompt.Nodes)))
		}
		fmt.Fprintf(w, "ComfyUI: %s\n", strings.Join(parts, ", "))
	}
	switch {
	case len(r.Models) > 0:
		fmt.Fprintln(w, "Models:")
		for _, m := range r.Models {
			status := "resolved"
			if !m.Resolved {
				status = "unresolved"
			}
			fmt.Fprintf(w, "  %s %s %s  %s\n", stringutil.PadRight(m.DisplayType, 12),
				stringutil.PadRight(m.Name, 32), status, m.URL)
		}
	case len(r.Resources) > 0:
		fmt.Fprintln(w, "Resources:")
		for _, ref := range r.Resources {
			fmt.Fprintf(w, "  %s %s %s\n", stringutil.PadRight(ref.Type, 16), stringutil.PadRight(ref.Name, 32), ref.Hash)
		}
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}
