package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/cmd"
	"github.com/sagan/aimeta/constants"
	"github.com/sagan/aimeta/features/civitai"
	"github.com/sagan/aimeta/features/container"
	"github.com/sagan/aimeta/features/extractor"
	"github.com/sagan/aimeta/util"
	"github.com/sagan/aimeta/util/helper"
	"github.com/sagan/aimeta/util/pathutil"
)

var extractCmd = &cobra.Command{
	Use:     "extract {foo.png | - | data:URL}...",
	Aliases: []string{"x"},
	Short:   "Extract AI generation metadata from images and videos",
	Long: `Extract AI generation metadata from images and videos.

Supported containers: PNG (tEXt / zTXt / iTXt / eXIf), JPEG (APP1 EXIF & XMP, COM),
WEBP (EXIF / XMP chunks); other files (videos) are scanned for embedded text.
Args could be file names, "*.png" style globs, "-" for stdin, or "data:" urls.

Output formats (--format):
- json: the output record. Multiple inputs output an array.
- summary: human readable report.
- text: A1111 style parameters text.
- table: aligned parameters table.

With --resolve, the model resources referenced by the metadata are looked up
in the Civitai registry. With --export-dir, the workflow is written to
"<name>.workflow.json" and the parameters to "<name>.parameters.txt".
`,
	RunE: doExtract,
	Args: cobra.MinimumNArgs(1),
}

var (
	flagResolve   bool
	flagForce     bool
	flagSignature bool
	flagScanLimit int
	flagFormat    string
	flagDeclared  string
	flagOutput    string
	flagTemplate  string
	flagExportDir string
)

func doExtract(command *cobra.Command, args []string) (err error) {
	c, err := cmd.Config()
	if err != nil {
		return err
	}
	if command.Flags().Changed("scan-limit") {
		c.ScanLimit = flagScanLimit
	}
	var resolver *civitai.Resolver
	if flagResolve {
		if resolver, err = cmd.NewResolver(command); err != nil {
			return err
		}
	}
	var tpl *helper.Template
	if flagTemplate != "" {
		if tpl, err = helper.GetTemplate(flagTemplate, false); err != nil {
			return err
		}
	}
	options := &extractor.Options{ScanLimit: c.ScanLimit, Signature: flagSignature}

	var results []*extractor.Result
	errorCnt := 0
	for _, name := range helper.ParseFilenameArgs(args...) {
		input, err := helper.ReadInput(name, command.InOrStdin())
		if err != nil {
			log.Errorf("%s: %v", name, err)
			errorCnt++
			continue
		}
		declared := input.Declared
		if flagDeclared != "" {
			declared = flagDeclared
		}
		result := extractor.Extract(input.Data, container.ParseFileType(declared), options)
		result.File = input.Name
		if resolver != nil {
			result.Resolve(command.Context(), resolver)
		}
		if flagExportDir != "" {
			if err := export(result, flagExportDir); err != nil {
				log.Errorf("%s: %v", name, err)
				errorCnt++
			}
		}
		results = append(results, result)
	}

	var output []byte
	if tpl != nil {
		output, err = render(results, tpl)
	} else {
		output, err = format(results, flagFormat, flagOutput == "-" && helper.IsTerminal(command.OutOrStdout()))
	}
	if err != nil {
		return err
	}
	if err = helper.WriteOutput(flagOutput, output, flagForce, command.OutOrStdout()); err != nil {
		return err
	}
	if errorCnt > 0 {
		return fmt.Errorf("%d errors", errorCnt)
	}
	return nil
}

func format(results []*extractor.Result, outputFormat string, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	switch outputFormat {
	case constants.FORMAT_JSON:
		var value any = results
		if len(results) == 1 {
			value = results[0]
		}
		encoder := json.NewEncoder(&buf)
		encoder.SetEscapeHTML(false)
		if pretty {
			encoder.SetIndent("", "  ")
		}
		if err := encoder.Encode(value); err != nil {
			return nil, err
		}
	case constants.FORMAT_SUMMARY:
		for i, result := range results {
			if i > 0 {
				buf.WriteString("\n")
			}
			if err := result.PrintSummary(&buf); err != nil {
				return nil, err
			}
		}
	case constants.FORMAT_TEXT:
		for _, result := range results {
			if text := result.ParametersText(); text != "" {
				buf.WriteString(text + "\n")
			}
		}
	case constants.FORMAT_TABLE:
		for _, result := range results {
			if err := result.Params.PrintTable(&buf); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("invalid format %q", outputFormat)
	}
	return buf.Bytes(), nil
}

// render executes tpl once per result, one line each.
// The template data is the json form of the result.
func render(results []*extractor.Result, tpl *helper.Template) ([]byte, error) {
	var buf bytes.Buffer
	for _, result := range results {
		output, err := tpl.Exec(util.FromJson(util.ToJson(result)))
		if err != nil {
			return nil, err
		}
		buf.WriteString(output + "\n")
	}
	return buf.Bytes(), nil
}

// export writes the workflow and parameters artifacts of result to dir.
// Existing files are not overwritten; a numeric suffix is added instead
// unless --force is set.
func export(result *extractor.Result, dir string) error {
	write := func(suffix string, data []byte) error {
		name := filepath.Join(dir, pathutil.ExportName(result.File, suffix))
		if !flagForce {
			var err error
			if name, err = helper.GetNewFilePath(dir, filepath.Base(name)); err != nil {
				return err
			}
		}
		log.Infof("export %s", name)
		return helper.WriteOutput(name, data, true, nil)
	}
	workflow, err := result.WorkflowJSON()
	if err != nil && !errors.Is(err, extractor.ErrNoWorkflow) {
		return err
	}
	if workflow != nil {
		if err := write(".workflow.json", workflow); err != nil {
			return err
		}
	}
	if text := result.ParametersText(); text != "" {
		if err := write(".parameters.txt", []byte(text+"\n")); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	extractCmd.Flags().BoolVarP(&flagResolve, "resolve", "r", false, "Resolve the referenced models against the registry")
	extractCmd.Flags().BoolVarP(&flagForce, "force", "", false, "Force overwriting without confirmation")
	extractCmd.Flags().BoolVarP(&flagSignature, "signature", "", false,
		"Decode the image pixels and output the signature (sha256 of visible pixel data)")
	extractCmd.Flags().IntVarP(&flagScanLimit, "scan-limit", "", 0,
		`Max bytes scanned for embedded text in unrecognized files. Env: `+constants.ENV_SCAN_LIMIT)
	extractCmd.Flags().StringVarP(&flagFormat, "format", "f", constants.FORMAT_JSON,
		"Output format: json, summary, text or table")
	extractCmd.Flags().StringVarP(&flagDeclared, "declared", "", "",
		`Declared file type (e.g. "png", "video/mp4"), used when sniffing fails. Default: the file extension`)
	extractCmd.Flags().StringVarP(&flagOutput, "output", "o", "-", `Output file path. Use "-" for stdout`)
	extractCmd.Flags().StringVarP(&flagTemplate, "template", "t", "", `Template to format the output. `+
		constants.HELP_TEMPLATE_FLAG)
	extractCmd.Flags().StringVarP(&flagExportDir, "export-dir", "", "",
		"Export the workflow json and the parameters text of each input to this dir")
	cmd.AddRegistryFlags(extractCmd)
	cmd.RootCmd.AddCommand(extractCmd)
}
