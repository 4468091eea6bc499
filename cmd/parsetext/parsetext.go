package parsetext

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/cmd"
	"github.com/sagan/aimeta/constants"
	"github.com/sagan/aimeta/features/aiparams"
	"github.com/sagan/aimeta/features/resources"
	"github.com/sagan/aimeta/util"
	"github.com/sagan/aimeta/util/helper"
	"github.com/sagan/aimeta/util/stringutil"
)

var parsetextCmd = &cobra.Command{
	Use:     "parsetext {parameters.txt | -}",
	Aliases: []string{"pt"},
	Short:   "Parse a generation parameters text",
	Long: `Parse a generation parameters text, e.g. the "parameters" PNG text chunk
written by A1111 / Forge, a Civitai parameters dump, or a NovelAI json.

If {parameters.txt} is "-", read from stdin. Non UTF-8 text is decoded
with a detected charset.

Example output (json format):
  {"format":"a1111","parameters":{"Prompt":"a cat","Steps":20,...},"resources":[...]}
`,
	RunE: doParsetext,
	Args: cobra.ExactArgs(1),
}

var (
	flagForce  bool
	flagFormat string
	flagOutput string
)

type output struct {
	Format     aiparams.Format        `json:"format"`
	Parameters *aiparams.Params       `json:"parameters"`
	Resources  []*resources.Reference `json:"resources,omitempty"`
}

func doParsetext(cmd *cobra.Command, args []string) (err error) {
	var input io.Reader
	if args[0] == "-" {
		input = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
	}
	contents, err := io.ReadAll(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	text := stringutil.StringFromBytes(contents)
	params, format := aiparams.Parse(text)

	var buf bytes.Buffer
	switch flagFormat {
	case constants.FORMAT_JSON:
		buf.WriteString(util.ToJson(&output{
			Format:     format,
			Parameters: params,
			Resources:  resources.Extract(text),
		}) + "\n")
	case constants.FORMAT_TEXT:
		buf.WriteString(params.Text() + "\n")
	case constants.FORMAT_TABLE:
		err = params.PrintTable(&buf)
	default:
		err = fmt.Errorf("invalid format %q", flagFormat)
	}
	if err != nil {
		return err
	}
	return helper.WriteOutput(flagOutput, buf.Bytes(), flagForce, cmd.OutOrStdout())
}

func init() {
	parsetextCmd.Flags().BoolVarP(&flagForce, "force", "", false, "Force overwriting without confirmation")
	parsetextCmd.Flags().StringVarP(&flagFormat, "format", "f", constants.FORMAT_JSON,
		"Output format: json, text (normalized A1111 style parameters) or table")
	parsetextCmd.Flags().StringVarP(&flagOutput, "output", "o", "-", `Output file path. Use "-" for stdout`)
	cmd.RootCmd.AddCommand(parsetextCmd)
}
