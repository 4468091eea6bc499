package jsonschema

import (
	"encoding/json"
	"fmt"

	inferer "github.com/JLugagne/jsonschema-infer"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/cmd"
	"github.com/sagan/aimeta/features/container"
	"github.com/sagan/aimeta/features/extractor"
	"github.com/sagan/aimeta/util"
	"github.com/sagan/aimeta/util/helper"
)

var jsonschemaCmd = &cobra.Command{
	Use:   "jsonschema [foo.png | -]...",
	Short: "Output the json schema of the extract output record",
	Long: `Output the json schema of the extract output record.

Without args, the schema is generated from the Go types of the record.
With sample files (globs, "-" for stdin), the schema is inferred from
their actual extraction output instead, e.g. to see which parameters
a set of images share.
`,
	RunE: doJsonschema,
}

var (
	flagForce  bool
	flagOutput string
)

func doJsonschema(command *cobra.Command, args []string) (err error) {
	var output []byte
	if len(args) == 0 {
		schema := jsonschema.Reflect(&extractor.Result{})
		if output, err = json.MarshalIndent(schema, "", "  "); err != nil {
			return err
		}
	} else {
		generator := inferer.New()
		for _, name := range helper.ParseFilenameArgs(args...) {
			input, err := helper.ReadInput(name, command.InOrStdin())
			if err != nil {
				return err
			}
			result := extractor.Extract(input.Data, container.ParseFileType(input.Declared), nil)
			if !result.Found() {
				return fmt.Errorf("%s: no metadata found", name)
			}
			generator.AddSample(util.ToJson(result))
		}
		schema, err := generator.Generate()
		if err != nil {
			return err
		}
		output = []byte(schema)
	}
	output = append(output, '\n')
	return helper.WriteOutput(flagOutput, output, flagForce, command.OutOrStdout())
}

func init() {
	jsonschemaCmd.Flags().BoolVarP(&flagForce, "force", "", false, "Force overwriting without confirmation")
	jsonschemaCmd.Flags().StringVarP(&flagOutput, "output", "o", "-", `Output file path. Use "-" for stdout`)
	cmd.RootCmd.AddCommand(jsonschemaCmd)
}
