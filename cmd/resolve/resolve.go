package resolve

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/cmd"
	"github.com/sagan/aimeta/constants"
	"github.com/sagan/aimeta/features/resources"
	"github.com/sagan/aimeta/util"
	"github.com/sagan/aimeta/util/helper"
	"github.com/sagan/aimeta/util/stringutil"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve {hash | urn:air:... | model:id[@versionId] | version:versionId}...",
	Short: "Resolve model references against the Civitai registry",
	Long: `Resolve model references against the Civitai registry.

Each arg is a model file hash (AutoV2 / SHA256 prefix), an AIR URN
(e.g. "urn:air:sdxl:lora:civitai:915918@1244133"), "model:{id}[@{versionId}]"
or "version:{versionId}".

References that can not be resolved are output as unresolved records
with a search link. The command fails if none is resolved.
`,
	RunE: doResolve,
	Args: cobra.MinimumNArgs(1),
}

var (
	flagForce  bool
	flagFormat string
	flagOutput string
)

func doResolve(command *cobra.Command, args []string) error {
	var refs []*resources.Reference
	for _, arg := range args {
		ref, err := resources.ParseReference(arg)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	resolver, err := cmd.NewResolver(command)
	if err != nil {
		return err
	}
	models := resolver.ResolveAll(command.Context(), resources.Dedupe(refs))

	var buf bytes.Buffer
	resolvedCnt := 0
	switch flagFormat {
	case constants.FORMAT_JSON:
		buf.WriteString(util.ToJson(models) + "\n")
	case constants.FORMAT_TABLE:
		for _, m := range models {
			fmt.Fprintf(&buf, "%s %s %s %s\n", stringutil.PadRight(m.DisplayType, 12),
				stringutil.PadRight(m.Name, 32), stringutil.PadRight(m.BaseModel, 10), m.URL)
		}
	default:
		return fmt.Errorf("invalid format %q", flagFormat)
	}
	for _, m := range models {
		if m.Resolved {
			resolvedCnt++
		}
	}
	if err := helper.WriteOutput(flagOutput, buf.Bytes(), flagForce, command.OutOrStdout()); err != nil {
		return err
	}
	if resolvedCnt == 0 {
		return fmt.Errorf("no reference resolved")
	}
	return nil
}

func init() {
	resolveCmd.Flags().BoolVarP(&flagForce, "force", "", false, "Force overwriting without confirmation")
	resolveCmd.Flags().StringVarP(&flagFormat, "format", "f", constants.FORMAT_JSON, "Output format: json or table")
	resolveCmd.Flags().StringVarP(&flagOutput, "output", "o", "-", `Output file path. Use "-" for stdout`)
	cmd.AddRegistryFlags(resolveCmd)
	cmd.RootCmd.AddCommand(resolveCmd)
}
