// get the dimensions of an image or video
package mediainfo

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/cmd"
	"github.com/sagan/aimeta/constants"
	"github.com/sagan/aimeta/features/container"
	"github.com/sagan/aimeta/features/mediainfo"
	"github.com/sagan/aimeta/util"
	"github.com/sagan/aimeta/util/helper"
)

var mediainfoCmd = &cobra.Command{
	Use:     "mediainfo {foo.png | -}",
	Aliases: []string{"mi"},
	Short:   "Get the image / video info",
	Long: `Get the image / video info.

If {foo.png} is "-", read from stdin.
It outputs to stdout by default.

Example output:
  {"format":"png","width":1024,"height":1536,"signature":""}

Fields:
- format: image format, or the ffprobe format name of a video
- width, height: dimensions
- duration: video duration (seconds string). Requires ffprobe in PATH
- signature: with --signature, sha256 of the visible pixel data
`,
	RunE: doMediainfo,
	Args: cobra.ExactArgs(1),
}

var (
	flagForce     bool
	flagSignature bool
	flagOutput    string
	flagTemplate  string
)

func doMediainfo(command *cobra.Command, args []string) (err error) {
	input, err := helper.ReadInput(args[0], command.InOrStdin())
	if err != nil {
		return err
	}
	var info *mediainfo.Info
	if container.DetectType(input.Data, container.ParseFileType(input.Declared)) == container.Video {
		mediainfo.Init()
		info, err = mediainfo.ProbeVideo(command.Context(), input.Data)
	} else {
		info, err = mediainfo.ProbeImage(input.Data)
		if err == nil && flagSignature {
			info.Signature, err = mediainfo.Signature(input.Data)
		}
	}
	if err != nil {
		return err
	}
	output := util.ToJson(info)
	if flagTemplate != "" {
		tpl, err := helper.GetTemplate(flagTemplate, true)
		if err != nil {
			return err
		}
		if output, err = tpl.Exec(util.FromJson(output)); err != nil {
			return err
		}
	}
	return helper.WriteOutput(flagOutput, fmt.Appendln(nil, output), flagForce, command.OutOrStdout())
}

func init() {
	mediainfoCmd.Flags().BoolVarP(&flagForce, "force", "", false, "Force overwriting without confirmation")
	mediainfoCmd.Flags().BoolVarP(&flagSignature, "signature", "", false, "Decode the image pixels and output the signature")
	mediainfoCmd.Flags().StringVarP(&flagOutput, "output", "o", "-", `Output file path. Use "-" for stdout`)
	mediainfoCmd.Flags().StringVarP(&flagTemplate, "template", "t", "", `Template to format the output. `+
		constants.HELP_TEMPLATE_FLAG)
	cmd.RootCmd.AddCommand(mediainfoCmd)
}
