package index

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/cmd"
	"github.com/sagan/aimeta/features/extractor"
	"github.com/sagan/aimeta/util"
	"github.com/sagan/aimeta/util/helper"
)

var (
	flagNoRecursive bool
	flagForce       bool
	flagConcurrency int
	flagPrefix      string
	flagOutput      string
	flagIncludes    []string
	flagExtensions  []string
)

var indexCmd = &cobra.Command{
	Use:   "index {dir}",
	Short: "Index the generation metadata of the images in a directory",
	Long: `Index the generation metadata of the images in a directory.

It outputs a csv with these columns:
  path,name,dir_path,size,mtime,mdate,format,width,height,params_format,prompt,negative_prompt,
  model,sampler,steps,cfg_scale,seed,workflow,resources,warnings

- params_format: layout of the parameters text ("a1111", "quoted", "json", "comfyui-json"...).
- workflow: the ComfyUI graph variant ("full-workflow", "reduced-prompt"), empty if none.
- resources: the referenced models as "type:name", "|" separated.

Files are extracted concurrently (--concurrency, default from config).
Rows are sorted by path.`,
	Args: cobra.ExactArgs(1),
	RunE: doIndexCmd,
}

func init() {
	indexCmd.Flags().BoolVarP(&flagNoRecursive, "no-recursive", "S", false, "Do not index subdirectories")
	indexCmd.Flags().BoolVarP(&flagForce, "force", "", false, "Force overwriting without confirmation")
	indexCmd.Flags().IntVarP(&flagConcurrency, "concurrency", "", 0, "Max files extracted concurrently")
	indexCmd.Flags().StringVarP(&flagPrefix, "prefix", "", "", `Output csv column names prefix`)
	indexCmd.Flags().StringVarP(&flagOutput, "output", "o", "-", `Output file path. Use "-" for stdout`)
	indexCmd.Flags().StringSliceVarP(&flagIncludes, "includes", "I", nil,
		"Includes columns, comma-separated. Default: all columns")
	indexCmd.Flags().StringSliceVarP(&flagExtensions, "extensions", "", nil,
		"Only index files of extensions, comma-separated. Default: "+strings.Join(DefaultExtensions, ","))
	cmd.RootCmd.AddCommand(indexCmd)
}

func doIndexCmd(command *cobra.Command, args []string) error {
	c, err := cmd.Config()
	if err != nil {
		return err
	}
	if command.Flags().Changed("concurrency") {
		c.Concurrency = flagConcurrency
	}
	exts := DefaultExtensions
	if flagExtensions != nil {
		exts = util.Map(flagExtensions, func(ext string) string {
			return strings.ToLower(strings.TrimPrefix(ext, "."))
		})
	}
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	filelist, err := doIndex(command.Context(), dir, IndexOptions{
		AllowedExts: exts,
		NoRecursive: flagNoRecursive,
		Concurrency: c.Concurrency,
		Extract:     &extractor.Options{ScanLimit: c.ScanLimit},
	})
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := filelist.SaveCsv(&buf, strings.TrimSuffix(flagPrefix, "_"), flagIncludes); err != nil {
		return err
	}
	return helper.WriteOutput(flagOutput, buf.Bytes(), flagForce, command.OutOrStdout())
}
