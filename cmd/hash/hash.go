package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/cmd"
	"github.com/sagan/aimeta/features/resources"
	"github.com/sagan/aimeta/util"
	"github.com/sagan/aimeta/util/helper"
)

var hashCmd = &cobra.Command{
	Use:   "hash {model.safetensors | -}...",
	Short: "Calculate the registry hash of local model files",
	Long: `Calculate the registry hash of local model files.

If a file is -, read from stdin.

It outputs in same format as Linux's "sha256sum" util. With --short, the hash
is the 10 chars AutoV2 prefix that A1111 writes in "Model hash" and "Lora hashes".
With --resolve, the files are looked up in the registry by hash and the
resolved records are output as json.`,
	RunE: doHash,
	Args: cobra.MinimumNArgs(1),
}

var (
	flagForce   bool
	flagShort   bool
	flagResolve bool
	flagOutput  string
)

func doHash(command *cobra.Command, args []string) error {
	var buf bytes.Buffer
	var refs []*resources.Reference
	errorCnt := 0
	for _, name := range helper.ParseFilenameArgs(args...) {
		sum, err := sha256File(name, command.InOrStdin())
		if err != nil {
			log.Errorf("%s: %v", name, err)
			errorCnt++
			continue
		}
		if flagShort {
			sum = sum[:resources.HashIdentityLength]
		}
		if flagResolve {
			ref := &resources.Reference{Type: resources.TypeUnknown, Hash: sum}
			if name != "-" {
				ref.Name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
			}
			refs = append(refs, ref)
		} else {
			fmt.Fprintf(&buf, "%s  %s\n", sum, name)
		}
	}
	if flagResolve && len(refs) > 0 {
		resolver, err := cmd.NewResolver(command)
		if err != nil {
			return err
		}
		buf.WriteString(util.ToJson(resolver.ResolveAll(command.Context(), refs)) + "\n")
	}
	if err := helper.WriteOutput(flagOutput, buf.Bytes(), flagForce, command.OutOrStdout()); err != nil {
		return err
	}
	if errorCnt > 0 {
		return fmt.Errorf("%d errors", errorCnt)
	}
	return nil
}

// sha256File streams the file, model files are usually gigabytes.
func sha256File(name string, stdin io.Reader) (string, error) {
	input := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return "", err
		}
		defer f.Close()
		input = f
	}
	h := sha256.New()
	if _, err := io.Copy(h, input); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func init() {
	hashCmd.Flags().BoolVarP(&flagForce, "force", "", false, "Force overwriting without confirmation")
	hashCmd.Flags().BoolVarP(&flagShort, "short", "s", false, "Output the 10 chars AutoV2 hash")
	hashCmd.Flags().BoolVarP(&flagResolve, "resolve", "r", false, "Resolve the files against the registry")
	hashCmd.Flags().StringVarP(&flagOutput, "output", "o", "-", `Output file path. Use "-" for stdout`)
	cmd.AddRegistryFlags(hashCmd)
	cmd.RootCmd.AddCommand(hashCmd)
}
