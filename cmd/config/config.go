package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/cmd"
	"github.com/sagan/aimeta/util"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective config",
	Long: `Show the effective config: defaults overridden by the config file,
then by env (including the .env file) and registry flags.
The api key is masked unless --show-key is set.`,
	RunE: doConfig,
	Args: cobra.NoArgs,
}

var (
	flagFormat  string
	flagShowKey bool
)

func doConfig(command *cobra.Command, args []string) error {
	c, err := cmd.Config()
	if err != nil {
		return err
	}
	cmd.ApplyRegistryFlags(command, c)
	if c.APIKey != "" && !flagShowKey {
		c.APIKey = mask(c.APIKey)
	}
	output, err := util.Marshal(flagFormat, c.File())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(command.OutOrStdout(), strings.TrimSpace(string(output)))
	return err
}

func mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func init() {
	configCmd.Flags().StringVarP(&flagFormat, "format", "f", "yaml", "Output format: yaml, toml or json")
	configCmd.Flags().BoolVarP(&flagShowKey, "show-key", "", false, "Show the api key unmasked")
	cmd.AddRegistryFlags(configCmd)
	cmd.RootCmd.AddCommand(configCmd)
}
