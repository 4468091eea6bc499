package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/config"
	"github.com/sagan/aimeta/constants"
	"github.com/sagan/aimeta/version"
)

var RootCmd = &cobra.Command{
	Use:   "aimeta",
	Short: "aimeta " + version.Version,
	Long: `aimeta ` + version.Version + "." + `
Extract AI generation metadata (A1111 / ComfyUI / Civitai parameters, workflows
and model resources) from images and videos, and resolve the referenced models
against the Civitai registry.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		config.LoadDotenv()
		return nil
	},
}

var (
	flagLogLevel string
	// Config file path. Use Config() to get the loaded config.
	FlagConfig string
)

// Config loads the config: the --config file (or $AIMETA_CONFIG), env and
// defaults. Command flags are applied on top by each command.
func Config() (*config.Config, error) {
	return config.Load(FlagConfig)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := RootCmd.ExecuteContext(ctx); err != nil {
		fmt.Printf("%v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&flagLogLevel, "log-level", "", "warn",
		"Log level: panic, fatal, error, warn, info, debug or trace")
	RootCmd.PersistentFlags().StringVarP(&FlagConfig, "config", "", "", constants.HELP_CONFIG_FLAG)
}
