package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sagan/aimeta/config"
	"github.com/sagan/aimeta/constants"
	"github.com/sagan/aimeta/features/civitai"
)

var (
	flagRegistryURL string
	flagAPIKey      string
	flagTimeout     time.Duration
	flagConcurrency int
	flagRetries     int
)

// AddRegistryFlags adds the registry client flags to command.
// They override the env and the config file.
func AddRegistryFlags(command *cobra.Command) {
	command.Flags().StringVarP(&flagRegistryURL, "registry", "", "",
		`Registry api root url. Default: `+constants.DEFAULT_REGISTRY_URL+`. Env: `+constants.ENV_REGISTRY_URL)
	command.Flags().StringVarP(&flagAPIKey, "api-key", "", "",
		`Registry api key. Env: `+constants.ENV_API_KEY+` or `+constants.ENV_CIVITAI_API_KEY)
	command.Flags().DurationVarP(&flagTimeout, "timeout", "", 0,
		`Timeout of each model resolution (e.g. "15s"). Env: `+constants.ENV_TIMEOUT)
	command.Flags().IntVarP(&flagConcurrency, "concurrency", "", 0,
		`Max models resolved concurrently. Env: `+constants.ENV_CONCURRENCY)
	command.Flags().IntVarP(&flagRetries, "retries", "", 0,
		`Retries of temporary registry failures. Env: `+constants.ENV_RETRIES)
}

// ApplyRegistryFlags overrides c with the registry flags set on command.
func ApplyRegistryFlags(command *cobra.Command, c *config.Config) {
	flags := command.Flags()
	if flags.Changed("registry") {
		c.RegistryURL = flagRegistryURL
	}
	if flags.Changed("api-key") {
		c.APIKey = flagAPIKey
	}
	if flags.Changed("timeout") {
		c.Timeout = flagTimeout
	}
	if flags.Changed("concurrency") {
		c.Concurrency = flagConcurrency
	}
	if flags.Changed("retries") {
		c.Retries = flagRetries
	}
}

// NewResolver returns the registry resolver of the effective config.
func NewResolver(command *cobra.Command) (*civitai.Resolver, error) {
	c, err := Config()
	if err != nil {
		return nil, err
	}
	ApplyRegistryFlags(command, c)
	client := civitai.NewClient(c.RegistryURL, c.APIKey)
	client.Retries = c.Retries
	return civitai.NewResolver(client, c.Timeout, c.Concurrency), nil
}
