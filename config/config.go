// Package config loads the settings of the registry client and the
// extractor. Precedence, highest first: command line flag, env, config file,
// default. Flags are applied by the commands on top of Load's result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/sagan/aimeta/constants"
	"github.com/sagan/aimeta/util"
)

type Config struct {
	RegistryURL string
	APIKey      string
	Timeout     time.Duration // per model resolution
	Concurrency int
	Retries     int
	ScanLimit   int // bytes
}

// File is the config file layout. Durations are strings like "15s".
type File struct {
	RegistryURL string `json:"registry_url" yaml:"registry_url" toml:"registry_url"`
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	Timeout     string `json:"timeout" yaml:"timeout" toml:"timeout"`
	Concurrency int    `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
	Retries     *int   `json:"retries" yaml:"retries" toml:"retries"`
	ScanLimit   int    `json:"scan_limit" yaml:"scan_limit" toml:"scan_limit"`
}

// File returns c in the config file layout.
func (c *Config) File() *File {
	retries := c.Retries
	return &File{
		RegistryURL: c.RegistryURL,
		APIKey:      c.APIKey,
		Timeout:     c.Timeout.String(),
		Concurrency: c.Concurrency,
		Retries:     &retries,
		ScanLimit:   c.ScanLimit,
	}
}

func Default() *Config {
	return &Config{
		RegistryURL: constants.DEFAULT_REGISTRY_URL,
		Timeout:     constants.DEFAULT_TIMEOUT,
		Concurrency: constants.DEFAULT_CONCURRENCY,
		Retries:     constants.DEFAULT_RETRIES,
		ScanLimit:   constants.DEFAULT_SCAN_LIMIT,
	}
}

// LoadDotenv loads the .env file of the working directory into the process
// env, if present. Already set env variables are not overridden.
func LoadDotenv() {
	if err := godotenv.Load(constants.DOTENV_FILE); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("failed to load %s: %v", constants.DOTENV_FILE, err)
	}
}

// Load returns the defaults overridden by the config file, then by env.
// file is the config file path; if empty, the ENV_CONFIG env is used and
// no file is read if that is also empty.
func Load(file string) (*Config, error) {
	config := Default()
	if file == "" {
		file = os.Getenv(constants.ENV_CONFIG)
	}
	if file != "" {
		if err := config.loadFile(file); err != nil {
			return nil, fmt.Errorf("config file %q: %w", file, err)
		}
	}
	if err := config.loadEnv(os.Getenv); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadFile(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	var fc File
	if err := util.Unmarshal(strings.ToLower(filepath.Ext(name)), f, &fc); err != nil {
		return err
	}
	if fc.RegistryURL != "" {
		c.RegistryURL = fc.RegistryURL
	}
	if fc.APIKey != "" {
		c.APIKey = fc.APIKey
	}
	if fc.Timeout != "" {
		if c.Timeout, err = time.ParseDuration(fc.Timeout); err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
	}
	if fc.Concurrency > 0 {
		c.Concurrency = fc.Concurrency
	}
	if fc.Retries != nil {
		c.Retries = *fc.Retries
	}
	if fc.ScanLimit > 0 {
		c.ScanLimit = fc.ScanLimit
	}
	return nil
}

func (c *Config) loadEnv(getenv func(string) string) (err error) {
	if v := getenv(constants.ENV_REGISTRY_URL); v != "" {
		c.RegistryURL = v
	}
	if v := getenv(constants.ENV_API_KEY); v != "" {
		c.APIKey = v
	} else if v := getenv(constants.ENV_CIVITAI_API_KEY); v != "" {
		c.APIKey = v
	}
	if v := getenv(constants.ENV_TIMEOUT); v != "" {
		if c.Timeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s env: %w", constants.ENV_TIMEOUT, err)
		}
	}
	c.Concurrency = util.ParseInt(getenv(constants.ENV_CONCURRENCY), c.Concurrency)
	c.Retries = util.ParseInt(getenv(constants.ENV_RETRIES), c.Retries)
	c.ScanLimit = util.ParseInt(getenv(constants.ENV_SCAN_LIMIT), c.ScanLimit)
	return nil
}
