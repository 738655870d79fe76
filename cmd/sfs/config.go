package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "SFS"
	appName      = "sfs"

	defaultLogLevel = "warn"
)

// Config holds settings shared by every command. Values come from the YAML
// config file first, then SFS_* environment variables, then command-line flags.
type Config struct {
	Image    string `envconfig:"IMAGE"     yaml:"image"`
	LogLevel string `envconfig:"LOG_LEVEL" yaml:"logLevel"`
}

// defaultConfigFile returns the config file path used when neither --config nor
// SFS_CONFIG_FILE is given.
func defaultConfigFile() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, appName+".yaml")
}

// LoadConfig reads the config file at `configFile`, then applies environment
// variables on top of it. If `configFile` is empty, SFS_CONFIG_FILE is used,
// falling back to sfs.yaml in the user's config directory. Only an explicitly
// requested file has to exist.
func LoadConfig(configFile string) (*Config, error) {
	explicit := true
	if configFile == "" {
		configFile = os.Getenv(envVarPrefix + "_CONFIG_FILE")
	}
	if configFile == "" {
		configFile = defaultConfigFile()
		explicit = false
	}

	var c Config
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file %q: %w", configFile, err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	return &c, nil
}

// Validate checks settings that every command needs.
func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf(
			"missing required configuration: image / %s_IMAGE / --image",
			envVarPrefix,
		)
	}
	_, err := c.SlogLevel()
	return err
}

// SlogLevel parses LogLevel ("debug", "info", "warn", or "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel)))
	if err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
