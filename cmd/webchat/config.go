package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/MegaGrindStone/webchat/internal/services"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type config struct {
	BaseURL     string            `yaml:"baseURL" env:"WEBCHAT_BASE_URL"`
	Headers     map[string]string `yaml:"headers" env:"WEBCHAT_HEADERS"`
	Theme       string            `yaml:"theme" env:"WEBCHAT_THEME"`
	WordWrap    int               `yaml:"wordWrap" env:"WEBCHAT_WORD_WRAP"`
	DisplayName string            `yaml:"displayName" env:"WEBCHAT_DISPLAY_NAME"`
	Chat        string            `yaml:"chat" env:"WEBCHAT_CHAT"`
	LogLevel    string            `yaml:"logLevel" env:"WEBCHAT_LOG_LEVEL"`
	LogFile     string            `yaml:"logFile" env:"WEBCHAT_LOG_FILE"`
}

func defaultConfig() config {
	return config{
		BaseURL:  "http://localhost:5000",
		Theme:    "dark",
		WordWrap: 80,
		LogLevel: "info",
	}
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	// rawConfig drops the method set, so decoding into it doesn't recurse.
	type rawConfig config

	raw := rawConfig(defaultConfig())
	if err := value.Decode(&raw); err != nil {
		return err
	}

	*c = config(raw)
	return nil
}

// loadConfig reads the YAML file at path and applies the WEBCHAT_* environment variables on top of
// it. A missing file is not an error, the defaults are used instead.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	cfgFile, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer cfgFile.Close()
		if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("error parsing environment: %w", err)
	}

	return cfg, nil
}

func (c config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("baseURL is required")
	}
	if !slices.Contains(services.Themes, c.Theme) {
		return fmt.Errorf("unknown theme: %s", c.Theme)
	}
	if c.WordWrap <= 0 {
		return fmt.Errorf("wordWrap must be positive, got %d", c.WordWrap)
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	return nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
