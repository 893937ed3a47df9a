// Package config consolidates the browserbench configuration from its
// defaults, a YAML file, the environment and the command line.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/browserbench/browserbench/env"
)

// Config holds the run options. Only valid fields override others in Apply.
//
//nolint:lll
type Config struct {
	WSURL             null.String `json:"wsURL" envconfig:"BROWSERBENCH_WS_URL"`
	ChromiumSrcDir    null.String `json:"chromiumSrc" envconfig:"BROWSERBENCH_CHROMIUM_SRC"`
	LogLevel          null.String `json:"logLevel" envconfig:"BROWSERBENCH_LOG_LEVEL"`
	LogCategoryFilter null.String `json:"logCategoryFilter" envconfig:"BROWSERBENCH_LOG_CATEGORY_FILTER"`

	// Force runs tests that are disabled on this platform.
	Force null.Bool `json:"force" envconfig:"BROWSERBENCH_FORCE"`

	SummaryFile null.String `json:"summaryFile" envconfig:"BROWSERBENCH_SUMMARY_FILE"`

	TracesEndpoint null.String `json:"tracesEndpoint" envconfig:"BROWSERBENCH_TRACES_ENDPOINT"`
	TracesProto    null.String `json:"tracesProto" envconfig:"BROWSERBENCH_TRACES_PROTO"`
	TracesInsecure null.Bool   `json:"tracesInsecure" envconfig:"BROWSERBENCH_TRACES_INSECURE"`
}

// NewConfig creates a new Config instance with default values for some fields.
func NewConfig() Config {
	return Config{
		LogLevel:       null.NewString("info", false),
		Force:          null.NewBool(false, false),
		TracesProto:    null.NewString("http", false),
		TracesInsecure: null.NewBool(false, false),
	}
}

// Apply overwrites the fields of c with the valid fields of cfg.
func (c Config) Apply(cfg Config) Config {
	if cfg.WSURL.Valid {
		c.WSURL = cfg.WSURL
	}
	if cfg.ChromiumSrcDir.Valid {
		c.ChromiumSrcDir = cfg.ChromiumSrcDir
	}
	if cfg.LogLevel.Valid {
		c.LogLevel = cfg.LogLevel
	}
	if cfg.LogCategoryFilter.Valid {
		c.LogCategoryFilter = cfg.LogCategoryFilter
	}
	if cfg.Force.Valid {
		c.Force = cfg.Force
	}
	if cfg.SummaryFile.Valid {
		c.SummaryFile = cfg.SummaryFile
	}
	if cfg.TracesEndpoint.Valid {
		c.TracesEndpoint = cfg.TracesEndpoint
	}
	if cfg.TracesProto.Valid {
		c.TracesProto = cfg.TracesProto
	}
	if cfg.TracesInsecure.Valid {
		c.TracesInsecure = cfg.TracesInsecure
	}
	return c
}

// fileConfig is the YAML layout of a config file.
type fileConfig struct {
	WSURL             *string `yaml:"ws_url"`
	ChromiumSrcDir    *string `yaml:"chromium_src"`
	LogLevel          *string `yaml:"log_level"`
	LogCategoryFilter *string `yaml:"log_category_filter"`
	Force             *bool   `yaml:"force"`
	SummaryFile       *string `yaml:"summary_file"`
	Traces            struct {
		Endpoint *string `yaml:"endpoint"`
		Proto    *string `yaml:"proto"`
		Insecure *bool   `yaml:"insecure"`
	} `yaml:"traces"`
}

func (f fileConfig) config() Config {
	return Config{
		WSURL:             null.StringFromPtr(f.WSURL),
		ChromiumSrcDir:    null.StringFromPtr(f.ChromiumSrcDir),
		LogLevel:          null.StringFromPtr(f.LogLevel),
		LogCategoryFilter: null.StringFromPtr(f.LogCategoryFilter),
		Force:             null.BoolFromPtr(f.Force),
		SummaryFile:       null.StringFromPtr(f.SummaryFile),
		TracesEndpoint:    null.StringFromPtr(f.Traces.Endpoint),
		TracesProto:       null.StringFromPtr(f.Traces.Proto),
		TracesInsecure:    null.BoolFromPtr(f.Traces.Insecure),
	}
}

// LoadFile reads the YAML config file at path. Unknown keys are errors.
func LoadFile(fs afero.Fs, path string) (Config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	return fc.config(), nil
}

// FromEnv reads the config from the environment variables lookup knows.
func FromEnv(lookup env.LookupFunc) (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Consolidate merges, by increasing precedence, the defaults, the config file
// at path (if not empty), the environment and flags.
func Consolidate(fs afero.Fs, path string, lookup env.LookupFunc, flags Config) (Config, error) {
	result := NewConfig()
	if path != "" {
		fileConf, err := LoadFile(fs, path)
		if err != nil {
			return result, err
		}
		result = result.Apply(fileConf)
	}

	envConf, err := FromEnv(lookup)
	if err != nil {
		return result, err
	}

	return result.Apply(envConf).Apply(flags), nil
}

// Validate checks the options needed to run a benchmark.
func (c Config) Validate() error {
	if c.WSURL.String == "" {
		return fmt.Errorf("browser websocket URL is not set, use --ws-url or %s", env.WSURL)
	}
	u, err := url.Parse(c.WSURL.String)
	if err != nil {
		return fmt.Errorf("invalid browser websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid browser websocket URL %q: scheme must be ws or wss", c.WSURL.String)
	}
	if c.TracesEndpoint.String != "" && !strings.EqualFold(c.TracesProto.String, "http") {
		return fmt.Errorf("unsupported traces protocol %q", c.TracesProto.String)
	}
	return nil
}
