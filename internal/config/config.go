// Package config loads classlens settings.
//
// Sources are applied lowest precedence first:
//  1. Default()
//  2. a config file: JSONC (comments and trailing commas allowed, read
//     with github.com/tidwall/jsonc) or YAML (gopkg.in/yaml.v3)
//  3. CLASSLENS_* environment variables (github.com/kelseyhightower/envconfig)
//
// Command-line flags are applied last by the cli package. Every field can
// be left out of the file; missing fields keep the value of the previous
// source.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/styles"
	"github.com/kelseyhightower/envconfig"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/classlens/internal/decompiler"
	"github.com/shinji-kodama/classlens/internal/logging"
	"github.com/shinji-kodama/classlens/internal/model"
)

// EnvPrefix is the prefix of every environment override, e.g.
// CLASSLENS_DECOMPILER_BACKEND.
const EnvPrefix = "CLASSLENS"

// FileNames are the config files looked up in the working directory when
// no explicit path is given, in order.
var FileNames = []string{"classlens.jsonc", "classlens.json", "classlens.yaml", "classlens.yml"}

// Config holds all classlens configuration.
type Config struct {
	// MaxContainers bounds how many archives stay loaded; the oldest are
	// evicted first.
	MaxContainers int `json:"maxContainers" yaml:"maxContainers" envconfig:"MAX_CONTAINERS"`

	Decompiler DecompilerConfig `json:"decompiler" yaml:"decompiler" envconfig:"DECOMPILER"`
	Log        LogConfig        `json:"log" yaml:"log" envconfig:"LOG"`
	Highlight  HighlightConfig  `json:"highlight" yaml:"highlight" envconfig:"HIGHLIGHT"`
	Server     ServerConfig     `json:"server" yaml:"server" envconfig:"SERVER"`
}

// DecompilerConfig selects the decompiler backend.
type DecompilerConfig struct {
	// Backend is "outline", "exec" or "docker".
	Backend string `json:"backend" yaml:"backend" envconfig:"BACKEND"`

	// Command is the external decompiler invocation for the exec and
	// docker backends. "{}" is replaced by the class file. In the
	// environment it is a comma-separated list.
	Command []string `json:"command,omitempty" yaml:"command,omitempty" envconfig:"COMMAND"`

	// Image is the container image of the docker backend.
	Image string `json:"image,omitempty" yaml:"image,omitempty" envconfig:"IMAGE"`

	// Timeout bounds one external decompiler run ("30s", "2m").
	Timeout Duration `json:"timeout" yaml:"timeout" envconfig:"TIMEOUT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `json:"level" yaml:"level" envconfig:"LEVEL"`
	Development bool   `json:"development" yaml:"development" envconfig:"DEV"`
}

// HighlightConfig holds syntax highlighting configuration.
type HighlightConfig struct {
	// Style is a chroma style name such as "monokai" or "github".
	Style string `json:"style" yaml:"style" envconfig:"STYLE"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" envconfig:"ADDR"`

	// ArchiveRoot is the directory POST /api/containers may load archives
	// from by path. Empty disables loading by path; uploads still work.
	ArchiveRoot string `json:"archiveRoot,omitempty" yaml:"archiveRoot,omitempty" envconfig:"ARCHIVE_ROOT"`
}

// Duration is a time.Duration written as a Go duration string in files
// and environment variables.
type Duration time.Duration

// UnmarshalText parses strings such as "1m30s". JSON, YAML and envconfig
// all decode through it.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxContainers: 10,
		Decompiler: DecompilerConfig{
			Backend: decompiler.BackendOutline,
			Timeout: Duration(time.Minute),
		},
		Log: LogConfig{
			Level:       "warn",
			Development: true,
		},
		Highlight: HighlightConfig{
			Style: "monokai",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Load builds the configuration from defaults, the config file at path
// (or the first of FileNames found in the working directory when path is
// empty) and the environment, then validates it. Errors are CLIErrors
// with ExitInvalidConfig.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = FindFile(".")
	}
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidConfig,
				fmt.Sprintf("failed to load config file %s", path), err)
		}
	}

	if err := cfg.MergeEnv(); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig,
			"failed to read environment configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", err)
	}
	return cfg, nil
}

// FindFile returns the first of FileNames present in dir, or "".
func FindFile(dir string) string {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// MergeFile overlays the settings of a config file onto c. The format is
// chosen by extension: .yaml/.yml is YAML, anything else JSONC.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		// Strip comments and trailing commas before encoding/json sees it.
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	}
	return nil
}

// MergeEnv overlays CLASSLENS_* environment variables onto c. Unset
// variables leave the current values alone.
func (c *Config) MergeEnv() error {
	return envconfig.Process(EnvPrefix, c)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.MaxContainers <= 0 {
		return fmt.Errorf("maxContainers must be greater than 0, got %d", c.MaxContainers)
	}

	switch c.Decompiler.Backend {
	case decompiler.BackendOutline:
	case decompiler.BackendExec:
		if len(c.Decompiler.Command) == 0 {
			return fmt.Errorf("decompiler.command is required for the %s backend", decompiler.BackendExec)
		}
	case decompiler.BackendDocker:
		if len(c.Decompiler.Command) == 0 {
			return fmt.Errorf("decompiler.command is required for the %s backend", decompiler.BackendDocker)
		}
		if c.Decompiler.Image == "" {
			return fmt.Errorf("decompiler.image is required for the %s backend", decompiler.BackendDocker)
		}
	default:
		return fmt.Errorf("unknown decompiler.backend %q", c.Decompiler.Backend)
	}

	if c.Decompiler.Timeout < 0 {
		return fmt.Errorf("decompiler.timeout must not be negative")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if _, ok := styles.Registry[strings.ToLower(c.Highlight.Style)]; !ok {
		return fmt.Errorf("unknown highlight.style %q", c.Highlight.Style)
	}
	return nil
}

// DecompilerOptions converts the decompiler section for decompiler.New.
func (c *Config) DecompilerOptions() decompiler.Options {
	return decompiler.Options{
		Backend: c.Decompiler.Backend,
		Command: c.Decompiler.Command,
		Image:   c.Decompiler.Image,
		Timeout: time.Duration(c.Decompiler.Timeout),
	}
}

// LoggingConfig converts the log section for logging.New.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Development = c.Log.Development
	return cfg
}
