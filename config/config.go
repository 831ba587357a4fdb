package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/multipart-related/filter"
)

// Config captures all command-line options required to run an extraction.
type Config struct {
	MboxPath       string
	OutputDir      string
	StateDir       string
	DryRun         bool
	FailFast       bool
	LogLevel       string
	LogDir         string
	ManifestFormat string
	CRLF           bool
	DecodeBodies   bool
	MediaTypes     []string
	IncludeHeader  []string
	IncludeBody    []string
	ExcludeHeader  []string
	ExcludeBody    []string
}

// FilterOptions returns the part filter settings.
func (c Config) FilterOptions() filter.Options {
	return filter.Options{
		IncludeHeader: c.IncludeHeader,
		IncludeBody:   c.IncludeBody,
		ExcludeHeader: c.ExcludeHeader,
		ExcludeBody:   c.ExcludeBody,
		MediaTypes:    c.MediaTypes,
	}
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("mbox", "", "Path to the .mbox file to read")
	flags.String("output-dir", "", "Directory that receives one folder per extracted message")
	flags.String("state-dir", defaultStateDir, "Directory for incremental extraction state files")
	flags.Bool("dry-run", false, "Parse and emit stats without writing any part")
	flags.Bool("fail-fast", false, "Stop at the first message that cannot be parsed")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.String("manifest-format", "yaml", "Manifest format written next to the parts: yaml, json, toml")
	flags.Bool("crlf", true, "Convert lone LF line endings to CRLF before splitting the body")
	flags.Bool("decode", true, "Decode base64 and quoted-printable part bodies before writing")
	flags.StringArray("media-type", nil, "Glob allow-list applied to part media types, e.g. image/*")
	flags.StringArray("include-header", nil, "Regex allow-list applied to part headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to part bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to part headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to part bodies (mutually exclusive with include flags)")

	return cmd.MarkFlagRequired("mbox")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()
	var cfg Config
	var err error

	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"mbox", &cfg.MboxPath},
		{"output-dir", &cfg.OutputDir},
		{"state-dir", &cfg.StateDir},
		{"log-level", &cfg.LogLevel},
		{"log-dir", &cfg.LogDir},
		{"manifest-format", &cfg.ManifestFormat},
	}
	for _, f := range stringFlags {
		if *f.dst, err = flags.GetString(f.name); err != nil {
			return Config{}, err
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"dry-run", &cfg.DryRun},
		{"fail-fast", &cfg.FailFast},
		{"crlf", &cfg.CRLF},
		{"decode", &cfg.DecodeBodies},
	}
	for _, f := range bools {
		if *f.dst, err = flags.GetBool(f.name); err != nil {
			return Config{}, err
		}
	}

	arrays := []struct {
		name string
		dst  *[]string
	}{
		{"media-type", &cfg.MediaTypes},
		{"include-header", &cfg.IncludeHeader},
		{"include-body", &cfg.IncludeBody},
		{"exclude-header", &cfg.ExcludeHeader},
		{"exclude-body", &cfg.ExcludeBody},
	}
	for _, f := range arrays {
		if *f.dst, err = flags.GetStringArray(f.name); err != nil {
			return Config{}, err
		}
	}

	if cfg.StateDir == "" {
		cfg.StateDir, err = defaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)
	if cfg.OutputDir != "" {
		cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.ManifestFormat = strings.ToLower(strings.TrimSpace(cfg.ManifestFormat))
	if cfg.ManifestFormat == "yml" {
		cfg.ManifestFormat = "yaml"
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.MboxPath == "" {
		return fmt.Errorf("--mbox is required")
	}
	if cfg.OutputDir == "" && !cfg.DryRun {
		return fmt.Errorf("--output-dir is required unless --dry-run is set")
	}
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	switch cfg.ManifestFormat {
	case "yaml", "json", "toml":
	default:
		return fmt.Errorf("invalid --manifest-format: %s", cfg.ManifestFormat)
	}

	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".multipart-related", "state"), nil
}
