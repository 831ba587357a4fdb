package config

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func load(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	if err := RegisterFlags(cmd); err != nil {
		t.Fatalf("RegisterFlags() error = %v", err)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return LoadConfig(cmd)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := load(t, "--mbox", "archive.mbox", "--output-dir", "out/")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.OutputDir != "out" {
		t.Errorf("OutputDir = %q, want cleaned path", cfg.OutputDir)
	}
	if !cfg.CRLF || !cfg.DecodeBodies {
		t.Error("Expected --crlf and --decode to default to true")
	}
	if cfg.ManifestFormat != "yaml" || cfg.LogLevel != "info" {
		t.Errorf("ManifestFormat = %q, LogLevel = %q", cfg.ManifestFormat, cfg.LogLevel)
	}
	if !strings.Contains(cfg.StateDir, ".multipart-related") {
		t.Errorf("StateDir = %q, want default under home", cfg.StateDir)
	}
}

func TestLoadConfig_Normalises(t *testing.T) {
	cfg, err := load(t, "--mbox", "a.mbox", "--dry-run", "--log-level", "WARNING", "--manifest-format", "YML",
		"--media-type", "image/*", "--media-type", "text/xml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.ManifestFormat != "yaml" {
		t.Errorf("ManifestFormat = %q, want yaml", cfg.ManifestFormat)
	}
	if got := cfg.FilterOptions().MediaTypes; len(got) != 2 {
		t.Errorf("FilterOptions().MediaTypes = %v", got)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "output dir required", args: []string{"--mbox", "a.mbox"}, want: "--output-dir"},
		{name: "include and exclude", args: []string{"--mbox", "a.mbox", "--dry-run", "--include-body", "x", "--exclude-header", "y"}, want: "mutually exclusive"},
		{name: "log level", args: []string{"--mbox", "a.mbox", "--dry-run", "--log-level", "loud"}, want: "--log-level"},
		{name: "manifest format", args: []string{"--mbox", "a.mbox", "--dry-run", "--manifest-format", "xml"}, want: "--manifest-format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
