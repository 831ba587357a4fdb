package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/multipart-related/cmd"
	"github.com/dhcgn/multipart-related/config"
	"github.com/dhcgn/multipart-related/extract"
	"github.com/dhcgn/multipart-related/mbox"
	"github.com/dhcgn/multipart-related/progress"
	"github.com/dhcgn/multipart-related/render"
	"github.com/dhcgn/multipart-related/runner"
	"github.com/dhcgn/multipart-related/stats"
)

func main() {
	rootCmd, err := newRootCommand()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "multipart-related",
		Short: "Extract the parts of multipart/related messages stored in mbox archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			slog.SetDefault(logger)
			logger.Info("extracting multipart/related parts", "mbox", cfg.MboxPath, "output", cfg.OutputDir, "dryRun", cfg.DryRun)
			return run(cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		return nil, err
	}
	rootCmd.AddCommand(cmd.NewInspectCommand(), cmd.NewMboxStatsCommand())
	return rootCmd, nil
}

func run(cfg config.Config, logger *slog.Logger) error {
	r, err := runner.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}

	if cfg.LogLevel == "info" {
		total, err := mbox.CountMessages(cfg.MboxPath)
		if err != nil {
			logger.Warn("count messages", "err", err)
		}
		bar := progress.New(total, r.Tracker().Snapshot().Processed, cfg.LogLevel)
		if progress.NewReporter(r, bar, logger) == nil {
			stats.NewReporter(r, logger)
		}
	} else {
		stats.NewReporter(r, logger)
	}

	readerOpts := mbox.Options{
		Path: cfg.MboxPath,
		CRLF: cfg.CRLF,
	}
	if _, err := mbox.NewProducer(readerOpts, r, logger); err != nil {
		return fmt.Errorf("mbox.NewProducer: %w", err)
	}

	format, err := render.ParseFormat(cfg.ManifestFormat)
	if err != nil {
		return err
	}
	extractOpts := extract.Options{
		OutputDir: cfg.OutputDir,
		DryRun:    cfg.DryRun,
		Format:    format,
		Decode:    cfg.DecodeBodies,
	}
	if _, err := extract.NewExtractor(extractOpts, r, logger); err != nil {
		return fmt.Errorf("extract.NewExtractor: %w", err)
	}

	return r.Start()
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	noop := func() error { return nil }

	if cfg.LogDir == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), noop, nil
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, noop, fmt.Errorf("create log directory: %w", err)
	}
	name := "multipart-related-" + time.Now().Format("20060102T150405") + ".log"
	file, err := os.OpenFile(filepath.Join(cfg.LogDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, noop, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)), file.Close, nil
}
