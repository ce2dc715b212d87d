package main

import (
	"fmt"
	"time"

	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/bitrise-io/go-appendblob/appendblob/objectkey"
	"github.com/bitrise-io/go-appendblob/config"
	"github.com/bitrise-io/go-appendblob/shipper"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

func (a *app) load() (config.Config, error) {
	cfg, err := config.Load(a.envs)
	if err != nil {
		return config.Config{}, err
	}
	config.Print(a.logger, cfg)
	return cfg, nil
}

func (a *app) shipCmd() *cobra.Command {
	var (
		follow   bool
		interval time.Duration
		patterns []string
	)

	cmd := &cobra.Command{
		Use:   "ship",
		Short: "Append new lines of the matching files to the container",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := a.load()
			if err != nil {
				return err
			}
			if len(patterns) > 0 {
				cfg.Patterns = patterns
			}
			if len(cfg.Patterns) == 0 {
				return &config.Error{Err: fmt.Errorf("no file patterns, set SHIP_PATTERNS or --pattern")}
			}

			names, err := objectkey.New(withExpander(cfg.NameOptions()))
			if err != nil {
				return &config.Error{Err: err}
			}
			if !names.HasIndex() {
				a.logger.Warnf("The object key format %s has no %%{index}, a sealed object will stop shipping", cfg.KeyFormat)
			}

			store, release, err := a.openStore(ctx, cfg, a.logger)
			if err != nil {
				return err
			}
			defer release()

			if err := appendblob.EnsureContainer(ctx, store, cfg.Container, cfg.AutoCreateContainer, a.logger); err != nil {
				return err
			}

			ledger, err := shipper.OpenLedger(cfg.StateDir)
			if err != nil {
				return err
			}
			defer ledger.Close() //nolint:errcheck

			s, err := shipper.New(store, cfg.Container, names, ledger, a.logger, shipper.Options{
				Patterns:     cfg.Patterns,
				Workers:      cfg.Workers,
				MaxChunkSize: cfg.MaxChunkBytes,
				Timekey:      cfg.Timekey(),
				Tag:          cfg.Tag,
				RetryLimit:   uint(cfg.RetryLimit),
				RetryWait:    cfg.RetryWait(),
			})
			if err != nil {
				return err
			}

			if follow {
				a.logger.Infof("Following %d patterns every %s", len(cfg.Patterns), interval)
				return s.Follow(ctx, interval)
			}

			summary, err := s.RunOnce(ctx)
			if err != nil {
				return err
			}
			a.logger.Donef("Shipped %d chunks (%s) from %d files", summary.Chunks, units.BytesSize(float64(summary.Bytes)), summary.Files)
			s.LogTotals()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep shipping new lines until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "poll interval with --follow")
	cmd.Flags().StringArrayVarP(&patterns, "pattern", "p", nil, "file pattern, overrides SHIP_PATTERNS (repeatable)")
	return cmd
}

func withExpander(opts objectkey.Options) objectkey.Options {
	opts.Expander = shipper.Expander()
	return opts
}

func (a *app) containersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "containers",
		Short: "List the containers visible to the credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := a.load()
			if err != nil {
				return err
			}
			store, release, err := a.openStore(ctx, cfg, a.logger)
			if err != nil {
				return err
			}
			defer release()

			containers, err := store.ListContainers(ctx)
			if err != nil {
				return err
			}
			for _, name := range containers {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func (a *app) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <object>",
		Short: "Report whether an object exists in the container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := a.load()
			if err != nil {
				return err
			}
			store, release, err := a.openStore(ctx, cfg, a.logger)
			if err != nil {
				return err
			}
			defer release()

			exists, err := store.ObjectExists(ctx, cfg.Container, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), exists)
			return nil
		},
	}
}
