package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitrise-io/go-appendblob/internal/exitcode"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewLogger()
	a := &app{
		envs:      env.NewRepository(),
		logger:    logger,
		openStore: openStore,
	}

	err := a.rootCmd().ExecuteContext(ctx)
	if err != nil {
		logger.Errorf("%s", err)
	}
	os.Exit(exitcode.For(err))
}

type app struct {
	envs      env.Repository
	logger    log.Logger
	openStore storeOpener

	envFile string
	verbose bool
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "appendblob-ship",
		Short:         "Ship log files to append-only blob storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger.EnableDebugLog(a.verbose)
			return loadEnvFile(a.envFile)
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(a.shipCmd(), a.containersCmd(), a.existsCmd())
	return root
}

// loadEnvFile loads the dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
