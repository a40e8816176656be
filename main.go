package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/hbomb79/Reelgest/internal"
	"github.com/hbomb79/Reelgest/internal/http/resolver"
	"github.com/hbomb79/Reelgest/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	log = logger.Get("Main")

	configPath   string
	verbosity    int
	inputPath    string
	ascending    bool
	watch        bool
	skipDownload bool
)

var rootCmd = &cobra.Command{
	Use:   "reelgest",
	Short: "Ingest content-source identifiers and download their media",
	Long: `reelgest reads a list of content-source identifiers, resolves each new
identifier in to metadata using the configured resolver service, and then
downloads the referenced media. Identifiers already stored, recorded in the
upload history, or known to be unresolvable are never processed again.

Examples:
  reelgest run                          # Process new identifiers from the configured list
  reelgest run --input links.txt --ascending
  reelgest run --watch                  # Re-run whenever the identifier list changes
  reelgest download                     # Retry downloads for stored items only`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve new identifiers and download their media",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}

		return withPipeline(cmd.Context(), config, true, func(ctx context.Context, r *internal.Reelgest) error {
			opts := internal.RunOptions{SkipDownload: skipDownload}
			if watch {
				return r.Watch(ctx, opts)
			}

			_, err := r.Run(ctx, opts)
			return err
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download media for stored items which do not yet have it",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd, false)
		if err != nil {
			return err
		}

		return withPipeline(cmd.Context(), config, false, func(ctx context.Context, r *internal.Reelgest) error {
			_, err := r.Download(ctx)
			return err
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase output verbosity (-v for debug, -vv for verbose)")

	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Path to the identifier list (overrides configuration)")
	runCmd.Flags().BoolVar(&ascending, "ascending", false, "Process identifiers in file order rather than newest-first")
	runCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running, re-processing whenever the identifier list changes")
	runCmd.Flags().BoolVar(&skipDownload, "skip-download", false, "Stop after resolving identifiers")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(downloadCmd)
}

// loadConfig loads the configuration, applies any command line
// overrides, and validates the result.
func loadConfig(cmd *cobra.Command, requireResolver bool) (*internal.ReelgestConfig, error) {
	config, err := internal.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("input") {
		config.Input.Path = inputPath
	}
	if cmd.Flags().Changed("ascending") {
		config.Input.Ascending = ascending
	}

	if err := config.Validate(requireResolver); err != nil {
		return nil, err
	}

	level, _ := logger.ParseLevel(config.LogLevel)
	switch {
	case verbosity >= 2:
		level = logger.VERBOSE
	case verbosity == 1:
		level = logger.DEBUG
	}
	logger.SetMinLoggingLevel(level.Level())

	return config, nil
}

func withPipeline(ctx context.Context, config *internal.ReelgestConfig, withResolver bool, f func(context.Context, *internal.Reelgest) error) error {
	st, err := internal.OpenStore(config.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Emit(logger.WARNING, "Failed to close store: %v\n", err)
		}
	}()

	client := &http.Client{}
	pipeline := internal.New(*config, st, nil, client)
	if withResolver {
		pipeline = internal.New(*config, st, resolver.New(config.Resolver), client)
	}

	return f(ctx, pipeline)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Emit(logger.FATAL, "%v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			log.Emit(logger.INFO, "Hint: %s\n", hint)
		}

		stop()
		os.Exit(1)
	}
}
