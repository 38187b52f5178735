package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/duoload/internal/config"
	"github.com/Sternrassler/duoload/pkg/client"
	"github.com/Sternrassler/duoload/pkg/logging"
	"github.com/Sternrassler/duoload/pkg/metrics"
	"github.com/Sternrassler/duoload/pkg/output"
	"github.com/Sternrassler/duoload/pkg/ratelimit"
	"github.com/Sternrassler/duoload/pkg/transfer"
	"github.com/Sternrassler/duoload/pkg/vocab"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type exportOptions struct {
	deckID      string
	ankiFile    string
	jsonFile    string
	jsonStdout  bool
	pages       int
	metricsFile string
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var opts exportOptions

	rootCmd := &cobra.Command{
		Use:           "duoload",
		Short:         "Transfer vocabulary from Duocards to Anki or JSON",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("pages") && opts.pages <= 0 {
				return fmt.Errorf("--pages must be a positive integer (got %d)", opts.pages)
			}
			opts.deckID = strings.TrimSpace(opts.deckID)
			if err := vocab.ValidateDeckID(opts.deckID); err != nil {
				return fmt.Errorf("invalid deck ID: %w", err)
			}

			cfg, _, err := config.Load(strings.TrimSpace(configFlag))
			if err != nil {
				return err
			}
			if opts.metricsFile != "" {
				cfg.Metrics.Textfile = opts.metricsFile
			}

			return runExport(cmd, cfg, opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.deckID, "deck-id", "", "Duocards deck ID (base64 encoded Deck:UUID)")
	flags.StringVar(&opts.ankiFile, "anki-file", "", "Output Anki package file (.apkg)")
	flags.StringVar(&opts.jsonFile, "json-file", "", "Output JSON file (.json)")
	flags.BoolVar(&opts.jsonStdout, "json", false, "Output JSON to stdout (for piping to other tools)")
	flags.IntVar(&opts.pages, "pages", 0, "Limit export to N pages (default: all pages)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")

	rootCmd.MarkFlagRequired("deck-id")
	rootCmd.MarkFlagsOneRequired("anki-file", "json-file", "json")
	rootCmd.MarkFlagsMutuallyExclusive("anki-file", "json-file", "json")

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newFetchCardsCommand(&configFlag))
	rootCmd.AddCommand(newConfigCommand(&configFlag))

	return rootCmd
}

// runExport performs one transfer. Progress goes to stdout unless the
// records themselves are written there.
func runExport(cmd *cobra.Command, cfg *config.Config, opts exportOptions) error {
	stdout := cmd.OutOrStdout()
	progressOut := stdout
	if opts.jsonStdout {
		progressOut = cmd.ErrOrStderr()
	}

	logging.Setup(cfg.LoggingConfig(cmd.ErrOrStderr()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Textfile != "" {
		defer writeMetrics(cfg.Metrics.Textfile)
	}

	clientCfg := cfg.ClientConfig(opts.deckID)
	pacer, closePacer, err := newPacer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePacer()
	clientCfg.Pacer = pacer

	fetcher, err := client.New(clientCfg)
	if err != nil {
		return &runtimeError{err: err}
	}

	sink, target, err := newOutput(opts, stdout)
	if err != nil {
		return &runtimeError{err: err}
	}
	defer sink.Close()

	fmt.Fprintln(progressOut, startBanner(opts, target))

	orch := transfer.New(fetcher, sink, transfer.Config{
		PageLimit: opts.pages,
		Progress:  progressPrinter(progressOut),
	})

	summary, err := orch.Run(ctx, target)
	if err != nil {
		return &runtimeError{err: err}
	}

	fmt.Fprintln(progressOut, renderSummary(summary))
	fmt.Fprintf(progressOut, "Wrote %d records to %s\n", summary.Admitted, target)
	return nil
}

func newOutput(opts exportOptions, stdout io.Writer) (output.Sink, output.Target, error) {
	switch {
	case opts.ankiFile != "":
		sink, err := output.NewPackageSink(output.DefaultPackageConfig())
		if err != nil {
			return nil, nil, err
		}
		return sink, output.NewFileTarget(opts.ankiFile), nil
	case opts.jsonFile != "":
		return output.NewJSONSink(), output.NewFileTarget(opts.jsonFile), nil
	case opts.jsonStdout:
		return output.NewJSONSink(), output.NewStreamTarget(stdout, "stdout"), nil
	default:
		return nil, nil, errors.New("please specify either --anki-file, --json-file, or --json")
	}
}

// newPacer returns the shared Redis pacer when configured, otherwise nil so
// the client keeps the delay in process.
func newPacer(ctx context.Context, cfg *config.Config) (ratelimit.Pacer, func(), error) {
	if cfg.Pacing.RedisURL == "" {
		return nil, func() {}, nil
	}

	redisOpts, err := redis.ParseURL(cfg.Pacing.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("pacing.redis_url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", redisOpts.Addr).Msg("Redis unreachable, pacing falls back to in-process delay")
		redisClient.Close()
		return nil, func() {}, nil
	}

	pacer := ratelimit.NewRedisPacer(redisClient, cfg.PacingKey(), cfg.PoliteDelay(), logging.NewLogger("ratelimit"))
	return pacer, func() { redisClient.Close() }, nil
}

func startBanner(opts exportOptions, target output.Target) string {
	var b strings.Builder
	switch {
	case opts.ankiFile != "":
		fmt.Fprintf(&b, "Exporting to Anki package %q", target)
	case opts.jsonFile != "":
		fmt.Fprintf(&b, "Exporting to JSON file %q", target)
	default:
		b.WriteString("Exporting to stdout")
	}
	if opts.pages > 0 {
		fmt.Fprintf(&b, " (limited to %d pages)", opts.pages)
	}
	b.WriteString("...")
	return b.String()
}

func progressPrinter(w io.Writer) transfer.ProgressFunc {
	return func(p transfer.Progress) {
		fmt.Fprintf(w, "Page %d: %d records so far (%d added, %d duplicates)\n",
			p.Page, p.Fetched, p.Admitted, p.Duplicates)
	}
}

func writeMetrics(path string) {
	if err := metrics.WriteTextfile(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write metrics")
	}
}
