// Command backfill generates aboutness profiles for songs that lack a current
// one, either once or on a cron schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/dshills/songmatch-mcp/internal/aboutness"
	"github.com/dshills/songmatch-mcp/internal/app"
	"github.com/dshills/songmatch-mcp/internal/config"
	"github.com/dshills/songmatch-mcp/internal/logging"
)

type options struct {
	configPath  string
	ids         string
	limit       int
	batchSize   int
	concurrency int
	force       bool
	schedule    string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "path to YAML config (default $"+config.PathEnvVar+")")
	fs.StringVar(&o.ids, "ids", "", "comma-separated song ids to process (default all)")
	fs.IntVar(&o.limit, "limit", 0, "process at most this many songs (0 for no limit)")
	fs.IntVar(&o.batchSize, "batch-size", 0, "songs per batch (default backfill.batch_size)")
	fs.IntVar(&o.concurrency, "concurrency", 0, "parallel songs per batch (default backfill.concurrency)")
	fs.BoolVar(&o.force, "force", false, "regenerate profiles that are already current")
	fs.StringVar(&o.schedule, "schedule", "", "cron spec for repeated runs (default backfill.schedule; empty runs once)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.limit < 0 || o.batchSize < 0 || o.concurrency < 0 {
		return o, errors.New("limit, batch-size and concurrency must not be negative")
	}
	return o, nil
}

// parseIDs splits a comma-separated list, dropping blanks and duplicates.
func parseIDs(s string) []string {
	var ids []string
	seen := map[string]bool{}
	for _, id := range strings.Split(s, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func (o options) backfillConfig(cfg *config.Config) aboutness.BackfillConfig {
	bc := aboutness.BackfillConfig{
		IDs:         parseIDs(o.ids),
		Limit:       o.limit,
		BatchSize:   cfg.Backfill.BatchSize,
		Concurrency: cfg.Backfill.Concurrency,
		Force:       o.force,
	}
	if o.batchSize > 0 {
		bc.BatchSize = o.batchSize
	}
	if o.concurrency > 0 {
		bc.Concurrency = o.concurrency
	}
	return bc
}

func runOnce(ctx context.Context, b *aboutness.Backfill, bc aboutness.BackfillConfig, log zerolog.Logger) error {
	stats, err := b.Run(ctx, bc)
	if stats != nil {
		log.Info().
			Int("selected", stats.Selected).
			Int("generated", stats.Generated).
			Int("forced", stats.Forced).
			Int("failed", stats.Failed).
			Int("skipped", stats.Skipped).
			Dur("duration", stats.Duration).
			Msg("backfill finished")
		for _, msg := range stats.ErrorMessages {
			log.Warn().Msg(msg)
		}
	}
	return err
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.Component("backfill-cli")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logging.Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer func() { _ = a.Close() }()

	if _, err := a.CheckDimensions(ctx); err != nil {
		log.Error().Err(err).Msg("vector dimension check failed")
		_ = a.Close()
		os.Exit(1)
	}

	bc := opts.backfillConfig(cfg)
	schedule := opts.schedule
	if schedule == "" {
		schedule = cfg.Backfill.Schedule
	}

	if schedule == "" {
		if err := runOnce(ctx, a.Backfill, bc, log); err != nil {
			log.Error().Err(err).Msg("backfill aborted")
			_ = a.Close()
			os.Exit(1)
		}
		return
	}

	sched, err := newScheduler(schedule, log, func() {
		if err := runOnce(ctx, a.Backfill, bc, log); err != nil {
			log.Error().Err(err).Msg("scheduled backfill aborted")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule backfill")
	}
	sched.Start()
	log.Info().Str("schedule", schedule).Msg("backfill scheduled")

	<-ctx.Done()
	log.Info().Msg("stopping scheduler")
	sched.Stop()
}
