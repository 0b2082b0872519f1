// oddsd serves a simulated live odds board over HTTP and WebSocket.
// Usage: go run ./cmd/oddsd --config configs/oddsd.example.yaml
//
// Without --config the built-in defaults are used and the database is
// disabled.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/odds-feed/internal/catalog"
	"github.com/rickgao/odds-feed/internal/config"
	"github.com/rickgao/odds-feed/internal/database"
	"github.com/rickgao/odds-feed/internal/feed"
	"github.com/rickgao/odds-feed/internal/hub"
	"github.com/rickgao/odds-feed/internal/model"
	"github.com/rickgao/odds-feed/internal/odds"
	"github.com/rickgao/odds-feed/internal/server"
	"github.com/rickgao/odds-feed/internal/store"
	"github.com/rickgao/odds-feed/internal/stream"
	"github.com/rickgao/odds-feed/internal/version"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	bind := pflag.String("bind", "", "listen address (overrides server.bind)")
	seed := pflag.Uint64("seed", 0, "random seed for odds and connection rolls (0 = random)")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.Name, version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "oddsd:", err)
		os.Exit(1)
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
	}

	logger := newLogger(os.Stdout, cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting oddsd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *seed, logger); err != nil {
		logger.Error("oddsd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("oddsd stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

// newLogger builds the process logger from the logging section.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// run wires the board to its collaborators and blocks until ctx ends.
func run(ctx context.Context, cfg *config.Config, seed uint64, logger *slog.Logger) error {
	rnd := newRand(seed)

	generator := odds.NewGenerator(cfg.Generator, rand.New(rand.NewPCG(rnd.Uint64(), rnd.Uint64())), nil)
	ticker := stream.NewTicker[model.OddsSnapshot](cfg.Stream.Config,
		stream.WithLogger(logger),
		stream.WithRand(rand.New(rand.NewPCG(rnd.Uint64(), rnd.Uint64()))),
	)
	service := feed.NewService(catalog.New(cfg.Catalog, logger), generator, ticker, cfg.Stream.UpdateInterval, logger)

	// Persistence is optional. cache stays a nil interface when disabled.
	var (
		cache  feed.Cache
		writer *store.OddsWriter
	)
	if cfg.Database.Enabled {
		pool, err := database.Connect(ctx, cfg.Database.Postgres, "oddsd", logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		c := store.NewCache(pool, logger)
		if err := c.Migrate(ctx); err != nil {
			return err
		}
		cache = c

		writer = store.NewOddsWriter(store.WriterConfig{
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
			BufferSize:    cfg.Writer.BufferSize,
		}, pool, logger)
		// The writer outlives ctx so Stop can drain it after shutdown begins.
		if err := writer.Start(context.Background()); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer stopCancel()
			if err := writer.Stop(stopCtx); err != nil {
				logger.Error("odds writer stop failed", "error", err, "stats", writer.Stats())
				return
			}
			logger.Info("odds writer drained", "stats", writer.Stats())
		}()
	}

	board := feed.NewBoard(service, cache, logger)

	events := hub.New(hub.DefaultConfig(), func() any {
		st := board.State()
		return feed.Event{
			Type:    feed.EventSnapshot,
			Items:   st.Items,
			Status:  st.StreamStatus,
			Message: st.Message,
			Time:    time.Now().UTC(),
		}
	}, logger)

	board.Subscribe(func(ev feed.Event) {
		events.BroadcastJSON(ev)
		if writer != nil && ev.Type == feed.EventOdds && ev.Odds != nil {
			writer.Enqueue(*ev.Odds)
		}
	})

	opts := server.Options{
		Bind:            cfg.Server.Bind,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Board:           board,
		Stream:          service,
		Events:          events.Handler(),
		Refresh:         board.Load,
		Clients:         events.Clients,
		Logger:          logger,
	}
	if writer != nil {
		opts.Writer = writer.Stats
	}
	srv := server.New(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return board.Run(gctx)
	})
	g.Go(func() error {
		// A failed load leaves a message on the board; it is not fatal.
		if err := board.Load(gctx); err != nil {
			logger.Warn("initial load failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}
