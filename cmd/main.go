package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/biswa/coduel-signal/internal/config"
	"github.com/biswa/coduel-signal/internal/results"
	"github.com/biswa/coduel-signal/internal/server"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Str("error", eris.ToString(err, true)).Msg("server stopped")
	}
	logger.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	store, client, err := results.Dial(dialCtx, cfg.RedisURL)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info().Str("redis", cfg.RedisURL).Msg("connected to result store")

	srv := server.New(server.Options{
		Port:         cfg.Port,
		CORSOrigin:   cfg.CORSOrigin,
		PollInterval: cfg.PollInterval,
		PollAttempts: cfg.PollAttempts,
		Tolerance:    cfg.Tolerance,
	}, store, logger)

	sched, err := watchStore(client, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return eris.Wrap(sched.Shutdown(), "stop scheduler")
	})
	return g.Wait()
}

// watchStore schedules a ping that logs when the result store stops answering.
// Rounds keep polling regardless.
func watchStore(client *redis.Client, logger zerolog.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, eris.Wrap(err, "create scheduler")
	}
	var unhealthy atomic.Bool
	_, err = sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := client.Ping(ctx).Err()
			switch {
			case err != nil && !unhealthy.Load():
				logger.Warn().Err(err).Msg("result store unreachable")
			case err == nil && unhealthy.Load():
				logger.Info().Msg("result store reachable again")
			}
			unhealthy.Store(err != nil)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, eris.Wrap(err, "schedule store ping")
	}
	sched.Start()
	return sched, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("service", "coduel-signal").Logger()
}
