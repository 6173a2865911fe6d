// Worker runs the background jobs: the retention reaper, the stale desktop session sweep, and
// (when KAFKA_BROKERS and LOKI_URL are set) the auth event forwarder from Kafka to Loki.
// Several replicas may run; REDIS_URL makes the reaper take a distributed lock.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/config"
	"helpdesk-auth/backend/internal/db"
	"helpdesk-auth/backend/internal/logging"
	"helpdesk-auth/backend/internal/reaper"
	sessionrepo "helpdesk-auth/backend/internal/session/repository"
	sessionsvc "helpdesk-auth/backend/internal/session/service"
	"helpdesk-auth/backend/internal/telemetry/forwarder"
	"helpdesk-auth/backend/internal/telemetry/loki"
	tokenrepo "helpdesk-auth/backend/internal/token/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log, err := logging.New(cfg.Env)
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("worker exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	var locker reaper.Locker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		locker = reaper.NewRedisLocker(rdb, log)
	}

	sessionsRepo := sessionrepo.NewPostgresRepository(pool)
	r := reaper.New(tokenrepo.NewPostgresRepository(pool), sessionsRepo, locker, log)
	sessions := sessionsvc.NewManager(sessionsRepo, log)

	var wg sync.WaitGroup
	start := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("job started", zap.String("job", name))
			fn()
			log.Info("job stopped", zap.String("job", name))
		}()
	}

	start("reaper", func() {
		every(ctx, cfg.ReaperEvery(), func(ctx context.Context) {
			if _, err := r.Run(ctx, cfg.TokenRetentionDays); err != nil {
				if errors.Is(err, reaper.ErrLocked) {
					log.Debug("reaper skipped; another worker holds the lock")
					return
				}
				log.Error("reaper run failed", zap.Error(err))
			}
		})
	})

	if timeout := cfg.StaleTimeout(); timeout > 0 {
		interval := timeout / 4
		if interval < time.Minute {
			interval = time.Minute
		}
		start("stale-sessions", func() {
			every(ctx, interval, func(ctx context.Context) {
				if _, err := sessions.TerminateStale(ctx, timeout); err != nil {
					log.Error("stale session sweep failed", zap.Error(err))
				}
			})
		})
	}

	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 && cfg.LokiURL != "" {
		reader := forwarder.NewReader(brokers, cfg.AuthEventsTopic, cfg.KafkaGroupID)
		defer func() { _ = reader.Close() }()
		fwd := forwarder.New(reader, loki.NewClient(cfg.LokiURL, cfg.OTelServiceName, nil), log)
		start("event-forwarder", func() {
			if err := fwd.Run(ctx); err != nil {
				log.Error("event forwarder failed", zap.Error(err))
			}
		})
	} else {
		log.Info("KAFKA_BROKERS or LOKI_URL not set; event forwarding disabled")
	}

	<-ctx.Done()
	log.Info("worker shutting down")
	wg.Wait()
	return nil
}

// every runs fn immediately and then on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}
