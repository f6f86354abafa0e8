package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/alarm"
	"github.com/hamed0406/uptimealarm/internal/audio"
	"github.com/hamed0406/uptimealarm/internal/background"
	"github.com/hamed0406/uptimealarm/internal/config"
	"github.com/hamed0406/uptimealarm/internal/httpapi"
	apimw "github.com/hamed0406/uptimealarm/internal/httpapi/middleware"
	"github.com/hamed0406/uptimealarm/internal/logging"
	"github.com/hamed0406/uptimealarm/internal/monitor"
	"github.com/hamed0406/uptimealarm/internal/notify"
	"github.com/hamed0406/uptimealarm/internal/probe"
	"github.com/hamed0406/uptimealarm/internal/repo"
	"github.com/hamed0406/uptimealarm/internal/repo/file"
	"github.com/hamed0406/uptimealarm/internal/repo/memory"
	pg "github.com/hamed0406/uptimealarm/internal/repo/postgres"
	"github.com/hamed0406/uptimealarm/internal/scheduler"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, logging.Options{Level: cfg.LogLevel, Console: cfg.LogConsole})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	durable, closeStore, err := openDurable(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_error", zap.Error(err))
	}
	state := repo.NewState(repo.NewWriteThrough(memory.New(), durable, logger), logger)

	seed, err := config.LoadSeed(cfg.SeedFile)
	if err != nil {
		logger.Warn("seed_load_error", zap.Error(err))
	}
	if n, errs := seed.Apply(ctx, state); n > 0 || len(errs) > 0 {
		logger.Info("seed_applied", zap.Int("endpoints", n), zap.Errors("errors", errs))
	}

	hub := httpapi.NewHub(logger, cfg.AllowedOrigins)

	var player alarm.Player = audio.Nop{}
	if cfg.AlarmSound != "" {
		player = audio.NewCommand(logger, cfg.AlarmPlayer, cfg.AlarmSound)
	}
	machine := alarm.NewMachine(logger, player, notify.Multi{notify.Log{Logger: logger}, hub})
	machine.Prepare()

	prober := probe.NewProber(logger, probe.NewHTTPChecker(cfg.ProbeTimeout))
	sched := scheduler.New(logger, state, prober, machine,
		scheduler.WithFacility(background.NewRegistry(durable, logger)),
		scheduler.WithBackgroundInterval(cfg.BackgroundMinInterval),
	)
	svc := monitor.NewService(logger, state, sched, machine)
	svc.Subscribe(hub.PublishSnapshot)

	if err := sched.Resume(ctx); err != nil {
		logger.Warn("resume_error", zap.Error(err))
	}

	api := httpapi.NewServer(logger, svc, hub)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("api_shutdown")
	case err := <-errCh:
		logger.Error("api_listen_error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// keeps the persisted monitoring flag so the next boot resumes
	sched.Close()
	err = multierr.Combine(
		srv.Shutdown(shutdownCtx),
		player.Stop(),
		closeStore(),
	)
	if err != nil {
		logger.Error("shutdown_error", zap.Error(err))
	}
}

// openDurable returns the postgres store when DATABASE_URL is set and the
// JSON file store otherwise.
func openDurable(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.KV, func() error, error) {
	if cfg.DatabaseURL != "" {
		s, err := pg.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store_postgres")
		return s, func() error { s.Close(); return nil }, nil
	}
	s, err := file.New(cfg.StorePath())
	if err != nil {
		return nil, nil, err
	}
	logger.Info("store_file", zap.String("path", s.Path()))
	return s, func() error { return nil }, nil
}
