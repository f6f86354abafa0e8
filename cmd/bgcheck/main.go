// Command bgcheck is the background monitoring task. A host timer (cron,
// a systemd timer) runs it; it probes the persisted endpoints once when
// monitoring is on and the registered minimum interval has elapsed.
//
// Exit status is 0 for no-data and new-data, 1 for failed.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/background"
	"github.com/hamed0406/uptimealarm/internal/config"
	"github.com/hamed0406/uptimealarm/internal/logging"
	"github.com/hamed0406/uptimealarm/internal/probe"
	"github.com/hamed0406/uptimealarm/internal/repo"
	"github.com/hamed0406/uptimealarm/internal/repo/file"
	pg "github.com/hamed0406/uptimealarm/internal/repo/postgres"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, logging.Options{Level: cfg.LogLevel, Console: cfg.LogConsole})
	if err != nil {
		log.Fatal(err)
	}

	out := run(cfg, logger)
	fmt.Println(out)
	_ = logger.Sync()
	if out == background.Failed {
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) background.Outcome {
	// one probe round plus store round-trips
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout+30*time.Second)
	defer cancel()

	var durable repo.KV
	if cfg.DatabaseURL != "" {
		s, err := pg.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("store_open_error", zap.Error(err))
			return background.Failed
		}
		defer s.Close()
		durable = s
	} else {
		s, err := file.New(cfg.StorePath())
		if err != nil {
			logger.Error("store_open_error", zap.Error(err))
			return background.Failed
		}
		durable = s
	}

	runner := background.NewRunner(logger, durable, probe.NewProber(logger, probe.NewHTTPChecker(cfg.ProbeTimeout)))
	out, err := background.NewRegistry(durable, logger).Invoke(ctx, background.TaskName, runner.Run)
	if err != nil {
		logger.Warn("background_record_error", zap.Error(err))
	}
	logger.Info("background_outcome", zap.Stringer("outcome", out))
	return out
}
