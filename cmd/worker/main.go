// Package main is the entry point for the campus insight worker. The
// worker owns the whole pipeline: it ingests campus exports, runs the
// risk analyses as asynchronous jobs, refreshes daily statistics on a
// schedule, and serves job queries from the shared Redis store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/campus-insight/campus-insight-hub/config"
	"github.com/campus-insight/campus-insight-hub/internal/analysis/aggregator"
	"github.com/campus-insight/campus-insight-hub/internal/analysis/pipeline"
	"github.com/campus-insight/campus-insight-hub/internal/analysis/scorer"
	"github.com/campus-insight/campus-insight-hub/internal/infrastructure/persistence/postgres"
	"github.com/campus-insight/campus-insight-hub/internal/infrastructure/persistence/redis"
	"github.com/campus-insight/campus-insight-hub/internal/infrastructure/scheduler"
	"github.com/campus-insight/campus-insight-hub/internal/jobrunner"
	"github.com/campus-insight/campus-insight-hub/internal/oracle"
	"github.com/campus-insight/campus-insight-hub/pkg/logger"
	"github.com/campus-insight/campus-insight-hub/pkg/timeutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logOpts := logger.DefaultOptions()
	logOpts.Level = logger.ParseLevel(cfg.Log.Level)
	log := logger.New(logOpts)

	log.Info("starting campus insight worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. PostgreSQL: canonical storage and migrations
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()

	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database ready")

	eventRepo := postgres.NewEventRepository(dbConn)
	studentRepo := postgres.NewStudentRepository(dbConn)
	statsRepo := postgres.NewDailyStatisticRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Redis: job store and report artifacts
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to redis")
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := redis.NewCache(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() {
		log.Info("closing redis connection")
		_ = cache.Close()
	}()

	jobStore := redis.NewJobStore(cache)
	artifacts := redis.NewArtifactCache(cache)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Scoring oracle (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var indicators scorer.IndicatorSource
	if cfg.Oracle.Enabled {
		oracleCfg := oracle.DefaultClientConfig(cfg.Oracle.BaseURL)
		oracleCfg.APIKey = cfg.Oracle.APIKey
		oracleCfg.Timeout = cfg.Oracle.RequestTimeout
		oracleCfg.MaxBatch = cfg.Oracle.MaxBatch
		oracleCfg.Logger = log
		indicators = oracle.NewClient(oracleCfg)
		log.Info("scoring oracle enabled", logger.String("base_url", cfg.Oracle.BaseURL))
	} else {
		log.Warn("scoring oracle disabled, ideology runs degrade to rule-only")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Job runner and analysis pipeline
	// ─────────────────────────────────────────────────────────────────────────
	runnerCfg := jobrunner.DefaultConfig()
	runnerCfg.Workers = cfg.Runner.Workers
	runnerCfg.QueueSize = cfg.Runner.QueueSize
	runnerCfg.JobTimeout = cfg.Runner.JobTimeout

	runner := jobrunner.NewRunner(jobStore, runnerCfg, log)
	runner.Start(ctx)
	defer func() {
		log.Info("stopping job runner")
		runner.Stop()
	}()

	agg := aggregator.New(eventRepo, studentRepo, log)
	p := pipeline.New(agg, studentRepo, indicators, artifacts, log)
	_ = p // submission surface not wired yet
	log.Info("analysis pipeline ready")

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Background scheduler
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(scheduler.Config{
			Logger:   slog.Default(),
			Timezone: timeutil.CampusTZ,
		})
		statsJob := scheduler.NewDailyStatsJob(eventRepo, studentRepo, statsRepo)
		statsSchedule := scheduler.NewDailySchedule(
			cfg.Scheduler.StatsRefreshHour,
			cfg.Scheduler.StatsRefreshMinute,
			timeutil.CampusTZ,
		)
		if err := sched.Register(statsJob, statsSchedule); err != nil {
			return fmt.Errorf("failed to register stats job: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler")
			_ = sched.Stop()
		}()
	}

	log.Info("worker started")

	// ─────────────────────────────────────────────────────────────────────────
	// 7. Wait for shutdown signal
	// ─────────────────────────────────────────────────────────────────────────
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("shutdown signal received", logger.String("signal", s.String()))
	case <-ctx.Done():
		log.Info("context cancelled")
	}
	return nil
}
