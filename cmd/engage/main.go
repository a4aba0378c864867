// Command engage runs the engagement automation engine: webhook ingestion,
// rule matching, durable action plan scheduling and dispatch.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	apiv2 "github.com/postflow/engage/internal/api/v2"
	"github.com/postflow/engage/internal/channel"
	"github.com/postflow/engage/internal/conf"
	"github.com/postflow/engage/internal/datastore"
	"github.com/postflow/engage/internal/dispatch"
	"github.com/postflow/engage/internal/engine"
	"github.com/postflow/engage/internal/generation"
	"github.com/postflow/engage/internal/ingest"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "engage",
		Short:         "Social engagement automation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load(configFile)
			if err != nil {
				return err
			}
			return runServe(settings)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load(configFile)
			if err != nil {
				return err
			}
			if _, err := datastore.Open(&settings.Database); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}

	root.AddCommand(serve, migrate)
	return root
}

func runServe(settings *conf.Settings) error {
	log := logger.NewSlogLogger(os.Stdout, logger.ParseLevel(settings.LogLevel), nil)

	db, err := datastore.Open(&settings.Database)
	if err != nil {
		return err
	}

	rules := repository.NewRuleRepository(db)
	events := repository.NewEventRepository(db)
	plans := repository.NewPlanRepository(db)
	counters := repository.NewRateCounterRepository(db)
	records := repository.NewRecordRepository(db)

	matcher := engine.NewMatcher(rules)
	gate := engine.NewRateGate(counters, log.With(logger.String("component", "rate_gate")))
	evaluator := engine.NewEvaluator(gate)
	scheduler := engine.NewScheduler(plans)
	eng := engine.NewEngine(rules, records, matcher, evaluator, scheduler,
		log.With(logger.String("component", "engine")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.RefreshRules(ctx); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	bus := engine.NewEventBus(settings.Engine.EventBusBuffer)
	bus.Subscribe(eng.HandleEvent)

	ingestor := ingest.NewIngestor(events, bus,
		log.With(logger.String("component", "ingest")))

	adapter := channel.NewGatewayClient(
		settings.Channel.GatewayURL,
		settings.Channel.Token,
		settings.Channel.Timeout.Std())

	var generator generation.Generator
	if settings.Generation.Endpoint != "" {
		generator = generation.NewClient(
			settings.Generation.Endpoint,
			settings.Generation.APIKey,
			settings.Generation.Model,
			settings.Generation.Timeout.Std())
	}

	pool := dispatch.NewPool(dispatch.Config{
		Workers:        settings.Dispatch.Workers,
		PollInterval:   settings.Dispatch.PollInterval.Std(),
		ClaimLease:     settings.Dispatch.ClaimLease.Std(),
		BatchSize:      settings.Dispatch.BatchSize,
		MaxAttempts:    settings.Dispatch.MaxAttempts,
		InitialBackoff: settings.Dispatch.InitialBackoff.Std(),
		MaxBackoff:     settings.Dispatch.MaxBackoff.Std(),
	}, plans, events, rules, records, adapter, generator,
		log.With(logger.String("component", "dispatch")))
	pool.Start(ctx)

	retention := dispatch.NewRetention(dispatch.RetentionConfig{
		RecordDays: settings.Retention.RecordDays,
		EventDays:  settings.Retention.EventDays,
		Interval:   settings.Retention.Interval.Std(),
	}, records, events, log.With(logger.String("component", "retention")))
	retention.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	apiv2.New(e, ingestor, eng, rules, plans, records,
		log.With(logger.String("component", "api")))

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Info("engine started", logger.String("addr", addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("shutting down", logger.String("signal", sig.String()))
	}

	// Stop intake first so no new events enter the pipeline, then drain the
	// bus and let workers finish their current plans.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", logger.Error(err))
	}
	bus.Stop()
	pool.Stop()
	retention.Stop()
	cancel()

	log.Info("shutdown complete")
	return nil
}
