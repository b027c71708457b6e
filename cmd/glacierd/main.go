package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/glacier-melt-service/internal/adapter/frost"
	httpadapter "github.com/couchcryptid/glacier-melt-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/glacier-melt-service/internal/adapter/kafka"
	"github.com/couchcryptid/glacier-melt-service/internal/cache"
	"github.com/couchcryptid/glacier-melt-service/internal/config"
	"github.com/couchcryptid/glacier-melt-service/internal/domain"
	"github.com/couchcryptid/glacier-melt-service/internal/meteo"
	"github.com/couchcryptid/glacier-melt-service/internal/observability"
	"github.com/couchcryptid/glacier-melt-service/internal/pipeline"
	"github.com/couchcryptid/glacier-melt-service/internal/scheduler"
	"github.com/couchcryptid/glacier-melt-service/internal/summary"
)

// alwaysReady is the readiness check when no pipeline is running.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	backend := frost.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, cfg.BackendMaxRetries, logger, metrics)
	observations := meteo.NewObservationClient(backend, clock, logger, metrics)
	normals := meteo.NewNormalsResolver(backend, clock, logger, metrics)
	summaryCache := cache.New[domain.Summary](cfg.SummaryCacheTTL, cfg.SummaryCacheSize, clock)
	summaries := summary.NewService(observations, normals, summaryCache, clock, cfg.SummaryTimeout, logger, metrics)
	processor := domain.NewProcessor(domain.ProcessorOptions{HistoryWindow: cfg.HistoryWindow})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ready httpadapter.ReadinessChecker = alwaysReady{}
	var reader *kafkaadapter.Reader
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer := pipeline.NewTransformer(backend, processor, clock, logger, metrics)
		p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)
		ready = p

		// Start simulation pipeline.
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("simulation pipeline disabled")
	}

	warmer := scheduler.NewWarmer(cfg.WarmStations, cfg.WarmInterval, cfg.SummaryTimeout, summaries, logger)
	if err := warmer.Start(); err != nil {
		logger.Error("summary warmer failed to start", "error", err)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, summaries, processor, logger, metrics)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	warmer.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
