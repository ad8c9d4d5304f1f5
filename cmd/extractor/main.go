// Command extractor runs the BOAMP extraction HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jmarchand/boamp-extractor/internal/api"
	"github.com/jmarchand/boamp-extractor/internal/archive"
	"github.com/jmarchand/boamp-extractor/internal/catalog"
	systemclock "github.com/jmarchand/boamp-extractor/internal/clock/system"
	"github.com/jmarchand/boamp-extractor/internal/config"
	"github.com/jmarchand/boamp-extractor/internal/dispatcher"
	"github.com/jmarchand/boamp-extractor/internal/extract"
	uuidgen "github.com/jmarchand/boamp-extractor/internal/id/uuid"
	"github.com/jmarchand/boamp-extractor/internal/logging"
	"github.com/jmarchand/boamp-extractor/internal/metrics"
	"github.com/jmarchand/boamp-extractor/internal/progress"
	"github.com/jmarchand/boamp-extractor/internal/progress/sinks"
	pubmemory "github.com/jmarchand/boamp-extractor/internal/publisher/memory"
	pubgcp "github.com/jmarchand/boamp-extractor/internal/publisher/pubsub"
	queuememory "github.com/jmarchand/boamp-extractor/internal/queue/memory"
	storememory "github.com/jmarchand/boamp-extractor/internal/store/memory"
	"github.com/jmarchand/boamp-extractor/internal/worker"
	"github.com/jmarchand/boamp-extractor/internal/xlsx"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	var publisher extract.Publisher
	completionTopic := ""
	if cfg.PubSub.Enabled {
		p, err := pubgcp.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, logger.Named("pubsub"))
		if err != nil {
			return fmt.Errorf("connect pubsub: %w", err)
		}
		publisher = p
		completionTopic = cfg.PubSub.TopicName
	} else {
		publisher = pubmemory.New()
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher close failed", zap.Error(err))
		}
	}()

	var archiver archive.Provider = archive.NoOpProvider{}
	if cfg.Archive.Provider == "gcs" {
		gcs, err := archive.NewGCSProvider(ctx, cfg.Archive.GCSBucket, cfg.Archive.Prefix, logger.Named("archive"))
		if err != nil {
			return fmt.Errorf("connect archive bucket: %w", err)
		}
		defer func() {
			if err := gcs.Close(); err != nil {
				logger.Warn("archive close failed", zap.Error(err))
			}
		}()
		archiver = gcs
	}

	client := catalog.NewClient(catalog.Config{
		BaseURL:    cfg.Catalog.BaseURL,
		MarketType: cfg.Catalog.MarketType,
		PageSize:   cfg.Catalog.PageSize,
		UserAgent:  cfg.Catalog.UserAgent,
		Timeout:    cfg.CatalogTimeout(),
	})
	fetcher := catalog.NewFetcher(client, catalog.FetcherConfig{
		PageSize:          cfg.Catalog.PageSize,
		OffsetCeiling:     cfg.Catalog.OffsetCeiling,
		DefaultMaxRecords: cfg.Pipeline.MaxRecords,
	}, hub, logger.Named("catalog"))

	jobStore := storememory.NewJobStore()
	queue := queuememory.NewQueue(cfg.Pipeline.QueueDepth)
	clock := systemclock.New()

	workers := make([]*worker.Worker, 0, cfg.Pipeline.Workers)
	for i := 0; i < cfg.Pipeline.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			fetcher,
			publisher,
			clock,
			hub,
			worker.Config{CompletionTopic: completionTopic},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	server := api.NewServer(jobStore, dispatch, xlsx.New(), archiver, uuidgen.New(), clock, cfg, logger.Named("api"))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatch.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		stop()
		<-dispatchDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	<-dispatchDone
	queue.Close()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
