package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	reqhandler "github.com/aliskhannn/image-compressor/internal/api/handlers/request"
	"github.com/aliskhannn/image-compressor/internal/api/router"
	"github.com/aliskhannn/image-compressor/internal/api/server"
	"github.com/aliskhannn/image-compressor/internal/config"
	"github.com/aliskhannn/image-compressor/internal/infra/kafka/consumer"
	"github.com/aliskhannn/image-compressor/internal/infra/kafka/producer"
	"github.com/aliskhannn/image-compressor/internal/infra/local"
	"github.com/aliskhannn/image-compressor/internal/infra/redis"
	reqmsg "github.com/aliskhannn/image-compressor/internal/kafka/handlers/request"
	"github.com/aliskhannn/image-compressor/internal/model"
	"github.com/aliskhannn/image-compressor/internal/notifier"
	"github.com/aliskhannn/image-compressor/internal/pipeline"
	"github.com/aliskhannn/image-compressor/internal/processor"
	"github.com/aliskhannn/image-compressor/internal/report"
	reqrepo "github.com/aliskhannn/image-compressor/internal/repository/request"
	reqsvc "github.com/aliskhannn/image-compressor/internal/service/request"
	"github.com/aliskhannn/image-compressor/internal/storage/file"
)

// queue is whichever background hand-off driver is configured.
type queue interface {
	Enqueue(ctx context.Context, task model.Task) error
}

// deferredQueue lets the service be built before the driver that consumes from it.
type deferredQueue struct {
	queue
}

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Initialize object storage (MinIO).
	storage, err := file.NewStorage(
		ctx,
		cfg.Storage.Endpoint,
		cfg.Storage.AccessKey,
		cfg.Storage.SecretKey,
		cfg.Storage.BucketName,
		cfg.Storage.PublicURL,
		cfg.Storage.UseSSL,
	)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	mode, err := pipeline.ParseMode(cfg.Processor.FailureMode)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid processor config")
	}

	// Repository, processing pipeline and service layer.
	repo := reqrepo.NewRepository(db)
	compressor := processor.New(
		storage,
		processor.WithQuality(cfg.Processor.Quality),
		processor.WithHTTPClient(&http.Client{Timeout: cfg.Processor.FetchTimeout}),
	)
	reports := report.NewGenerator(storage)
	webhook := notifier.NewWebhook(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout)
	pl := pipeline.New(repo, compressor, reports, webhook, mode)

	q := &deferredQueue{}
	service := reqsvc.NewService(repo, q, pl)

	// Background hand-off.
	var (
		wg      sync.WaitGroup
		closers []func()
	)

	switch cfg.Queue.Driver {
	case config.DriverKafka:
		p := producer.New(&cfg.Kafka, strategy)
		c := consumer.New(&cfg.Kafka, strategy, reqmsg.NewTaskHandler(service))
		q.queue = p

		wg.Add(1)
		go c.Consume(ctx, &wg)

		closers = append(closers, func() {
			if err := p.Close(); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
			}
		})

	case config.DriverRedis:
		streams, err := redis.NewStreamsQueue(ctx, &cfg.Redis)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		q.queue = streams

		wg.Add(1)
		go streams.Consume(ctx, &wg, service)

		closers = append(closers, func() {
			if err := streams.Close(); err != nil {
				zlog.Logger.Error().Err(err).Msg("failed to close redis client")
			}
		})

	case config.DriverLocal:
		pool := local.New(
			service,
			local.WithWorkers(cfg.Queue.Workers),
			local.WithQueueSize(cfg.Queue.Size),
			local.WithProcessTimeout(cfg.Queue.ProcessTimeout),
		)
		q.queue = pool

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownWait)
			defer cancel()
			pool.Shutdown(shutdownCtx)
		}()
	}

	zlog.Logger.Info().Str("driver", cfg.Queue.Driver).Msg("queue started")

	// Start HTTP server in a separate goroutine.
	r := router.Setup(
		reqhandler.NewHandler(service, cfg.Server.MaxUploadSize),
		router.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RateLimitRPS:   cfg.RateLimit.RPS,
			RateLimitBurst: cfg.RateLimit.Burst,
		},
	)
	s := server.New(":"+cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Stop accepting uploads before the queue goes away.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownWait)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Wait for consumers to finish the request in progress.
	wg.Wait()

	for _, closeFn := range closers {
		closeFn()
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close master DB")
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Error().Err(err).Int("slave", i).Msg("failed to close slave DB")
		}
	}
}
