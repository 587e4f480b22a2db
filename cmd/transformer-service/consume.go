package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pdfme/transformer-service/pkg/cache"
	"github.com/pdfme/transformer-service/pkg/config"
	"github.com/pdfme/transformer-service/pkg/database"
	"github.com/pdfme/transformer-service/pkg/metrics"
	minioPkg "github.com/pdfme/transformer-service/pkg/minio"
	"github.com/pdfme/transformer-service/pkg/processor"
	"github.com/pdfme/transformer-service/pkg/rabbitmq"
	"github.com/pdfme/transformer-service/pkg/servicex"
	"github.com/pdfme/transformer-service/pkg/sink"
	"github.com/pdfme/transformer-service/pkg/transform"
)

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Consume transform requests until interrupted",
		RunE:  runConsume,
	}
}

func runConsume(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.QueueName == "" {
		return errors.New("config: QUEUE_NAME is required")
	}

	slog.Info("transformer starting",
		"queue", cfg.QueueName,
		"destination", cfg.ResultDestination,
		"output_dir", cfg.OutputDir,
		"transformer", cfg.Transformer,
	)

	mem := memory.DefaultAllocator
	tr, err := newTransformer(cfg, cfg.Transformer, mem)
	if err != nil {
		return err
	}

	resultSink, err := newSink(cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	opts := []processor.Option{processor.WithMetrics(m)}

	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisCache.Close()
		opts = append(opts, processor.WithLedger(redisCache))
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	}

	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgresDB(cfg.DatabaseURL, cfg.DatabaseMaxPool)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		opts = append(opts, processor.WithLedger(db))
		slog.Info("postgres connected")
	}

	consumer, err := rabbitmq.NewConsumer(rabbitmq.Options{
		URL:             cfg.RabbitURL,
		QueueName:       cfg.QueueName,
		FailureExchange: cfg.FailureExchange,
		Prefetch:        cfg.PrefetchCount,
		ConnectRetries:  cfg.ConnectRetries,
		ConnectDelay:    cfg.ConnectDelay,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	defer consumer.Close()

	reporter := servicex.NewClient(&http.Client{Timeout: cfg.StatusTimeout}, cfg.StatusMaxRetries)
	proc := processor.NewFileProcessor(
		transform.NewExecutor(tr, mem),
		resultSink,
		reporter,
		consumer,
		opts...,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			slog.Info("metrics server started", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return consumer.Start(gctx, proc.Handle)
	})

	err = g.Wait()
	slog.Info("transformer stopped")
	return err
}

// newSink builds the result sink for the configured destination.
func newSink(cfg *config.Config) (*sink.Sink, error) {
	if !cfg.UsesObjectStore() {
		return sink.New(cfg.OutputDir, nil), nil
	}

	client, err := minioPkg.InitMinIOClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		return nil, err
	}
	return sink.New(cfg.OutputDir, minioPkg.NewStore(client, cfg.MinioBucket)), nil
}
