package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/config"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/logging"
)

func main() {
	if path := config.LoadDotEnv(); path != "" {
		fmt.Printf("Loaded environment from: %s\n", path)
	} else {
		fmt.Println("No .env file found, using system environment variables (OK for pods/containers)")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger error:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	app := fx.New(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Provide(
			ProvideMQConnection,
			ProvideStore,
			ProvideTransport,
			ProvidePublisher,
			ProvideEvaluator,
			ProvideValidator,
			ProvideManager,
			ProvideProcessorService,
			ProvideGateway,
			ProvideRouter,
		),
		fx.Invoke(startHTTPServer, startIngestConsumer),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting application...",
		zap.String("store", cfg.Store.Driver),
		zap.String("transport", cfg.Events.Transport),
		zap.Bool("ingest_consumer", cfg.RabbitMQ.IngestEnabled))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) {
			logger.Error("application start timeout: failed to start within 30 seconds; a dependency (database, Redis or RabbitMQ) is probably unreachable")
		}
		logger.Fatal("application start failed", zap.Error(err))
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Error("error stopping app", zap.Error(err))
	}
}
