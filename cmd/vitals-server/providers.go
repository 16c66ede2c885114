package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/alerts"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/config"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/db"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/events/amqpbus"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/events/redisbus"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/httpapi"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/mq"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/repository"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/service"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/threshold"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/validator"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/ws"
)

// ProvideMQConnection opens the RabbitMQ connection when the event transport
// or the ingest consumer needs one, and provides nil otherwise.
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if !cfg.NeedsAMQP() {
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvideStore opens the configured database and returns the alert store
func ProvideStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (alerts.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		gdb, err := db.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		store := repository.NewSQLite(gdb)
		if err := store.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("[DATABASE] sqlite migration failed: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				sqlDB, err := gdb.DB()
				if err != nil {
					return err
				}
				logger.Info("database connection closed")
				return sqlDB.Close()
			},
		})
		logger.Info("using sqlite store", zap.String("path", cfg.Store.SQLitePath))
		return store, nil
	default:
		pool, err := db.NewPool(lc, logger, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgres(pool), nil
	}
}

// ProvideTransport creates the configured event transport
func ProvideTransport(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config, conn *mq.Connection) (events.Transport, error) {
	buffer := cfg.Events.SubscriberBuffer

	switch cfg.Events.Transport {
	case config.TransportRedis:
		client := redisbus.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		bus := redisbus.New(client, buffer, logger)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := bus.Ping(ctx); err != nil {
					return fmt.Errorf("[REDIS CONNECTION FAILED] cannot reach %s: %w", cfg.Redis.Addr, err)
				}
				logger.Info("redis connection established successfully")
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		return bus, nil

	case config.TransportAMQP:
		bus, err := amqpbus.New(conn, cfg.RabbitMQ.EventsExchange, buffer, logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return bus.Close() },
		})
		return bus, nil

	default:
		return events.NewMemory(buffer, logger), nil
	}
}

// ProvidePublisher starts the event publisher and drains it on shutdown
func ProvidePublisher(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config, transport events.Transport) *events.Publisher {
	publisher := events.NewPublisher(transport, events.PublisherConfig{
		Workers:   cfg.Events.PublisherWorkers,
		QueueSize: cfg.Events.QueueSize,
		Timeout:   cfg.Events.PublishTimeout,
	}, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := publisher.Close(ctx); err != nil {
				logger.Warn("publisher did not drain before shutdown", zap.Error(err))
			}
			return nil
		},
	})
	return publisher
}

// ProvideEvaluator creates the threshold evaluator
func ProvideEvaluator() *threshold.Evaluator {
	return threshold.NewEvaluator(threshold.DefaultBands())
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.RecordedAtToleranceMinutes)
}

// ProvideManager creates the alert manager
func ProvideManager(store alerts.Store, evaluator *threshold.Evaluator, publisher *events.Publisher, logger *zap.Logger) *alerts.Manager {
	return alerts.NewManager(store, evaluator, publisher, logger)
}

// ProvideProcessorService creates a new processor service instance
func ProvideProcessorService(manager *alerts.Manager, v *validator.Validator, logger *zap.Logger) *service.ProcessorService {
	return service.NewProcessorService(manager, v, logger)
}

// ProvideGateway creates the WebSocket gateway
func ProvideGateway(transport events.Transport, cfg *config.Config, logger *zap.Logger) *ws.Gateway {
	return ws.NewGateway(transport, cfg.IdentityHeader, logger)
}

// ProvideRouter builds the HTTP router
func ProvideRouter(
	manager *alerts.Manager,
	processor *service.ProcessorService,
	gateway *ws.Gateway,
	cfg *config.Config,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	return httpapi.NewRouter(httpapi.Deps{
		Handlers:       httpapi.NewHandlers(manager, processor),
		Stream:         gateway,
		IdentityHeader: cfg.IdentityHeader,
		Logger:         logger,
	})
}

func startHTTPServer(lc fx.Lifecycle, cfg *config.Config, router *gin.Engine, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.HTTPAddr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
			}
			logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down http server")
			return srv.Shutdown(ctx)
		},
	})
}

func startIngestConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.ProcessorService,
) error {
	if !cfg.RabbitMQ.IngestEnabled {
		return nil
	}

	// Create context for consumer that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.IngestQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.IngestExchange,
		RoutingKey:       cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: processor.ProcessMessage,
		Permanent:        service.IsPermanent,
	})
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting ingest consumer",
				zap.String("queue", cfg.RabbitMQ.IngestQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("ingest consumer stopped gracefully")
			return nil
		},
	})
	return nil
}
