// Command server runs the Clover contact identity resolution API.
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

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/config"
	contactrepo "github.com/Ramsey-B/clover/internal/repositories/contact"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/routes"
	contactroutes "github.com/Ramsey-B/clover/pkg/routes/contacts"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/identify"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var version = "1.0.0"

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{AppName: cfg.AppName, Level: cfg.LogLevel, Pretty: cfg.PrettyLogs})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(cfg.AppName)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	dbCfg := database.Config{
		Driver:                cfg.DatabaseDriver,
		Host:                  cfg.DatabaseHost,
		Port:                  cfg.DatabasePort,
		UserName:              cfg.DatabaseUserName,
		Password:              cfg.DatabasePassword,
		Name:                  cfg.DatabaseName,
		SSLMode:               cfg.DatabaseSSLMode,
		ReconnectRetryCount:   cfg.DatabaseReconnectRetryCount,
		MaxOpenConns:          cfg.DatabaseMaxOpenConns,
		MaxIdleConns:          cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime:       cfg.DatabaseConnMaxLifetime,
		MigrationFolderPath:   cfg.DatabaseMigrationFolderPath,
		MigrationVersion:      cfg.DatabaseMigrationVersion,
		MigrationForce:        cfg.DatabaseMigrationForce,
		MigrationAutoRollback: cfg.DatabaseMigrationAutoRollback,
	}

	db, err := database.Connect(dbCfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(db, dbCfg, logger); err != nil {
		return err
	}

	repo := contactrepo.NewRepository(db, logger)

	var emitter resolution.EventSink
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaBrokers[0] != "" {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	var mirror resolution.ClusterSink
	if cfg.GraphEnabled {
		graphClient, err := graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			return err
		}
		defer graphClient.Close(context.Background())

		if err := graphClient.VerifyConnectivity(ctx); err != nil {
			logger.WithError(err).Warn("Graph database unreachable at startup; mirroring will retry per request")
		}
		mirror = graph.NewMirror(graphClient, logger)
	}

	reconciler := resolution.NewReconciler(repo, logger, emitter, mirror, resolution.Config{
		MaxTxRetries:          cfg.ResolveTxMaxRetries,
		NormalizeEmails:       cfg.NormalizeEmails,
		NormalizePhoneNumbers: cfg.NormalizePhoneNumbers,
	})

	var consumer *kafka.Consumer
	if cfg.KafkaConsumerEnabled && len(cfg.KafkaBrokers) > 0 && cfg.KafkaBrokers[0] != "" {
		proc := processor.NewProcessor(reconciler, logger)
		consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaInputTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, proc.HandleMessage)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Error("Failed to stop consumer")
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = routes.ErrorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	identify.NewHandler(reconciler, logger).Register(e)
	contactroutes.NewHandler(reconciler, logger).Register(e)

	var consumerCheck interface{ Health() bool }
	if consumer != nil {
		consumerCheck = consumer
	}
	checker := health.NewChecker(db, consumerCheck, version)
	checker.RegisterRoutes(e)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]any{"port": cfg.Port, "version": version}).Info("Server starting")
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	checker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
