package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "carbon-scribe/blue-carbon-registry/api/v1"
	"carbon-scribe/blue-carbon-registry/internal/analytics"
	"carbon-scribe/blue-carbon-registry/internal/backup"
	"carbon-scribe/blue-carbon-registry/internal/config"
	"carbon-scribe/blue-carbon-registry/internal/logging"
	"carbon-scribe/blue-carbon-registry/internal/monitoring/alerts"
	"carbon-scribe/blue-carbon-registry/internal/monitoring/metrics"
	"carbon-scribe/blue-carbon-registry/internal/notifications"
	"carbon-scribe/blue-carbon-registry/internal/notifications/websocket"
	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/reports"
	"carbon-scribe/blue-carbon-registry/internal/storage"
	"carbon-scribe/blue-carbon-registry/pkg/chain"
	"carbon-scribe/blue-carbon-registry/pkg/pdf"
	"carbon-scribe/blue-carbon-registry/pkg/security"
	objectstore "carbon-scribe/blue-carbon-registry/pkg/storage"
)

func main() {
	configPath := flag.String("config", "config.json", "path to JSON config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// no logger yet
		panic(err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Server exiting")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	sim := chain.NewSimulator(cfg.Blockchain.Network, cfg.Blockchain.TokenPrefix)

	// Open entity store
	logger.Info("Opening entity store", zap.String("driver", cfg.Storage.Driver))
	backend, err := storage.Open(cfg, sim)
	if err != nil {
		return err
	}
	defer backend.Close()

	// Event fan-out
	m := metrics.New()
	dispatcher := notifications.NewDispatcher(logger)
	dispatcher.Register(notifications.ChannelMetrics, m)

	var ws *websocket.Manager
	if cfg.Notifications.WebSocketEnabled {
		ws = websocket.NewManager(logger)
		defer ws.Close()
		dispatcher.Register(notifications.ChannelWebSocket, ws)
		if err := m.RegisterGauge("websocket_connections", "Open websocket connections.", func() float64 {
			return float64(ws.GetConnectionCount())
		}); err != nil {
			return err
		}
	}

	needsAWS := cfg.Notifications.SNSTopicARN != "" || cfg.Backup.Enabled || cfg.Backup.RestoreKey != ""
	var awsOpts objectstore.AWSOptions
	if needsAWS {
		awsOpts = objectstore.AWSOptions{
			Region:          cfg.AWS.Region,
			Endpoint:        cfg.AWS.Endpoint,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			UsePathStyle:    cfg.AWS.UsePathStyle,
		}
	}

	if cfg.Notifications.SNSTopicARN != "" {
		awsCfg, err := objectstore.LoadAWSConfig(ctx, awsOpts)
		if err != nil {
			return err
		}
		dispatcher.Register(notifications.ChannelSNS, notifications.NewSNSPublisherFromConfig(awsCfg, cfg.Notifications.SNSTopicARN))
		logger.Info("SNS fan-out enabled", zap.String("topic", cfg.Notifications.SNSTopicARN))
	}

	// Backups
	var scheduler *backup.Scheduler
	if cfg.Backup.Enabled || cfg.Backup.RestoreKey != "" {
		awsCfg, err := objectstore.LoadAWSConfig(ctx, awsOpts)
		if err != nil {
			return err
		}
		scheduler, err = backup.NewScheduler(backend, objectstore.NewS3Client(awsCfg, awsOpts.UsePathStyle), backup.Config{
			Schedule: cfg.Backup.Schedule,
			Bucket:   cfg.Backup.Bucket,
			Prefix:   cfg.Backup.Prefix,
			Retain:   cfg.Backup.Retain,
		}, logger)
		if err != nil {
			return err
		}
		if cfg.Backup.RestoreKey != "" {
			if _, err := scheduler.Restore(ctx, cfg.Backup.RestoreKey, backend); err != nil {
				return err
			}
		}
		if cfg.Backup.Enabled {
			if err := scheduler.Start(); err != nil {
				return err
			}
			defer scheduler.Stop()
		}
	}

	// Initialize registry
	svc := registry.NewService(backend, dispatcher, sim, logger)

	var engine *alerts.Engine
	if cfg.Alerts.Enabled {
		rules, err := alerts.LoadRules(cfg.Alerts.RulesFile)
		if err != nil {
			return err
		}
		if engine, err = alerts.NewEngine(rules, svc, logger, alerts.WithSink(dispatcher)); err != nil {
			return err
		}
		dispatcher.Register(notifications.ChannelAlerts, engine)
		logger.Info("Sensor alerts enabled", zap.Int("rules", len(rules)))
	}

	if cfg.Storage.Seed {
		if state := backend.ExportState(); len(state.Users) > 0 || len(state.Projects) > 0 {
			logger.Info("Store is not empty, skipping seed", zap.Int("projects", len(state.Projects)))
		} else if err := registry.Seed(ctx, svc); err != nil {
			return err
		}
	}

	signer, err := security.NewSigner(cfg.Certificates.SigningKey)
	if err != nil {
		return err
	}
	if cfg.Certificates.SigningKey == "" {
		logger.Warn("No certificate signing key configured; using an ephemeral key",
			zap.String("signer", signer.Address()))
	}
	reportService := reports.NewService(svc,
		pdf.NewGenerator(cfg.Certificates.Issuer, cfg.Certificates.Watermark),
		signer, logger)

	// Setup Router
	gin.SetMode(cfg.Server.Mode)
	api := v1.API{
		Registry:   svc,
		Analytics:  analytics.NewAggregator(backend, logger),
		Reports:    reportService,
		Alerts:     engine,
		WebSocket:  ws,
		Dispatcher: dispatcher,
		Backup:     scheduler,
		Logger:     logger,
	}
	if cfg.Metrics.Enabled {
		api.Metrics = m
		api.MetricsPath = cfg.Metrics.Path
	}
	router := v1.NewRouter(api)

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	return nil
}
