package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/backup"
	"carbon-scribe/blue-carbon-registry/internal/config"
	"carbon-scribe/blue-carbon-registry/internal/logging"
	"carbon-scribe/blue-carbon-registry/internal/storage"
	"carbon-scribe/blue-carbon-registry/pkg/chain"
	objectstore "carbon-scribe/blue-carbon-registry/pkg/storage"
)

// BackupWorker snapshots a persistent entity store to S3 outside the API process
type BackupWorker struct {
	backend   storage.Backend
	scheduler *backup.Scheduler
	logger    *zap.Logger
	timeout   time.Duration
}

// NewBackupWorker opens the configured store and prepares the scheduler
func NewBackupWorker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*BackupWorker, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		return nil, errors.New("backup worker needs a persistent storage driver (sqlite or postgres)")
	}

	backend, err := storage.Open(cfg, chain.NewSimulator(cfg.Blockchain.Network, cfg.Blockchain.TokenPrefix))
	if err != nil {
		return nil, err
	}

	opts := objectstore.AWSOptions{
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		UsePathStyle:    cfg.AWS.UsePathStyle,
	}
	awsCfg, err := objectstore.LoadAWSConfig(ctx, opts)
	if err != nil {
		backend.Close()
		return nil, err
	}

	scheduler, err := backup.NewScheduler(backend, objectstore.NewS3Client(awsCfg, opts.UsePathStyle), backup.Config{
		Schedule: cfg.Backup.Schedule,
		Bucket:   cfg.Backup.Bucket,
		Prefix:   cfg.Backup.Prefix,
		Retain:   cfg.Backup.Retain,
	}, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &BackupWorker{
		backend:   backend,
		scheduler: scheduler,
		logger:    logger,
		timeout:   5 * time.Minute,
	}, nil
}

// RunOnce uploads a single snapshot
func (w *BackupWorker) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	key, err := w.scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("Backup complete", zap.String("key", key))
	return nil
}

// Restore replaces the store contents with the backup under key
func (w *BackupWorker) Restore(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	_, err := w.scheduler.Restore(ctx, key, w.backend)
	return err
}

// Start runs the cron schedule until ctx is cancelled
func (w *BackupWorker) Start(ctx context.Context) error {
	if err := w.scheduler.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	w.logger.Info("Backup worker shutting down")
	w.scheduler.Stop()
	return nil
}

// Close releases the store
func (w *BackupWorker) Close() error {
	return w.backend.Close()
}

func main() {
	configPath := flag.String("config", "config.json", "path to JSON config file")
	once := flag.Bool("once", false, "upload one backup and exit")
	restore := flag.String("restore", "", `restore the given backup key ("latest" for the newest) and exit`)
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker, err := NewBackupWorker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create backup worker", zap.Error(err))
	}
	defer worker.Close()

	switch {
	case *restore != "":
		err = worker.Restore(ctx, *restore)
	case *once:
		err = worker.RunOnce(ctx)
	default:
		logger.Info("Backup worker starting", zap.String("schedule", cfg.Backup.Schedule))
		err = worker.Start(ctx)
	}
	if err != nil {
		logger.Error("Backup worker failed", zap.Error(err))
		stop()
		worker.Close()
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Backup worker stopped")
}
