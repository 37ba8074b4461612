// Package backup uploads entity store snapshots to S3 on a cron schedule.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/storage/snapshot"
	"carbon-scribe/blue-carbon-registry/pkg/storage"
)

// LatestKey asks Restore for the newest backup under the prefix
const LatestKey = "latest"

var ErrNoBackups = errors.New("no backups found")

// Source provides the state to back up
type Source interface {
	ExportState() registry.Snapshot
}

// Target receives restored state
type Target interface {
	Restore(ctx context.Context, snapshot registry.Snapshot) error
}

// Config controls where and how often backups run
type Config struct {
	Schedule string
	Bucket   string
	Prefix   string
	Retain   int
}

// Status reports the outcome of the last run
type Status struct {
	Running   bool      `json:"running"`
	Schedule  string    `json:"schedule"`
	LastKey   string    `json:"last_key,omitempty"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRunAt time.Time `json:"next_run_at,omitempty"`
}

// Scheduler runs periodic snapshot uploads
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	source  Source
	client  storage.S3Client
	config  Config
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	running bool
	status  Status
}

// NewScheduler validates the cron expression (six fields, seconds first)
// and prepares the job without starting it
func NewScheduler(source Source, client storage.S3Client, config Config, logger *zap.Logger) (*Scheduler, error) {
	if config.Bucket == "" {
		return nil, errors.New("backup bucket is required")
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		source: source,
		client: client,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	s.status.Schedule = config.Schedule

	id, err := s.cron.AddFunc(config.Schedule, s.runScheduled)
	if err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", config.Schedule, err)
	}
	s.entryID = id
	return s, nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("backup scheduler already running")
	}
	s.running = true

	s.logger.Info("Starting backup scheduler",
		zap.String("schedule", s.config.Schedule),
		zap.String("bucket", s.config.Bucket),
	)
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running backup to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping backup scheduler")
	<-s.cron.Stop().Done()
}

// Status returns the last run outcome and the next scheduled run
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	status := s.status
	status.Running = s.running
	s.mu.RUnlock()

	if status.Running {
		status.NextRunAt = s.cron.Entry(s.entryID).Schedule.Next(s.now())
	}
	return status
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Scheduled backup failed", zap.Error(err))
	}
}

// RunOnce uploads one snapshot and prunes backups beyond the retention limit
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	at := s.now().UTC()
	key := s.keyFor(at)

	err := s.upload(ctx, key)
	s.mu.Lock()
	s.status.LastRunAt = at
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastKey = key
		s.status.LastError = ""
	}
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.logger.Info("Backup uploaded", zap.String("bucket", s.config.Bucket), zap.String("key", key))

	if err := s.prune(ctx); err != nil {
		// the new backup is in place; pruning is retried on the next run
		s.logger.Warn("Backup pruning failed", zap.Error(err))
	}
	return key, nil
}

func (s *Scheduler) upload(ctx context.Context, key string) error {
	data, err := snapshot.Marshal(s.source.ExportState())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.client.Upload(ctx, s.config.Bucket, key, bytes.NewReader(data))
}

func (s *Scheduler) prune(ctx context.Context) error {
	if s.config.Retain <= 0 {
		return nil
	}
	objects, err := s.client.List(ctx, s.config.Bucket, s.listPrefix())
	if err != nil {
		return err
	}
	// keys embed a sortable timestamp, so key order is age order
	excess := len(objects) - s.config.Retain
	var errs []error
	for _, obj := range objects[:max(excess, 0)] {
		if err := s.client.Delete(ctx, s.config.Bucket, obj.Key); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("Pruned backup", zap.String("key", obj.Key))
	}
	return errors.Join(errs...)
}

// Restore loads the backup under key into target. LatestKey selects the
// newest backup under the configured prefix.
func (s *Scheduler) Restore(ctx context.Context, key string, target Target) (string, error) {
	if key == LatestKey {
		objects, err := s.client.List(ctx, s.config.Bucket, s.listPrefix())
		if err != nil {
			return "", err
		}
		if len(objects) == 0 {
			return "", ErrNoBackups
		}
		key = objects[len(objects)-1].Key
	}

	body, err := s.client.Download(ctx, s.config.Bucket, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read backup %s: %w", key, err)
	}
	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		return "", fmt.Errorf("decode backup %s: %w", key, err)
	}
	if err := target.Restore(ctx, snap); err != nil {
		return "", fmt.Errorf("restore backup %s: %w", key, err)
	}

	s.logger.Info("Restored backup",
		zap.String("key", key),
		zap.Int("projects", len(snap.Projects)),
		zap.Int("credits", len(snap.Credits)),
	)
	return key, nil
}

func (s *Scheduler) keyFor(at time.Time) string {
	return path.Join(s.config.Prefix, "registry-"+at.Format("20060102T150405.000Z")+".json")
}

func (s *Scheduler) listPrefix() string {
	if s.config.Prefix == "" {
		return "registry-"
	}
	return strings.TrimSuffix(s.config.Prefix, "/") + "/registry-"
}
