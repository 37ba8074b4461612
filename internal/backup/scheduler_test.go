package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
	"carbon-scribe/blue-carbon-registry/internal/storage/memory"
	"carbon-scribe/blue-carbon-registry/internal/storage/snapshot"
	"carbon-scribe/blue-carbon-registry/pkg/storage"
)

// MockS3Client is a mock implementation of the S3Client interface
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	data, _ := io.ReadAll(body)
	args := m.Called(ctx, bucket, key, data)
	return args.Error(0)
}

func (m *MockS3Client) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockS3Client) Delete(ctx context.Context, bucket, key string) error {
	args := m.Called(ctx, bucket, key)
	return args.Error(0)
}

func (m *MockS3Client) List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	args := m.Called(ctx, bucket, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.ObjectInfo), args.Error(1)
}

func populatedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	store.ImportState(registry.Snapshot{
		Projects: []registry.Project{{
			ID:          "p1",
			Name:        "Kerala Mangrove Restoration",
			ProjectType: registry.ProjectTypeMangrove,
			Area:        10,
			Location:    "Kerala",
			Status:      registry.ProjectStatusPending,
		}},
		TokenSequence: 4,
	})
	return store
}

func newScheduler(t *testing.T, client storage.S3Client, cfg Config) *Scheduler {
	t.Helper()
	if cfg.Schedule == "" {
		cfg.Schedule = "0 0 * * * *"
	}
	s, err := NewScheduler(populatedStore(t), client, cfg, zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestNewSchedulerValidates(t *testing.T) {
	_, err := NewScheduler(memory.NewStore(), &MockS3Client{}, Config{Schedule: "not a cron", Bucket: "b"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewScheduler(memory.NewStore(), &MockS3Client{}, Config{Schedule: "0 0 * * * *"}, zap.NewNop())
	assert.Error(t, err)
}

func TestRunOnceUploadsSnapshot(t *testing.T) {
	client := new(MockS3Client)
	const key = "backups/registry-20250701T120000.000Z.json"
	client.On("Upload", mock.Anything, "bucket", key, mock.MatchedBy(func(data []byte) bool {
		snap, err := snapshot.Unmarshal(data)
		return err == nil && len(snap.Projects) == 1 && snap.TokenSequence == 4
	})).Return(nil).Once()

	s := newScheduler(t, client, Config{Bucket: "bucket", Prefix: "backups/"})
	got, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, key, got)

	status := s.Status()
	assert.Equal(t, key, status.LastKey)
	assert.Empty(t, status.LastError)
	client.AssertExpectations(t)
}

func TestRunOnceRecordsFailure(t *testing.T) {
	client := new(MockS3Client)
	client.On("Upload", mock.Anything, "bucket", mock.Anything, mock.Anything).Return(errors.New("access denied"))

	s := newScheduler(t, client, Config{Bucket: "bucket"})
	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, "access denied", s.Status().LastError)
	client.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunOncePrunesOldest(t *testing.T) {
	client := new(MockS3Client)
	client.On("Upload", mock.Anything, "bucket", mock.Anything, mock.Anything).Return(nil)
	client.On("List", mock.Anything, "bucket", "backups/registry-").Return([]storage.ObjectInfo{
		{Key: "backups/registry-20250101T000000.000Z.json"},
		{Key: "backups/registry-20250201T000000.000Z.json"},
		{Key: "backups/registry-20250301T000000.000Z.json"},
	}, nil)
	client.On("Delete", mock.Anything, "bucket", "backups/registry-20250101T000000.000Z.json").Return(nil).Once()

	s := newScheduler(t, client, Config{Bucket: "bucket", Prefix: "backups", Retain: 2})
	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "Delete", 1)
}

func TestPruneFailureDoesNotFailBackup(t *testing.T) {
	client := new(MockS3Client)
	client.On("Upload", mock.Anything, "bucket", mock.Anything, mock.Anything).Return(nil)
	client.On("List", mock.Anything, "bucket", mock.Anything).Return(nil, errors.New("throttled"))

	s := newScheduler(t, client, Config{Bucket: "bucket", Retain: 1})
	_, err := s.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestRestoreLatest(t *testing.T) {
	source := populatedStore(t)
	data, err := snapshot.Marshal(source.ExportState())
	require.NoError(t, err)

	client := new(MockS3Client)
	client.On("List", mock.Anything, "bucket", "registry-").Return([]storage.ObjectInfo{
		{Key: "registry-20250101T000000.000Z.json"},
		{Key: "registry-20250301T000000.000Z.json"},
	}, nil)
	client.On("Download", mock.Anything, "bucket", "registry-20250301T000000.000Z.json").
		Return(io.NopCloser(bytes.NewReader(data)), nil)

	s := newScheduler(t, client, Config{Bucket: "bucket"})
	target := memory.NewStore()
	key, err := s.Restore(context.Background(), LatestKey, target)
	require.NoError(t, err)
	assert.Equal(t, "registry-20250301T000000.000Z.json", key)

	restored := target.ExportState()
	require.Len(t, restored.Projects, 1)
	assert.Equal(t, "p1", restored.Projects[0].ID)
	assert.Equal(t, uint64(4), restored.TokenSequence)
}

func TestRestoreWithoutBackups(t *testing.T) {
	client := new(MockS3Client)
	client.On("List", mock.Anything, "bucket", mock.Anything).Return([]storage.ObjectInfo{}, nil)

	s := newScheduler(t, client, Config{Bucket: "bucket"})
	_, err := s.Restore(context.Background(), LatestKey, memory.NewStore())
	assert.ErrorIs(t, err, ErrNoBackups)
}

func TestStartStop(t *testing.T) {
	s := newScheduler(t, new(MockS3Client), Config{Bucket: "bucket"})
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	status := s.Status()
	assert.True(t, status.Running)
	assert.False(t, status.NextRunAt.IsZero())

	s.Stop()
	assert.False(t, s.Status().Running)
	// stopping twice is safe
	s.Stop()
}
