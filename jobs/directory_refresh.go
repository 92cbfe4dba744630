package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fabtrack/fabtrack/internal/directory"
	jobmetrics "github.com/fabtrack/fabtrack/internal/jobs"
)

// DirectoryRefresher reloads the client directory from its source.
type DirectoryRefresher interface {
	Refresh(ctx context.Context) ([]directory.Client, error)
}

// DirectoryRefreshJob keeps the directory cache warm.
type DirectoryRefreshJob struct {
	Directory DirectoryRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewDirectoryRefreshJob constructs the job handler.
func NewDirectoryRefreshJob(dir DirectoryRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *DirectoryRefreshJob {
	return &DirectoryRefreshJob{Directory: dir, Logger: logger, Metrics: metrics}
}

// Handle executes the refresh.
func (j *DirectoryRefreshJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Directory == nil {
		return errors.New("directory refresh: directory not configured")
	}
	tracker := j.metrics().Track(TaskDirectoryRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	clients, err := j.Directory.Refresh(ctx)
	if err != nil {
		j.log().Error("refresh directory", slog.Any("error", err))
		return err
	}
	j.log().Info("directory refreshed", slog.Int("clients", len(clients)), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *DirectoryRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DirectoryRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDirectoryRefresh))
	}
	return slog.Default().With(slog.String("job", TaskDirectoryRefresh))
}
