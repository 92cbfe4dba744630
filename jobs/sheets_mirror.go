package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fabtrack/fabtrack/internal/directory"
	jobmetrics "github.com/fabtrack/fabtrack/internal/jobs"
)

// SheetAppender writes order rows to the external sheet.
type SheetAppender interface {
	AddOrder(ctx context.Context, order directory.MirrorOrder) error
}

// SheetsMirrorJob delivers sheets:add_order tasks.
type SheetsMirrorJob struct {
	Sheet   SheetAppender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSheetsMirrorJob constructs the job handler.
func NewSheetsMirrorJob(sheet SheetAppender, logger *slog.Logger, metrics *jobmetrics.Metrics) *SheetsMirrorJob {
	return &SheetsMirrorJob{Sheet: sheet, Logger: logger, Metrics: metrics}
}

// Handle appends the order row. Malformed payloads are never retried.
func (j *SheetsMirrorJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Sheet == nil {
		return errors.New("sheets mirror: sheet not configured")
	}
	tracker := j.metrics().Track(TaskSheetsAddOrder)
	defer func() {
		err = tracker.End(err)
	}()

	var payload AddOrderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.log().Warn("malformed payload", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.OrderID == "" || payload.ClientEmail == "" {
		j.log().Warn("payload missing order id or email")
		return fmt.Errorf("incomplete payload: %w", asynq.SkipRetry)
	}

	err = j.Sheet.AddOrder(ctx, directory.MirrorOrder{
		OrderID:      payload.OrderID,
		ClientName:   payload.ClientName,
		ClientEmail:  payload.ClientEmail,
		CreatedAt:    payload.CreatedAt,
		CurrentStage: payload.Stage,
		Status:       payload.Status,
	})
	if err != nil {
		j.log().Error("append order row", slog.String("order_id", payload.OrderID), slog.Any("error", err))
		return err
	}
	j.log().Info("order mirrored", slog.String("order_id", payload.OrderID))
	return nil
}

func (j *SheetsMirrorJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SheetsMirrorJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSheetsAddOrder))
	}
	return slog.Default().With(slog.String("job", TaskSheetsAddOrder))
}
