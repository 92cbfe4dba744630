package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fabtrack/fabtrack/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSheetsAddOrder appends a created order to the external order sheet.
	TaskSheetsAddOrder = "sheets:add_order"
	// TaskDirectoryRefresh reloads the client directory cache.
	TaskDirectoryRefresh = "directory:refresh"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	// MirrorMaxRetry bounds sheet mirror attempts.
	MirrorMaxRetry = 5
	// DefaultIdempotencyRetention keeps keys long enough to cover client retries.
	DefaultIdempotencyRetention = 7 * 24 * time.Hour
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AddOrderPayload is the order row forwarded to the sheet.
type AddOrderPayload struct {
	OrderID     string    `json:"orderId"`
	ClientName  string    `json:"clientName"`
	ClientEmail string    `json:"clientEmail"`
	CreatedAt   time.Time `json:"createdAt"`
	Stage       string    `json:"stage"`
	Status      string    `json:"status"`
}

// NewAddOrderTask constructs a sheet mirror task.
func NewAddOrderTask(payload AddOrderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSheetsAddOrder, data, asynq.Queue(QueueDefault), asynq.MaxRetry(MirrorMaxRetry)), nil
}

// NewDirectoryRefreshTask constructs a directory refresh task.
func NewDirectoryRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskDirectoryRefresh, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(2))
}

// CleanupPayload configures the idempotency purge.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs a purge task for keys older than retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}
	body, err := json.Marshal(CleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
