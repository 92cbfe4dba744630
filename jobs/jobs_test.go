package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabtrack/fabtrack/internal/directory"
	jobmetrics "github.com/fabtrack/fabtrack/internal/jobs"
	"github.com/fabtrack/fabtrack/internal/orders"
	"github.com/fabtrack/fabtrack/internal/workflow"
)

type recordingSheet struct {
	rows []directory.MirrorOrder
	err  error
}

func (s *recordingSheet) AddOrder(ctx context.Context, order directory.MirrorOrder) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, order)
	return nil
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (e *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: QueueDefault}, nil
}

func (e *recordingEnqueuer) Close() error { return nil }

func TestClientMirrorOrderEnqueuesTask(t *testing.T) {
	enq := &recordingEnqueuer{}
	client := NewClientWith(enq)
	created := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	var mirror orders.Mirror = client
	require.NoError(t, mirror.MirrorOrder(context.Background(), orders.MirrorRequest{
		OrderID:     "o-1",
		ClientName:  "Budi",
		ClientEmail: "budi@example.com",
		CreatedAt:   created,
		Stage:       workflow.StageQuotation,
		Status:      workflow.StatusPending,
	}))

	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskSheetsAddOrder, enq.tasks[0].Type())
	var payload AddOrderPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "o-1", payload.OrderID)
	assert.Equal(t, "quotation", payload.Stage)
	assert.Equal(t, created, payload.CreatedAt)

	_, err := client.EnqueueDirectoryRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TaskDirectoryRefresh, enq.tasks[1].Type())
}

func TestSheetsMirrorJobAppendsRow(t *testing.T) {
	sheet := &recordingSheet{}
	job := NewSheetsMirrorJob(sheet, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewAddOrderTask(AddOrderPayload{OrderID: "o-1", ClientName: "Budi", ClientEmail: "budi@example.com", Stage: "quotation", Status: "pending"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sheet.rows, 1)
	assert.Equal(t, "quotation", sheet.rows[0].CurrentStage)
	assert.Equal(t, "Budi", sheet.rows[0].ClientName)
}

func TestSheetsMirrorJobSkipsMalformedPayload(t *testing.T) {
	job := NewSheetsMirrorJob(&recordingSheet{}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSheetsAddOrder, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskSheetsAddOrder, []byte(`{"orderId":""}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSheetsMirrorJobRetriesOnSheetFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	job := NewSheetsMirrorJob(&recordingSheet{err: boom}, nil, nil)
	task, err := NewAddOrderTask(AddOrderPayload{OrderID: "o-1", ClientEmail: "budi@example.com"})
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type stubRefresher struct {
	calls int
	err   error
}

func (s *stubRefresher) Refresh(ctx context.Context) ([]directory.Client, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []directory.Client{{Email: "a@example.com"}}, nil
}

func TestDirectoryRefreshJob(t *testing.T) {
	ref := &stubRefresher{}
	job := NewDirectoryRefreshJob(ref, nil, nil)
	require.NoError(t, job.Handle(context.Background(), NewDirectoryRefreshTask()))
	assert.Equal(t, 1, ref.calls)

	ref.err = errors.New("sheet down")
	assert.Error(t, job.Handle(context.Background(), NewDirectoryRefreshTask()))

	var missing *DirectoryRefreshJob
	assert.Error(t, missing.Handle(context.Background(), NewDirectoryRefreshTask()))
}

type stubPurger struct {
	retention time.Duration
}

func (s *stubPurger) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.retention = olderThan
	return nil
}

func TestIdempotencyCleanupJob(t *testing.T) {
	purger := &stubPurger{}
	job := NewIdempotencyCleanupJob(purger, nil, nil)

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 48*time.Hour, purger.retention)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, DefaultIdempotencyRetention, purger.retention)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil).
		health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Pending)
	assert.Equal(t, 1, body.Retry)

	rr = httptest.NewRecorder()
	NewHandler(stubInspector{err: errors.New("redis down")}, nil).
		health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	NewHandler(nil, nil).health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
