package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabtrack/fabtrack/internal/orders"
	"github.com/fabtrack/fabtrack/internal/workflow"
	"github.com/fabtrack/fabtrack/jobs"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeInspector struct{}

func (fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 2, Archived: 1}, nil
}

type namer map[string]string

func (n namer) ClientName(ctx context.Context, email string) (string, error) {
	if name, ok := n[email]; ok {
		return name, nil
	}
	return "", errors.New("not found")
}

func TestRunInspect(t *testing.T) {
	c := NewJobsCLIWith(jobs.NewClientWith(&fakeEnqueuer{}), fakeInspector{})
	var out bytes.Buffer
	require.NoError(t, c.Run(context.Background(), []string{"inspect"}, nil, nil, &out))
	assert.Contains(t, out.String(), "pending=2")
	assert.Contains(t, out.String(), "archived=1")
}

func TestRunMirrorLoadsStoredOrder(t *testing.T) {
	store := orders.NewMemoryStore()
	ctx := context.Background()
	rec, err := store.Create(ctx, orders.Encode(workflow.New("budi@example.com", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))))
	require.NoError(t, err)

	enq := &fakeEnqueuer{}
	c := NewJobsCLIWith(jobs.NewClientWith(enq), nil)
	var out bytes.Buffer
	require.NoError(t, c.Run(ctx, []string{"mirror", rec.ID}, store, namer{"budi@example.com": "Budi"}, &out))

	require.Len(t, enq.tasks, 1)
	var payload jobs.AddOrderPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, rec.ID, payload.OrderID)
	assert.Equal(t, "Budi", payload.ClientName)

	require.NoError(t, c.Run(ctx, []string{"mirror", rec.ID}, store, namer{}, &out))
	require.NoError(t, json.Unmarshal(enq.tasks[1].Payload(), &payload))
	assert.Equal(t, orders.UnknownClientName, payload.ClientName)
}

func TestRunRejectsBadUsage(t *testing.T) {
	c := NewJobsCLIWith(jobs.NewClientWith(&fakeEnqueuer{}), nil)
	var out bytes.Buffer
	assert.Error(t, c.Run(context.Background(), nil, nil, nil, &out))
	assert.Error(t, c.Run(context.Background(), []string{"mirror"}, nil, nil, &out))
	assert.Error(t, c.Run(context.Background(), []string{"bogus"}, nil, nil, &out))

	require.NoError(t, c.Run(context.Background(), []string{"refresh-directory"}, nil, nil, &out))
	assert.Contains(t, out.String(), jobs.TaskDirectoryRefresh)
}
