package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/fabtrack/fabtrack/internal/orders"
	"github.com/fabtrack/fabtrack/jobs"
)

// OrderLoader reads one stored order document.
type OrderLoader interface {
	Get(ctx context.Context, id string) (orders.Record, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector QueueInspector
	closers   []io.Closer
}

// QueueInspector is the subset of asynq.Inspector used by the CLI.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// NewJobsCLI initialises the CLI helpers using the provided Redis connection.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) *JobsCLI {
	client := jobs.NewClient(redisOpts)
	inspector := asynq.NewInspector(redisOpts)
	return &JobsCLI{client: client, inspector: inspector, closers: []io.Closer{client, inspector}}
}

// NewJobsCLIWith builds the helper around existing dependencies.
func NewJobsCLIWith(client *jobs.Client, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	for _, closer := range c.closers {
		if closeErr := closer.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// MirrorOrder re-enqueues the sheet row for a stored order.
func (c *JobsCLI) MirrorOrder(ctx context.Context, store OrderLoader, namer orders.ClientNamer, id string) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	if id == "" {
		return errors.New("jobs cli: order id required")
	}
	rec, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	o, err := orders.Decode(rec.ID, rec.Data)
	if err != nil {
		return err
	}
	name := orders.UnknownClientName
	if namer != nil {
		if n, err := namer.ClientName(ctx, o.ClientEmail); err == nil && n != "" {
			name = n
		}
	}
	return c.client.MirrorOrder(ctx, orders.MirrorRequest{
		OrderID:     o.ID,
		ClientName:  name,
		ClientEmail: o.ClientEmail,
		CreatedAt:   o.CreatedAt,
		Stage:       o.Stage,
		Status:      o.Status,
	})
}

// RefreshDirectory enqueues a directory reload.
func (c *JobsCLI) RefreshDirectory(ctx context.Context) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("jobs cli: client not configured")
	}
	info, err := c.client.EnqueueDirectoryRefresh(ctx)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Run dispatches `jobs <inspect|mirror ORDER_ID|refresh-directory>`.
func (c *JobsCLI) Run(ctx context.Context, args []string, store OrderLoader, namer orders.ClientNamer, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: fabtrack jobs <inspect|mirror ORDER_ID|refresh-directory>")
	}
	switch args[0] {
	case "inspect":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		return err
	case "mirror":
		if len(args) < 2 {
			return errors.New("usage: fabtrack jobs mirror ORDER_ID")
		}
		if err := c.MirrorOrder(ctx, store, namer, args[1]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "enqueued %s for order %s\n", jobs.TaskSheetsAddOrder, args[1])
		return err
	case "refresh-directory":
		id, err := c.RefreshDirectory(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s (%s)\n", jobs.TaskDirectoryRefresh, id)
		return err
	default:
		return fmt.Errorf("jobs cli: unknown command %q", args[0])
	}
}
