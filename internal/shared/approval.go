package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks the administrator submitting work for sign-off.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks a client approving.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a client rejecting.
	ApprovalReject ApprovalAction = "REJECT"
	// ApprovalOverrideApprove marks the administrator approving on the client's behalf.
	ApprovalOverrideApprove ApprovalAction = "OVERRIDE_APPROVE"
	// ApprovalOverrideReject marks the administrator rejecting on the client's behalf.
	ApprovalOverrideReject ApprovalAction = "OVERRIDE_REJECT"
)

// IsOverride reports whether the action was taken by the administrator for the client.
func (a ApprovalAction) IsOverride() bool {
	return a == ApprovalOverrideApprove || a == ApprovalOverrideReject
}

// ApprovalFor maps a yes/no answer to its log action.
func ApprovalFor(value, override bool) ApprovalAction {
	switch {
	case override && value:
		return ApprovalOverrideApprove
	case override:
		return ApprovalOverrideReject
	case value:
		return ApprovalApprove
	default:
		return ApprovalReject
	}
}

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID     int64          `json:"id"`
	Module string         `json:"module"`
	RefID  string         `json:"refId"`
	Actor  string         `json:"actor"`
	Action ApprovalAction `json:"action"`
	Note   string         `json:"note"`
	At     time.Time      `json:"at"`
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := validateApproval(log); err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Module, log.RefID, log.Actor, string(log.Action), log.Note, at)
	if err != nil {
		r.logger.Error("record approval", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns approvals for module/ref.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref string) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, module, ref_id, actor, action, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	logs := make([]ApprovalLog, 0)
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.Actor, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func validateApproval(log ApprovalLog) error {
	if log.Module == "" {
		return errors.New("approval module required")
	}
	if log.Actor == "" {
		return errors.New("approval actor required")
	}
	if log.RefID == "" {
		return errors.New("approval ref id required")
	}
	if log.Action == "" {
		return errors.New("approval action required")
	}
	return nil
}
