// internal/store/executions.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Execution is the persisted shape of an AutomationExecution row.
type Execution struct {
	ID                  string          `db:"id"`
	AutomationID        string          `db:"automation_id"`
	TriggerTimestamp    time.Time       `db:"trigger_timestamp"`
	TriggerEventID      *string         `db:"trigger_event_id"`
	TriggerContext      json.RawMessage `db:"trigger_context"`
	ExecutionStatus     string          `db:"execution_status"`
	TotalActions        int             `db:"total_actions"`
	SuccessfulActions   int             `db:"successful_actions"`
	FailedActions       int             `db:"failed_actions"`
	ExecutionDurationMs int64           `db:"execution_duration_ms"`
}

// ActionExecution is the persisted shape of an AutomationActionExecution row.
type ActionExecution struct {
	ID                  string          `db:"id"`
	ExecutionID         string          `db:"execution_id"`
	ActionIndex         int             `db:"action_index"`
	ActionType          string          `db:"action_type"`
	ActionParams        json.RawMessage `db:"action_params"`
	Status              string          `db:"status"`
	RetryCount          int             `db:"retry_count"`
	StartedAt           time.Time       `db:"started_at"`
	CompletedAt         *time.Time      `db:"completed_at"`
	ExecutionDurationMs *int64          `db:"execution_duration_ms"`
	ErrorMessage        *string         `db:"error_message"`
}

const (
	insertExecutionQuery = `
		INSERT INTO automation_executions
			(id, automation_id, trigger_timestamp, trigger_event_id, trigger_context,
			 execution_status, total_actions, successful_actions, failed_actions, execution_duration_ms)
		VALUES ($1, $2, $3, $4, $5, 'running', $6, 0, 0, 0)`

	updateExecutionStatusQuery = `
		UPDATE automation_executions
		SET execution_status = $1, successful_actions = $2, failed_actions = $3, execution_duration_ms = $4
		WHERE id = $5`

	insertActionExecutionQuery = `
		INSERT INTO automation_action_executions
			(id, execution_id, action_index, action_type, action_params, status, retry_count, started_at)
		VALUES ($1, $2, $3, $4, $5, 'running', 0, $6)`

	updateActionExecutionQuery = `
		UPDATE automation_action_executions
		SET status = $1, completed_at = $2, execution_duration_ms = $3, error_message = $4, retry_count = $5
		WHERE id = $6`
)

type ExecutionRepo struct {
	db *sqlx.DB
}

func NewExecutionRepo(db *sqlx.DB) *ExecutionRepo {
	return &ExecutionRepo{db: db}
}

func (r *ExecutionRepo) InsertRunning(ctx context.Context, exec Execution) error {
	if _, err := r.db.ExecContext(ctx, insertExecutionQuery,
		exec.ID, exec.AutomationID, exec.TriggerTimestamp, exec.TriggerEventID,
		exec.TriggerContext, exec.TotalActions,
	); err != nil {
		return fmt.Errorf("insert execution %s: %w", exec.ID, err)
	}
	return nil
}

func (r *ExecutionRepo) Complete(ctx context.Context, id, status string, successful, failed int, durationMs int64) error {
	if _, err := r.db.ExecContext(ctx, updateExecutionStatusQuery, status, successful, failed, durationMs, id); err != nil {
		return fmt.Errorf("complete execution %s: %w", id, err)
	}
	return nil
}

func (r *ExecutionRepo) InsertActionRunning(ctx context.Context, ae ActionExecution) error {
	if _, err := r.db.ExecContext(ctx, insertActionExecutionQuery,
		ae.ID, ae.ExecutionID, ae.ActionIndex, ae.ActionType, ae.ActionParams, ae.StartedAt,
	); err != nil {
		return fmt.Errorf("insert action execution %s: %w", ae.ID, err)
	}
	return nil
}

func (r *ExecutionRepo) CompleteAction(ctx context.Context, id, status string, completedAt time.Time, durationMs int64, errMsg *string, retryCount int) error {
	if _, err := r.db.ExecContext(ctx, updateActionExecutionQuery, status, completedAt, durationMs, errMsg, retryCount, id); err != nil {
		return fmt.Errorf("complete action execution %s: %w", id, err)
	}
	return nil
}
