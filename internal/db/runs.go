package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const runColumns = `id, project_id, stage, stage_name, status, error_message, started_at,
	completed_at, total_tokens, token_details`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	var details []byte
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Stage, &r.StageName, &r.Status,
		&r.ErrorMessage, &r.StartedAt, &r.CompletedAt, &r.TotalTokens, &details); err != nil {
		return nil, err
	}
	if len(details) > 0 {
		_ = json.Unmarshal(details, &r.TokenDetails)
	}
	return &r, nil
}

// AcquireRun atomically creates a running run for the project and moves the
// project into the stage's in-progress status. If another run is already
// running it returns a *RunConflictError and writes nothing.
//
// The project row lock serializes concurrent acquirers; the partial unique
// index on workflow_runs guarantees the invariant even without it.
func (db *DB) AcquireRun(ctx context.Context, projectID uuid.UUID, start *RunStart) (*Run, error) {
	var run *Run
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		project, err := lockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if start.Allow != nil && !start.Allow(project) {
			running, err := getRunningRun(ctx, tx, projectID)
			if err != nil {
				return err
			}
			if running != nil {
				return &RunConflictError{Running: running}
			}
			return ErrStageOrder
		}

		r, err := scanRun(tx.QueryRow(ctx,
			`INSERT INTO workflow_runs (project_id, stage, stage_name, status)
			 VALUES ($1, $2, $3, 'running')
			 ON CONFLICT (project_id) WHERE status = 'running' DO NOTHING
			 RETURNING `+runColumns,
			projectID, start.Stage, start.StageName,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				running, getErr := getRunningRun(ctx, tx, projectID)
				if getErr != nil {
					return getErr
				}
				return &RunConflictError{Running: running}
			}
			return fmt.Errorf("failed to create run: %w", err)
		}

		if err := updateProject(ctx, tx, projectID, ProjectUpdate{Stage: start.Stage, Status: start.ProjectStatus}); err != nil {
			return err
		}
		run = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	r, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// GetRunningRun returns the project's running run, if any.
func (db *DB) GetRunningRun(ctx context.Context, projectID uuid.UUID) (*Run, error) {
	return getRunningRun(ctx, db.pool, projectID)
}

func getRunningRun(ctx context.Context, q querier, projectID uuid.UUID) (*Run, error) {
	r, err := scanRun(q.QueryRow(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE project_id = $1 AND status = 'running'`,
		projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get running run: %w", err)
	}
	return r, nil
}

// ListRuns returns the project's runs, newest first.
func (db *DB) ListRuns(ctx context.Context, projectID uuid.UUID) ([]Run, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE project_id = $1 ORDER BY started_at DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// FinishRun performs the terminal transition of a running run. It reports
// false without writing anything when the run had already left the running
// state, which makes repeated calls no-ops.
func (db *DB) FinishRun(ctx context.Context, runID uuid.UUID, outcome *RunOutcome) (bool, error) {
	details, err := json.Marshal(outcome.TokenDetails)
	if err != nil {
		return false, fmt.Errorf("failed to marshal token details: %w", err)
	}
	if outcome.TokenDetails == nil {
		details = []byte("[]")
	}

	var errMsg *string
	if outcome.ErrorMessage != "" {
		errMsg = &outcome.ErrorMessage
	}

	finished := false
	err = db.withTx(ctx, func(tx pgx.Tx) error {
		projectID, err := lockRun(ctx, tx, runID)
		if err != nil {
			if errors.Is(err, ErrRunNotActive) {
				return nil
			}
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE workflow_runs
			 SET status = $2, error_message = $3, total_tokens = $4, token_details = $5, completed_at = NOW()
			 WHERE id = $1`,
			runID, outcome.Status, errMsg, outcome.TotalTokens, details,
		); err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}

		if outcome.Project != nil {
			if err := updateProject(ctx, tx, projectID, *outcome.Project); err != nil {
				return err
			}
		}
		finished = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return finished, nil
}

// CancelRun marks a running run as cancelled. reset, when it returns non-nil,
// decides how the project is restored; it is applied in the same transaction.
func (db *DB) CancelRun(ctx context.Context, projectID, runID uuid.UUID, message string, reset func(run *Run) *ProjectReset) (*Run, error) {
	var cancelled *Run
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		project, err := lockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}

		run, err := scanRun(tx.QueryRow(ctx,
			`SELECT `+runColumns+` FROM workflow_runs WHERE id = $1 AND project_id = $2 FOR UPDATE`,
			runID, projectID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get run: %w", err)
		}
		if run.Status != RunStatusRunning {
			return ErrRunNotActive
		}

		run, err = scanRun(tx.QueryRow(ctx,
			`UPDATE workflow_runs
			 SET status = 'cancelled', error_message = $2, completed_at = NOW()
			 WHERE id = $1
			 RETURNING `+runColumns,
			runID, message))
		if err != nil {
			return fmt.Errorf("failed to cancel run: %w", err)
		}

		if reset != nil {
			if r := reset(run); r != nil && project.Status == r.IfStatus {
				if err := updateProject(ctx, tx, projectID, ProjectUpdate{Stage: r.Stage, Status: r.Status}); err != nil {
					return err
				}
			}
		}
		cancelled = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// lockRun locks the run's project and then the run itself, the same order
// every other per-project transaction uses. It fails with ErrRunNotActive
// unless the run is still running.
func lockRun(ctx context.Context, tx pgx.Tx, runID uuid.UUID) (uuid.UUID, error) {
	var projectID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT project_id FROM workflow_runs WHERE id = $1`, runID).Scan(&projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get run: %w", err)
	}

	if _, err := lockProject(ctx, tx, projectID); err != nil {
		return uuid.Nil, err
	}

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM workflow_runs WHERE id = $1 FOR UPDATE`, runID).Scan(&status)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to lock run: %w", err)
	}
	if status != RunStatusRunning {
		return uuid.Nil, ErrRunNotActive
	}
	return projectID, nil
}
