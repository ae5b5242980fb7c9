package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Rewind deletes the artifacts named by the plan, drops or resets the
// content sections and context state, and moves the project back, all in one
// transaction. Refused while a run is in progress.
func (db *DB) Rewind(ctx context.Context, projectID uuid.UUID, plan *RewindPlan) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := requireIdle(ctx, tx, projectID); err != nil {
			return err
		}

		if len(plan.ArtifactTypes) > 0 {
			if _, err := tx.Exec(ctx,
				`DELETE FROM artifacts WHERE project_id = $1 AND type = ANY($2)`,
				projectID, plan.ArtifactTypes); err != nil {
				return fmt.Errorf("failed to delete artifacts: %w", err)
			}
		}

		switch {
		case plan.DropSections:
			if _, err := tx.Exec(ctx, `DELETE FROM content_sections WHERE project_id = $1`, projectID); err != nil {
				return fmt.Errorf("failed to delete sections: %w", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM context_states WHERE project_id = $1`, projectID); err != nil {
				return fmt.Errorf("failed to delete context state: %w", err)
			}
		case plan.ResetSections:
			if _, err := tx.Exec(ctx,
				`UPDATE content_sections
				 SET status = 'pending', content = NULL, summary = NULL, error_message = NULL, updated_at = NOW()
				 WHERE project_id = $1`, projectID); err != nil {
				return fmt.Errorf("failed to reset sections: %w", err)
			}
			if err := resetContext(ctx, tx, projectID); err != nil {
				return err
			}
		}

		return updateProject(ctx, tx, projectID, plan.Project)
	})
}
