package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sectionColumns = `id, project_id, section_order, heading, knowledge, keywords, status,
	content, summary, error_message, created_at, updated_at`

func scanSection(row pgx.Row) (*Section, error) {
	var s Section
	if err := row.Scan(&s.ID, &s.ProjectID, &s.Order, &s.Heading, &s.Knowledge, &s.Keywords,
		&s.Status, &s.Content, &s.Summary, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// CommitStage writes a stage's outputs and moves the project to its
// completed status in one transaction. It fails with ErrRunNotActive when the
// run was cancelled or finished in the meantime, leaving nothing written.
func (db *DB) CommitStage(ctx context.Context, runID uuid.UUID, commit *StageCommit) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		projectID, err := lockRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if projectID != commit.ProjectID {
			return fmt.Errorf("run %s does not belong to project %s", runID, commit.ProjectID)
		}

		for i := range commit.Artifacts {
			if _, err := insertArtifact(ctx, tx, projectID, &commit.Artifacts[i]); err != nil {
				return err
			}
		}

		if commit.Sections != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM content_sections WHERE project_id = $1`, projectID); err != nil {
				return fmt.Errorf("failed to clear sections: %w", err)
			}
			for _, sec := range commit.Sections {
				if _, err := tx.Exec(ctx,
					`INSERT INTO content_sections (project_id, section_order, heading, knowledge, keywords, status)
					 VALUES ($1, $2, $3, $4, $5, 'pending')`,
					projectID, sec.Order, sec.Heading, sec.Knowledge, sec.Keywords); err != nil {
					return fmt.Errorf("failed to create section %d: %w", sec.Order, err)
				}
			}
		}

		if commit.ResetContext {
			if err := resetContext(ctx, tx, projectID); err != nil {
				return err
			}
		}

		return updateProject(ctx, tx, projectID, commit.Project)
	})
}

// ListSections returns the project's sections in section order.
func (db *DB) ListSections(ctx context.Context, projectID uuid.UUID) ([]Section, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+sectionColumns+` FROM content_sections WHERE project_id = $1 ORDER BY section_order`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	var sections []Section
	for rows.Next() {
		s, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, *s)
	}
	return sections, rows.Err()
}

// SetSectionStatus updates a section's status and error message.
func (db *DB) SetSectionStatus(ctx context.Context, sectionID uuid.UUID, status string, errorMessage *string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE content_sections SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1`,
		sectionID, status, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update section status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetContextState returns the project's context state, or nil if the content
// stage has never been prepared.
func (db *DB) GetContextState(ctx context.Context, projectID uuid.UUID) (*ContextState, error) {
	return getContextState(ctx, db.pool, projectID, false)
}

func getContextState(ctx context.Context, q querier, projectID uuid.UUID, forUpdate bool) (*ContextState, error) {
	query := `SELECT project_id, current_section_index, section_summaries, last_section_content, updated_at
		FROM context_states WHERE project_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var cs ContextState
	var summaries []byte
	err := q.QueryRow(ctx, query, projectID).Scan(&cs.ProjectID, &cs.CurrentSectionIndex,
		&summaries, &cs.LastSectionContent, &cs.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get context state: %w", err)
	}
	if len(summaries) > 0 {
		if err := json.Unmarshal(summaries, &cs.Summaries); err != nil {
			return nil, fmt.Errorf("failed to decode section summaries: %w", err)
		}
	}
	return &cs, nil
}

// AdvanceSection stores a generated section and, in the same transaction,
// appends its summary to the context state and moves the cursor. The cursor
// never moves without its summary.
func (db *DB) AdvanceSection(ctx context.Context, runID uuid.UUID, adv *SectionAdvance) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		projectID, err := lockRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if projectID != adv.ProjectID {
			return fmt.Errorf("run %s does not belong to project %s", runID, adv.ProjectID)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE content_sections
			 SET status = 'completed', content = $2, summary = $3, error_message = NULL, updated_at = NOW()
			 WHERE id = $1 AND project_id = $4`,
			adv.SectionID, adv.Content, adv.Summary.Summary, projectID)
		if err != nil {
			return fmt.Errorf("failed to complete section: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		state, err := getContextState(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if state == nil {
			state = &ContextState{ProjectID: projectID}
		}
		state.Summaries = append(state.Summaries, adv.Summary)

		summaries, err := json.Marshal(state.Summaries)
		if err != nil {
			return fmt.Errorf("failed to encode section summaries: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO context_states (project_id, current_section_index, section_summaries, last_section_content, updated_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (project_id) DO UPDATE
			 SET current_section_index = EXCLUDED.current_section_index,
			     section_summaries = EXCLUDED.section_summaries,
			     last_section_content = EXCLUDED.last_section_content,
			     updated_at = NOW()`,
			projectID, adv.NextIndex, summaries, adv.Content); err != nil {
			return fmt.Errorf("failed to advance context state: %w", err)
		}
		return nil
	})
}

func resetContext(ctx context.Context, q querier, projectID uuid.UUID) error {
	if _, err := q.Exec(ctx,
		`INSERT INTO context_states (project_id, current_section_index, section_summaries, last_section_content, updated_at)
		 VALUES ($1, 0, '[]'::jsonb, '', NOW())
		 ON CONFLICT (project_id) DO UPDATE
		 SET current_section_index = 0, section_summaries = '[]'::jsonb, last_section_content = '', updated_at = NOW()`,
		projectID); err != nil {
		return fmt.Errorf("failed to reset context state: %w", err)
	}
	return nil
}
