package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const artifactColumns = `id, project_id, type, stage, variant, is_selected, content, text_content,
	created_at, updated_at`

func scanArtifact(row pgx.Row) (*Artifact, error) {
	var a Artifact
	var content []byte
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Type, &a.Stage, &a.Variant, &a.IsSelected,
		&content, &a.TextContent, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(content) > 0 {
		a.Content = json.RawMessage(content)
	}
	return &a, nil
}

func insertArtifact(ctx context.Context, q querier, projectID uuid.UUID, in *ArtifactInput) (*Artifact, error) {
	stage, ok := ArtifactStages[in.Type]
	if !ok {
		return nil, fmt.Errorf("unknown artifact type: %s", in.Type)
	}

	var variant *string
	if in.Variant != "" {
		variant = &in.Variant
	}
	var content []byte
	if len(in.Content) > 0 {
		content = in.Content
	}

	a, err := scanArtifact(q.QueryRow(ctx,
		`INSERT INTO artifacts (project_id, type, stage, variant, content, text_content)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+artifactColumns,
		projectID, in.Type, stage, variant, content, in.Text,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to save artifact %s: %w", in.Type, err)
	}
	return a, nil
}

// CreateArtifact inserts a single artifact outside of a stage commit.
func (db *DB) CreateArtifact(ctx context.Context, projectID uuid.UUID, in *ArtifactInput) (*Artifact, error) {
	return insertArtifact(ctx, db.pool, projectID, in)
}

// GetArtifact retrieves an artifact by ID
func (db *DB) GetArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error) {
	a, err := scanArtifact(db.pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// LatestArtifact returns the most recently created artifact of a type.
// Duplicates are tolerated; the latest one wins.
func (db *DB) LatestArtifact(ctx context.Context, projectID uuid.UUID, artifactType string) (*Artifact, error) {
	a, err := scanArtifact(db.pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM artifacts
		 WHERE project_id = $1 AND type = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		projectID, artifactType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest %s: %w", artifactType, err)
	}
	return a, nil
}

// SelectedArtifact returns the most recently created selected artifact of a type.
func (db *DB) SelectedArtifact(ctx context.Context, projectID uuid.UUID, artifactType string) (*Artifact, error) {
	a, err := scanArtifact(db.pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM artifacts
		 WHERE project_id = $1 AND type = $2 AND is_selected
		 ORDER BY created_at DESC
		 LIMIT 1`,
		projectID, artifactType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get selected %s: %w", artifactType, err)
	}
	return a, nil
}

// ListArtifacts lists a project's artifacts newest first, optionally filtered
// by type.
func (db *DB) ListArtifacts(ctx context.Context, projectID uuid.UUID, artifactType string) ([]Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE project_id = $1`
	args := []any{projectID}
	if artifactType != "" {
		query += ` AND type = $2`
		args = append(args, artifactType)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, rows.Err()
}

// UpdateArtifact replaces an artifact's payload in place. Nil arguments leave
// the corresponding column untouched. Refused while a run is in progress.
func (db *DB) UpdateArtifact(ctx context.Context, projectID, artifactID uuid.UUID, content json.RawMessage, text *string) (*Artifact, error) {
	var updated *Artifact
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := requireIdle(ctx, tx, projectID); err != nil {
			return err
		}

		var raw []byte
		if len(content) > 0 {
			raw = content
		}
		a, err := scanArtifact(tx.QueryRow(ctx,
			`UPDATE artifacts
			 SET content = COALESCE($3, content), text_content = COALESCE($4, text_content), updated_at = NOW()
			 WHERE id = $1 AND project_id = $2
			 RETURNING `+artifactColumns,
			artifactID, projectID, raw, text))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to update artifact: %w", err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SelectArtifact marks one artifact as the selected one of its type and
// unselects the others. When promote is set and the project carries
// promote.IfStatus, the project moves to promote's stage and status.
func (db *DB) SelectArtifact(ctx context.Context, projectID, artifactID uuid.UUID, promote *ProjectReset) (*Project, error) {
	var project *Project
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		p, err := requireIdle(ctx, tx, projectID)
		if err != nil {
			return err
		}

		var artifactType string
		err = tx.QueryRow(ctx,
			`SELECT type FROM artifacts WHERE id = $1 AND project_id = $2`,
			artifactID, projectID).Scan(&artifactType)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get artifact: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE artifacts SET is_selected = (id = $3), updated_at = NOW()
			 WHERE project_id = $1 AND type = $2`,
			projectID, artifactType, artifactID); err != nil {
			return fmt.Errorf("failed to select artifact: %w", err)
		}

		if promote != nil && p.Status == promote.IfStatus {
			if err := updateProject(ctx, tx, projectID, ProjectUpdate{Stage: promote.Stage, Status: promote.Status}); err != nil {
				return err
			}
			p.CurrentStage = promote.Stage
			p.Status = promote.Status
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// requireIdle locks the project and fails when a run is in progress.
func requireIdle(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (*Project, error) {
	p, err := lockProject(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	running, err := getRunningRun(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if running != nil {
		return nil, &RunConflictError{Running: running}
	}
	return p, nil
}
