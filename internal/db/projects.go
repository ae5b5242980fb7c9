package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const projectColumns = `id, topic, language, seed_document, current_stage, status, created_at, updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Topic, &p.Language, &p.SeedDocument,
		&p.CurrentStage, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts a new project in the draft status.
func (db *DB) CreateProject(ctx context.Context, in *ProjectInput) (*Project, error) {
	language := in.Language
	if language == "" {
		language = DefaultLanguage
	}

	p, err := scanProject(db.pool.QueryRow(ctx,
		`INSERT INTO projects (topic, language, seed_document, current_stage, status)
		 VALUES ($1, $2, $3, 0, $4)
		 RETURNING `+projectColumns,
		in.Topic, language, in.SeedDocument, ProjectStatusDraft,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// GetProject retrieves a project by ID
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, err := scanProject(db.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects returns the most recently created projects first.
func (db *DB) ListProjects(ctx context.Context, limit int) ([]Project, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and everything that belongs to it. It is
// refused while a run is in progress.
func (db *DB) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := requireIdle(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return nil
	})
}

func updateProject(ctx context.Context, q querier, id uuid.UUID, upd ProjectUpdate) error {
	tag, err := q.Exec(ctx,
		`UPDATE projects SET current_stage = $2, status = $3, updated_at = NOW() WHERE id = $1`,
		id, upd.Stage, upd.Status)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
