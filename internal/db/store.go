package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Store is the persistence contract of the pipeline. *DB implements it on
// PostgreSQL and memstore.Store keeps it in memory.
//
// Getters return (nil, nil) when the row does not exist. Mutations return
// ErrNotFound instead.
type Store interface {
	CreateProject(ctx context.Context, in *ProjectInput) (*Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	ListProjects(ctx context.Context, limit int) ([]Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error

	CreateArtifact(ctx context.Context, projectID uuid.UUID, in *ArtifactInput) (*Artifact, error)
	GetArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error)
	LatestArtifact(ctx context.Context, projectID uuid.UUID, artifactType string) (*Artifact, error)
	SelectedArtifact(ctx context.Context, projectID uuid.UUID, artifactType string) (*Artifact, error)
	ListArtifacts(ctx context.Context, projectID uuid.UUID, artifactType string) ([]Artifact, error)
	UpdateArtifact(ctx context.Context, projectID, artifactID uuid.UUID, content json.RawMessage, text *string) (*Artifact, error)
	SelectArtifact(ctx context.Context, projectID, artifactID uuid.UUID, promote *ProjectReset) (*Project, error)

	AcquireRun(ctx context.Context, projectID uuid.UUID, start *RunStart) (*Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	GetRunningRun(ctx context.Context, projectID uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, projectID uuid.UUID) ([]Run, error)
	FinishRun(ctx context.Context, runID uuid.UUID, outcome *RunOutcome) (bool, error)
	CancelRun(ctx context.Context, projectID, runID uuid.UUID, message string, reset func(run *Run) *ProjectReset) (*Run, error)

	CommitStage(ctx context.Context, runID uuid.UUID, commit *StageCommit) error
	ListSections(ctx context.Context, projectID uuid.UUID) ([]Section, error)
	SetSectionStatus(ctx context.Context, sectionID uuid.UUID, status string, errorMessage *string) error
	GetContextState(ctx context.Context, projectID uuid.UUID) (*ContextState, error)
	AdvanceSection(ctx context.Context, runID uuid.UUID, adv *SectionAdvance) error

	Rewind(ctx context.Context, projectID uuid.UUID, plan *RewindPlan) error
}

var _ Store = (*DB)(nil)
