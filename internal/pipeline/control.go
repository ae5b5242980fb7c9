package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/events"
	"github.com/jonathan/content-writer/internal/pipeline/stages"
	"github.com/jonathan/content-writer/internal/schemas"
)

// CancelRun marks a running run as cancelled. If the project still shows the
// stage in progress it is put back to where it was before the stage started.
// The worker executing the run notices at its next checkpoint.
func (o *Orchestrator) CancelRun(ctx context.Context, runID, projectID uuid.UUID) (*db.Run, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	run, err := o.store.CancelRun(ctx, projectID, runID, CancelMessage, func(r *db.Run) *db.ProjectReset {
		stage, err := stages.Get(r.Stage)
		if err != nil {
			return nil
		}
		return &db.ProjectReset{IfStatus: stage.InProgress, Stage: stage.Number - 1, Status: stage.Ready}
	})
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, ErrRunNotFound
	case errors.Is(err, db.ErrRunNotActive):
		return nil, &PreconditionError{Reason: "run is not running"}
	case err != nil:
		return nil, fmt.Errorf("failed to cancel run: %w", err)
	}

	o.logger.Info("run cancelled",
		zap.String("project_id", projectID.String()),
		zap.String("run_id", runID.String()),
		zap.Int("stage", run.Stage),
	)
	o.emit(ctx, nil, run, events.Event{Type: events.TypeRunCancelled, Message: CancelMessage})
	return run, nil
}

// Rewind discards the output of stage toStage and every later stage so that
// toStage can be run again. Rewinding to the content stage keeps the sections
// but resets them to pending.
func (o *Orchestrator) Rewind(ctx context.Context, projectID uuid.UUID, toStage int) (*db.Project, error) {
	if _, err := stages.Get(toStage); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStage, err)
	}

	plan := &db.RewindPlan{
		ArtifactTypes: db.ArtifactTypesFrom(toStage),
		DropSections:  toStage <= stages.Brief,
		ResetSections: toStage == stages.Content,
		Project:       db.ProjectUpdate{Stage: toStage - 1, Status: stages.ReadyStatus(toStage)},
	}
	err := o.store.Rewind(ctx, projectID, plan)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, ErrProjectNotFound
	case errors.Is(err, db.ErrRunActive):
		return nil, conflictFrom(projectID, err)
	case err != nil:
		return nil, fmt.Errorf("failed to rewind: %w", err)
	}

	o.logger.Info("project rewound",
		zap.String("project_id", projectID.String()),
		zap.Int("to_stage", toStage),
		zap.Strings("artifact_types", plan.ArtifactTypes),
	)
	return o.store.GetProject(ctx, projectID)
}

// ProjectState is the read-only view of a project's progress.
type ProjectState struct {
	Project  *db.Project        `json:"project"`
	Runs     []db.Run           `json:"runs"`
	Running  *db.Run            `json:"running,omitempty"`
	Sections db.SectionProgress `json:"sections"`
}

// GetProjectState returns the project, its runs newest first and section
// progress counts.
func (o *Orchestrator) GetProjectState(ctx context.Context, projectID uuid.UUID) (*ProjectState, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	state := &ProjectState{Project: project}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runs, err := o.store.ListRuns(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		state.Runs = runs
		return nil
	})
	g.Go(func() error {
		sections, err := o.store.ListSections(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to list sections: %w", err)
		}
		state.Sections = db.ProgressOf(sections)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range state.Runs {
		if state.Runs[i].Status == db.RunStatusRunning {
			state.Running = &state.Runs[i]
			break
		}
	}
	if state.Runs == nil {
		state.Runs = []db.Run{}
	}
	return state, nil
}

// RewindSuggestion is offered when a change upstream makes downstream
// artifacts stale.
type RewindSuggestion struct {
	ToStage int    `json:"to_stage"`
	Reason  string `json:"reason"`
}

// SelectHeaderVariant marks one header variant as the selected one. A project
// waiting on the selection moves to headers_selected.
func (o *Orchestrator) SelectHeaderVariant(ctx context.Context, projectID, artifactID uuid.UUID) (*db.Project, *RewindSuggestion, error) {
	artifact, err := o.artifact(ctx, projectID, artifactID)
	if err != nil {
		return nil, nil, err
	}
	if artifact.Type != db.ArtifactHeaderVariant {
		return nil, nil, &PreconditionError{Reason: fmt.Sprintf("artifact %s is a %s, not a header variant", artifactID, artifact.Type)}
	}

	project, err := o.store.SelectArtifact(ctx, projectID, artifactID, &db.ProjectReset{
		IfStatus: db.ProjectStatusHeadersGenerated,
		Stage:    stages.Headers,
		Status:   db.ProjectStatusHeadersSelected,
	})
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, nil, ErrArtifactNotFound
	case errors.Is(err, db.ErrRunActive):
		return nil, nil, conflictFrom(projectID, err)
	case err != nil:
		return nil, nil, fmt.Errorf("failed to select header variant: %w", err)
	}

	var suggestion *RewindSuggestion
	if project.CurrentStage >= stages.RAG {
		suggestion = &RewindSuggestion{
			ToStage: stages.RAG,
			Reason:  "the selected headers changed after later stages ran",
		}
	}
	return project, suggestion, nil
}

// EditArtifact replaces an artifact's payload with a hand-edited one.
// Structured payloads are validated against the artifact type's schema.
func (o *Orchestrator) EditArtifact(ctx context.Context, projectID, artifactID uuid.UUID, content json.RawMessage, text *string) (*db.Artifact, *RewindSuggestion, error) {
	if len(content) == 0 && text == nil {
		return nil, nil, &PreconditionError{Reason: "content or text is required"}
	}

	artifact, err := o.artifact(ctx, projectID, artifactID)
	if err != nil {
		return nil, nil, err
	}
	if len(content) > 0 {
		if !json.Valid(content) {
			return nil, nil, &PreconditionError{Reason: "content is not valid JSON"}
		}
		if schemas.Has(artifact.Type) {
			if err := schemas.Validate(artifact.Type, content); err != nil {
				return nil, nil, err
			}
		}
	}

	updated, err := o.store.UpdateArtifact(ctx, projectID, artifactID, content, text)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, nil, ErrArtifactNotFound
	case errors.Is(err, db.ErrRunActive):
		return nil, nil, conflictFrom(projectID, err)
	case err != nil:
		return nil, nil, fmt.Errorf("failed to update artifact: %w", err)
	}

	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get project: %w", err)
	}

	var suggestion *RewindSuggestion
	next := updated.Stage + 1
	if project != nil && next <= stages.Count && project.CurrentStage >= next {
		suggestion = &RewindSuggestion{
			ToStage: next,
			Reason:  fmt.Sprintf("%s was edited after stage %d ran", updated.Type, next),
		}
	}
	return updated, suggestion, nil
}

func (o *Orchestrator) artifact(ctx context.Context, projectID, artifactID uuid.UUID) (*db.Artifact, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	artifact, err := o.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	if artifact == nil || artifact.ProjectID != projectID {
		return nil, ErrArtifactNotFound
	}
	return artifact, nil
}
