package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/events"
	"github.com/jonathan/content-writer/internal/pipeline/stages"
)

// prepared holds everything fetched while checking a stage's preconditions.
type prepared struct {
	stage *stages.Stage
	env   *stages.Env
}

// RunStage runs one stage to completion and blocks until it is done. For the
// content stage this covers every remaining section.
func (o *Orchestrator) RunStage(ctx context.Context, projectID uuid.UUID, number int, opts ...RunOption) (*Result, error) {
	cfg := newRunConfig(opts)
	run, p, err := o.begin(ctx, projectID, number)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, run, p, cfg)
}

// StartStage checks preconditions and acquires the run, then executes the
// stage on a background worker. It returns the running run.
func (o *Orchestrator) StartStage(ctx context.Context, projectID uuid.UUID, number int, opts ...RunOption) (*db.Run, error) {
	cfg := newRunConfig(opts)

	type job struct {
		run *db.Run
		p   *prepared
	}
	jobs := make(chan job, 1)
	bg := context.WithoutCancel(ctx)

	if !o.background.TryGo(func() error {
		j, ok := <-jobs
		if !ok {
			return nil
		}
		if _, err := o.execute(bg, j.run, j.p, cfg); err != nil {
			o.runLogger(j.run).Warn("background run failed", zap.Error(err))
		}
		return nil
	}) {
		return nil, ErrBusy
	}

	run, p, err := o.begin(ctx, projectID, number)
	if err != nil {
		close(jobs)
		return nil, err
	}
	jobs <- job{run: run, p: p}
	return run, nil
}

// begin validates the stage, checks preconditions and acquires the run. The
// stage order is checked by the store under the same lock that creates the
// run, after the single-run check.
func (o *Orchestrator) begin(ctx context.Context, projectID uuid.UUID, number int) (*db.Run, *prepared, error) {
	p, err := o.prepare(ctx, projectID, number)
	if err != nil {
		return nil, nil, err
	}

	run, err := o.store.AcquireRun(ctx, projectID, &db.RunStart{
		Stage:         p.stage.Number,
		StageName:     p.stage.Label,
		ProjectStatus: p.stage.InProgress,
		Allow: func(project *db.Project) bool {
			return canStart(project, p.stage)
		},
	})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, ErrProjectNotFound
		}
		if errors.Is(err, db.ErrRunActive) {
			return nil, nil, conflictFrom(projectID, err)
		}
		if errors.Is(err, db.ErrStageOrder) {
			project, _ := o.store.GetProject(ctx, projectID)
			return nil, nil, orderError(project, p.stage)
		}
		return nil, nil, fmt.Errorf("failed to acquire run: %w", err)
	}
	return run, p, nil
}

// prepare resolves the stage and fetches its inputs, latest first.
func (o *Orchestrator) prepare(ctx context.Context, projectID uuid.UUID, number int) (*prepared, error) {
	stage, err := stages.Get(number)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStage, err)
	}
	if !o.gen.Bound(stage.Workflow) {
		return nil, &ConfigError{Stage: stage.Number, Workflow: stage.Workflow}
	}

	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	env := &stages.Env{
		Project:   project,
		Artifacts: make(map[string]*db.Artifact, len(stage.Inputs)),
		Options:   o.opts.Stage,
	}

	var (
		mu       sync.Mutex
		sections []db.Section
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, in := range stage.Inputs {
		g.Go(func() error {
			var (
				a   *db.Artifact
				err error
			)
			if in.Selected {
				a, err = o.store.SelectedArtifact(gctx, projectID, in.Artifact)
			} else {
				a, err = o.store.LatestArtifact(gctx, projectID, in.Artifact)
			}
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", in.Artifact, err)
			}
			if a != nil {
				mu.Lock()
				env.Artifacts[in.Artifact] = a
				mu.Unlock()
			}
			return nil
		})
	}
	if stage.RequiresSections {
		g.Go(func() error {
			var err error
			sections, err = o.store.ListSections(gctx, projectID)
			if err != nil {
				return fmt.Errorf("failed to list sections: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var missing []string
	for _, in := range stage.Inputs {
		if !in.Required || env.Artifacts[in.Artifact] != nil {
			continue
		}
		name := in.Artifact
		if in.Selected {
			name = "selected " + name
		}
		missing = append(missing, name)
	}
	if stage.RequiresSections && len(sections) == 0 {
		missing = append(missing, "sections")
	}
	if len(missing) > 0 {
		return nil, &PreconditionError{Stage: stage.Number, Missing: missing}
	}

	return &prepared{stage: stage, env: env}, nil
}

// canStart reports whether the project may run stage. A stage starts from
// the status its predecessor leaves, or again at the same stage after an
// error or an interrupted run. Header variants can be regenerated until RAG
// building starts. Anything else needs a rewind.
func canStart(project *db.Project, stage *stages.Stage) bool {
	if project.Status == stage.Ready {
		return true
	}
	if project.CurrentStage != stage.Number {
		return false
	}
	switch project.Status {
	case db.ProjectStatusError, stage.InProgress:
		return true
	case db.ProjectStatusHeadersGenerated, db.ProjectStatusHeadersSelected:
		return stage.Number == stages.Headers
	}
	return false
}

func orderError(project *db.Project, stage *stages.Stage) error {
	reason := "rewind first"
	switch {
	case project == nil:
	case stage.Number == stages.RAG && project.Status == db.ProjectStatusHeadersGenerated:
		reason = "select a header variant first"
	case stage.Number > project.CurrentStage:
		reason = fmt.Sprintf("stage %d has not completed", stage.Number-1)
	default:
		reason = fmt.Sprintf("project is %s at stage %d, rewind first", project.Status, project.CurrentStage)
	}
	return &PreconditionError{Stage: stage.Number, Reason: reason}
}

func (o *Orchestrator) execute(ctx context.Context, run *db.Run, p *prepared, cfg *runConfig) (*Result, error) {
	log := o.runLogger(run)
	log.Info("stage started", zap.String("label", p.stage.Label))

	if p.stage.Iterative {
		return o.runContent(ctx, log, run, p, cfg)
	}
	return o.runSingle(ctx, log, run, p, cfg)
}

func (o *Orchestrator) runSingle(ctx context.Context, log *zap.Logger, run *db.Run, p *prepared, cfg *runConfig) (*Result, error) {
	stage := p.stage
	o.emit(ctx, cfg, run, events.Event{Type: events.TypeStageStarted})

	var u usage
	res, err := o.invoke(ctx, log, stage.Workflow, stage.Build(p.env))
	u.add(res)
	if err != nil {
		return o.fail(ctx, log, run, cfg, &GeneratorError{Stage: stage.Number, Message: "generator call failed", Cause: err}, &u)
	}
	if !res.Succeeded() {
		return o.fail(ctx, log, run, cfg, &GeneratorError{Stage: stage.Number, Message: failureMessage(res.Status, res.Error)}, &u)
	}

	if o.isCancelled(ctx, run.ID) {
		return o.cancelled(ctx, log, run, cfg), nil
	}

	values, err := stage.Resolve(res.Outputs)
	if err != nil {
		return o.fail(ctx, log, run, cfg, &GeneratorError{Stage: stage.Number, Message: err.Error(), Cause: err}, &u)
	}
	writes, err := stage.Map(values)
	if err != nil {
		return o.fail(ctx, log, run, cfg, &GeneratorError{Stage: stage.Number, Message: err.Error(), Cause: err}, &u)
	}

	err = o.store.CommitStage(ctx, run.ID, &db.StageCommit{
		ProjectID:    run.ProjectID,
		Artifacts:    writes.Artifacts,
		Sections:     writes.Sections,
		ResetContext: writes.ResetContext,
		Project:      db.ProjectUpdate{Stage: stage.Number, Status: stage.Completed},
	})
	if errors.Is(err, db.ErrRunNotActive) {
		return o.cancelled(ctx, log, run, cfg), nil
	}
	if err != nil {
		return o.fail(ctx, log, run, cfg, fmt.Errorf("failed to save stage %d output: %w", stage.Number, err), &u)
	}

	return o.complete(ctx, log, run, cfg, &u, len(writes.Artifacts))
}

func failureMessage(status, msg string) string {
	if msg != "" {
		return msg
	}
	if status == "" {
		status = "unknown"
	}
	return fmt.Sprintf("workflow finished with status %s", status)
}

// complete marks the run completed. The project status was already moved by
// the stage commit.
func (o *Orchestrator) complete(ctx context.Context, log *zap.Logger, run *db.Run, cfg *runConfig, u *usage, written int) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	ok, err := o.store.FinishRun(ctx, run.ID, &db.RunOutcome{
		Status:       db.RunStatusCompleted,
		TotalTokens:  u.total,
		TokenDetails: u.details,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}
	if !ok {
		log.Warn("run was no longer running at completion")
	}

	log.Info("stage completed", zap.Int("artifacts", written), zap.Int("tokens", u.total))
	o.emit(ctx, cfg, run, events.Event{Type: events.TypeStageCompleted, Tokens: u.total})
	return o.result(ctx, run), nil
}

// fail records cause on the run and moves the project to the error status.
// The returned error is cause.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, run *db.Run, cfg *runConfig, cause error, u *usage) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	ok, err := o.store.FinishRun(ctx, run.ID, &db.RunOutcome{
		Status:       db.RunStatusError,
		ErrorMessage: cause.Error(),
		TotalTokens:  u.total,
		TokenDetails: u.details,
		Project:      &db.ProjectUpdate{Stage: run.Stage, Status: db.ProjectStatusError},
	})
	if err != nil {
		log.Error("failed to record run failure", zap.Error(err))
	}
	if !ok && err == nil {
		// Cancelled while the generator was working; keep the cancellation.
		return o.cancelled(ctx, log, run, cfg), nil
	}

	log.Warn("stage failed", zap.Error(cause))
	e := events.Event{Type: events.TypeStageFailed, Message: cause.Error(), Tokens: u.total}
	var ge *GeneratorError
	if errors.As(cause, &ge) && ge.Section != nil {
		e.Section = ge.Section
	}
	o.emit(ctx, cfg, run, e)
	return o.result(ctx, run), cause
}

func (o *Orchestrator) cancelled(ctx context.Context, log *zap.Logger, run *db.Run, cfg *runConfig) *Result {
	log.Info("run cancelled, stopping")
	// CancelRun already published the event.
	if cfg != nil && cfg.progress != nil {
		cfg.progress(events.Event{
			Type:      events.TypeRunCancelled,
			ProjectID: run.ProjectID,
			RunID:     run.ID,
			Stage:     run.Stage,
			StageName: run.StageName,
			Message:   CancelMessage,
			Timestamp: time.Now().UTC(),
		})
	}
	return o.result(ctx, run)
}
