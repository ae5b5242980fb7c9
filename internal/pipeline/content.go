package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/events"
	"github.com/jonathan/content-writer/internal/pipeline/stages"
	"github.com/jonathan/content-writer/internal/types"
)

// runContent generates every section from the resume cursor onwards, one
// generator call per section, then assembles the final document.
func (o *Orchestrator) runContent(ctx context.Context, log *zap.Logger, run *db.Run, p *prepared, cfg *runConfig) (*Result, error) {
	stage := p.stage
	var u usage

	sections, err := o.store.ListSections(ctx, run.ProjectID)
	if err != nil {
		return o.fail(ctx, log, run, cfg, fmt.Errorf("failed to list sections: %w", err), &u)
	}
	state, err := o.store.GetContextState(ctx, run.ProjectID)
	if err != nil {
		return o.fail(ctx, log, run, cfg, fmt.Errorf("failed to get context state: %w", err), &u)
	}
	if state == nil {
		state = &db.ContextState{ProjectID: run.ProjectID}
	}

	cursor := state.CurrentSectionIndex
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(sections) {
		cursor = len(sections)
	}
	total := len(sections)
	log.Info("generating sections", zap.Int("cursor", cursor), zap.Int("total", total))
	o.emit(ctx, cfg, run, events.Event{Type: events.TypeStageStarted, Completed: cursor, Total: total})

	for i := cursor; i < total; i++ {
		if i > cursor && o.isCancelled(ctx, run.ID) {
			return o.cancelled(ctx, log, run, cfg), nil
		}

		sec := sections[i]
		index := i
		slog := log.With(zap.Int("section", i))

		if err := o.store.SetSectionStatus(ctx, sec.ID, db.SectionStatusProcessing, nil); err != nil {
			return o.fail(ctx, log, run, cfg, fmt.Errorf("failed to mark section %d processing: %w", i, err), &u)
		}
		o.emit(ctx, cfg, run, events.Event{Type: events.TypeSectionStarted, Section: &index, Heading: sec.Heading, Completed: i, Total: total})

		inputs := stages.ContentInputs(p.env, sections, i, state, o.acc)
		res, err := o.invoke(ctx, slog, stage.Workflow, inputs)
		u.add(res)

		var genErr *GeneratorError
		switch {
		case err != nil:
			genErr = &GeneratorError{Stage: stage.Number, Section: &index, Message: "generator call failed", Cause: err}
		case !res.Succeeded():
			genErr = &GeneratorError{Stage: stage.Number, Section: &index, Message: failureMessage(res.Status, res.Error)}
		}

		// A cancelled run leaves the section pending whatever the call returned.
		if o.isCancelled(context.WithoutCancel(ctx), run.ID) {
			o.resetSection(ctx, slog, sec.ID)
			return o.cancelled(ctx, log, run, cfg), nil
		}

		var content string
		if genErr == nil {
			values, rerr := stage.Resolve(res.Outputs)
			if rerr != nil {
				genErr = &GeneratorError{Stage: stage.Number, Section: &index, Message: rerr.Error(), Cause: rerr}
			} else {
				content = values["result"]
			}
		}

		if genErr != nil {
			msg := genErr.Error()
			if err := o.store.SetSectionStatus(context.WithoutCancel(ctx), sec.ID, db.SectionStatusError, &msg); err != nil {
				slog.Error("failed to mark section error", zap.Error(err))
			}
			res, err := o.fail(ctx, log, run, cfg, genErr, &u)
			if res != nil && res.Cancelled {
				o.resetSection(ctx, slog, sec.ID)
			}
			return res, err
		}

		summary := o.acc.Summarize(sec.Heading, content)
		err = o.store.AdvanceSection(ctx, run.ID, &db.SectionAdvance{
			ProjectID: run.ProjectID,
			SectionID: sec.ID,
			Content:   content,
			Summary:   summary,
			NextIndex: i + 1,
		})
		if errors.Is(err, db.ErrRunNotActive) {
			o.resetSection(ctx, slog, sec.ID)
			return o.cancelled(ctx, log, run, cfg), nil
		}
		if err != nil {
			return o.fail(ctx, log, run, cfg, fmt.Errorf("failed to save section %d: %w", i, err), &u)
		}

		sections[i].Status = db.SectionStatusCompleted
		sections[i].Content = &content
		sections[i].Summary = &summary.Summary
		state = advanced(state, summary, content, i+1)

		slog.Info("section completed", zap.Int("chars", len(content)))
		o.emit(ctx, cfg, run, events.Event{Type: events.TypeSectionCompleted, Section: &index, Heading: sec.Heading, Completed: i + 1, Total: total})
	}

	if o.isCancelled(ctx, run.ID) {
		return o.cancelled(ctx, log, run, cfg), nil
	}

	doc := stages.AssembleDocument(sections)
	artifact, err := stages.DocumentArtifact(doc)
	if err != nil {
		return o.fail(ctx, log, run, cfg, fmt.Errorf("failed to encode final document: %w", err), &u)
	}
	err = o.store.CommitStage(ctx, run.ID, &db.StageCommit{
		ProjectID: run.ProjectID,
		Artifacts: []db.ArtifactInput{artifact},
		Project:   db.ProjectUpdate{Stage: stage.Number, Status: stage.Completed},
	})
	if errors.Is(err, db.ErrRunNotActive) {
		return o.cancelled(ctx, log, run, cfg), nil
	}
	if err != nil {
		return o.fail(ctx, log, run, cfg, fmt.Errorf("failed to save final document: %w", err), &u)
	}

	return o.complete(ctx, log, run, cfg, &u, 1)
}

// resetSection puts a section interrupted by cancellation back to pending so
// the next run picks it up again.
func (o *Orchestrator) resetSection(ctx context.Context, log *zap.Logger, sectionID uuid.UUID) {
	if err := o.store.SetSectionStatus(context.WithoutCancel(ctx), sectionID, db.SectionStatusPending, nil); err != nil {
		log.Error("failed to reset section", zap.Error(err))
	}
}

// advanced returns the context state after one more completed section.
func advanced(state *db.ContextState, summary types.SectionSummary, content string, next int) *db.ContextState {
	out := *state
	out.Summaries = append(append([]types.SectionSummary(nil), state.Summaries...), summary)
	out.LastSectionContent = content
	out.CurrentSectionIndex = next
	return &out
}
