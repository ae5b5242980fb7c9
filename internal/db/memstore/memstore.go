// Package memstore is an in-memory implementation of db.Store. It backs the
// pipeline tests and the server's --store=memory development mode.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/types"
)

// Store keeps every table in maps guarded by a single mutex, so each method
// is one atomic step just like a transaction in the PostgreSQL store.
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	projects  map[uuid.UUID]*db.Project
	artifacts []*db.Artifact
	runs      []*db.Run
	sections  map[uuid.UUID][]*db.Section
	contexts  map[uuid.UUID]*db.ContextState
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		projects: make(map[uuid.UUID]*db.Project),
		sections: make(map[uuid.UUID][]*db.Section),
		contexts: make(map[uuid.UUID]*db.ContextState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ db.Store = (*Store)(nil)

// CreateProject inserts a new project in the draft status.
func (s *Store) CreateProject(_ context.Context, in *db.ProjectInput) (*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	language := in.Language
	if language == "" {
		language = db.DefaultLanguage
	}
	now := s.now()
	p := &db.Project{
		ID:           uuid.New(),
		Topic:        in.Topic,
		Language:     language,
		SeedDocument: copyString(in.SeedDocument),
		Status:       db.ProjectStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.projects[p.ID] = p
	out := *p
	return &out, nil
}

// GetProject retrieves a project by ID
func (s *Store) GetProject(_ context.Context, id uuid.UUID) (*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

// ListProjects returns the most recently created projects first.
func (s *Store) ListProjects(_ context.Context, limit int) ([]db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	projects := make([]db.Project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, *p)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	if len(projects) > limit {
		projects = projects[:limit]
	}
	return projects, nil
}

// DeleteProject removes a project and everything that belongs to it.
func (s *Store) DeleteProject(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireIdle(id); err != nil {
		return err
	}
	delete(s.projects, id)
	delete(s.sections, id)
	delete(s.contexts, id)
	s.artifacts = filter(s.artifacts, func(a *db.Artifact) bool { return a.ProjectID != id })
	s.runs = filter(s.runs, func(r *db.Run) bool { return r.ProjectID != id })
	return nil
}

// CreateArtifact inserts a single artifact outside of a stage commit.
func (s *Store) CreateArtifact(_ context.Context, projectID uuid.UUID, in *db.ArtifactInput) (*db.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[projectID]; !ok {
		return nil, db.ErrNotFound
	}
	a, err := s.insertArtifact(projectID, in)
	if err != nil {
		return nil, err
	}
	return copyArtifact(a), nil
}

// GetArtifact retrieves an artifact by ID
func (s *Store) GetArtifact(_ context.Context, id uuid.UUID) (*db.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.artifacts {
		if a.ID == id {
			return copyArtifact(a), nil
		}
	}
	return nil, nil
}

// LatestArtifact returns the most recently created artifact of a type. Ties
// on the timestamp go to the later insert.
func (s *Store) LatestArtifact(_ context.Context, projectID uuid.UUID, artifactType string) (*db.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyArtifact(s.latest(projectID, artifactType, false)), nil
}

// SelectedArtifact returns the most recently created selected artifact of a type.
func (s *Store) SelectedArtifact(_ context.Context, projectID uuid.UUID, artifactType string) (*db.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyArtifact(s.latest(projectID, artifactType, true)), nil
}

// ListArtifacts lists a project's artifacts newest first.
func (s *Store) ListArtifacts(_ context.Context, projectID uuid.UUID, artifactType string) ([]db.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []db.Artifact
	for i := len(s.artifacts) - 1; i >= 0; i-- {
		a := s.artifacts[i]
		if a.ProjectID != projectID || (artifactType != "" && a.Type != artifactType) {
			continue
		}
		out = append(out, *copyArtifact(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateArtifact replaces an artifact's payload in place.
func (s *Store) UpdateArtifact(_ context.Context, projectID, artifactID uuid.UUID, content json.RawMessage, text *string) (*db.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireIdle(projectID); err != nil {
		return nil, err
	}
	for _, a := range s.artifacts {
		if a.ID != artifactID || a.ProjectID != projectID {
			continue
		}
		if len(content) > 0 {
			a.Content = append(json.RawMessage(nil), content...)
		}
		if text != nil {
			a.TextContent = copyString(text)
		}
		a.UpdatedAt = s.now()
		return copyArtifact(a), nil
	}
	return nil, db.ErrNotFound
}

// SelectArtifact marks one artifact as the selected one of its type.
func (s *Store) SelectArtifact(_ context.Context, projectID, artifactID uuid.UUID, promote *db.ProjectReset) (*db.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.requireIdle(projectID)
	if err != nil {
		return nil, err
	}

	var target *db.Artifact
	for _, a := range s.artifacts {
		if a.ID == artifactID && a.ProjectID == projectID {
			target = a
		}
	}
	if target == nil {
		return nil, db.ErrNotFound
	}

	now := s.now()
	for _, a := range s.artifacts {
		if a.ProjectID == projectID && a.Type == target.Type {
			a.IsSelected = a.ID == artifactID
			a.UpdatedAt = now
		}
	}

	if promote != nil && p.Status == promote.IfStatus {
		s.updateProject(projectID, db.ProjectUpdate{Stage: promote.Stage, Status: promote.Status})
	}
	out := *s.projects[projectID]
	return &out, nil
}

// AcquireRun atomically creates a running run and moves the project into the
// stage's in-progress status.
func (s *Store) AcquireRun(_ context.Context, projectID uuid.UUID, start *db.RunStart) (*db.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, db.ErrNotFound
	}
	if running := s.running(projectID); running != nil {
		return nil, &db.RunConflictError{Running: copyRun(running)}
	}
	if start.Allow != nil {
		cp := *p
		if !start.Allow(&cp) {
			return nil, db.ErrStageOrder
		}
	}

	run := &db.Run{
		ID:        uuid.New(),
		ProjectID: projectID,
		Stage:     start.Stage,
		StageName: start.StageName,
		Status:    db.RunStatusRunning,
		StartedAt: s.now(),
	}
	s.runs = append(s.runs, run)
	s.updateProject(projectID, db.ProjectUpdate{Stage: start.Stage, Status: start.ProjectStatus})
	return copyRun(run), nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(_ context.Context, id uuid.UUID) (*db.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.runs {
		if r.ID == id {
			return copyRun(r), nil
		}
	}
	return nil, nil
}

// GetRunningRun returns the project's running run, if any.
func (s *Store) GetRunningRun(_ context.Context, projectID uuid.UUID) (*db.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyRun(s.running(projectID)), nil
}

// ListRuns returns the project's runs, newest first.
func (s *Store) ListRuns(_ context.Context, projectID uuid.UUID) ([]db.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []db.Run
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].ProjectID == projectID {
			out = append(out, *copyRun(s.runs[i]))
		}
	}
	return out, nil
}

// FinishRun performs the terminal transition of a running run.
func (s *Store) FinishRun(_ context.Context, runID uuid.UUID, outcome *db.RunOutcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.run(runID)
	if run == nil {
		return false, db.ErrNotFound
	}
	if run.Status != db.RunStatusRunning {
		return false, nil
	}

	now := s.now()
	run.Status = outcome.Status
	run.CompletedAt = &now
	run.TotalTokens = outcome.TotalTokens
	run.TokenDetails = append([]db.TokenDetail(nil), outcome.TokenDetails...)
	if outcome.ErrorMessage != "" {
		msg := outcome.ErrorMessage
		run.ErrorMessage = &msg
	}
	if outcome.Project != nil {
		s.updateProject(run.ProjectID, *outcome.Project)
	}
	return true, nil
}

// CancelRun marks a running run as cancelled and optionally restores the project.
func (s *Store) CancelRun(_ context.Context, projectID, runID uuid.UUID, message string, reset func(run *db.Run) *db.ProjectReset) (*db.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, db.ErrNotFound
	}
	run := s.run(runID)
	if run == nil || run.ProjectID != projectID {
		return nil, db.ErrNotFound
	}
	if run.Status != db.RunStatusRunning {
		return nil, db.ErrRunNotActive
	}

	now := s.now()
	run.Status = db.RunStatusCancelled
	run.CompletedAt = &now
	run.ErrorMessage = &message

	if reset != nil {
		if r := reset(copyRun(run)); r != nil && p.Status == r.IfStatus {
			s.updateProject(projectID, db.ProjectUpdate{Stage: r.Stage, Status: r.Status})
		}
	}
	return copyRun(run), nil
}

// CommitStage writes a stage's outputs and moves the project forward.
func (s *Store) CommitStage(_ context.Context, runID uuid.UUID, commit *db.StageCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning(runID, commit.ProjectID); err != nil {
		return err
	}

	for i := range commit.Artifacts {
		if _, ok := db.ArtifactStages[commit.Artifacts[i].Type]; !ok {
			return fmt.Errorf("unknown artifact type: %s", commit.Artifacts[i].Type)
		}
	}
	for i := range commit.Artifacts {
		if _, err := s.insertArtifact(commit.ProjectID, &commit.Artifacts[i]); err != nil {
			return err
		}
	}

	if commit.Sections != nil {
		now := s.now()
		sections := make([]*db.Section, 0, len(commit.Sections))
		for _, in := range commit.Sections {
			sections = append(sections, &db.Section{
				ID:        uuid.New(),
				ProjectID: commit.ProjectID,
				Order:     in.Order,
				Heading:   in.Heading,
				Knowledge: in.Knowledge,
				Keywords:  in.Keywords,
				Status:    db.SectionStatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		sort.Slice(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })
		s.sections[commit.ProjectID] = sections
	}

	if commit.ResetContext {
		s.resetContext(commit.ProjectID)
	}

	s.updateProject(commit.ProjectID, commit.Project)
	return nil
}

// ListSections returns the project's sections in section order.
func (s *Store) ListSections(_ context.Context, projectID uuid.UUID) ([]db.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []db.Section
	for _, sec := range s.sections[projectID] {
		out = append(out, copySection(sec))
	}
	return out, nil
}

// SetSectionStatus updates a section's status and error message.
func (s *Store) SetSectionStatus(_ context.Context, sectionID uuid.UUID, status string, errorMessage *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := s.section(sectionID)
	if sec == nil {
		return db.ErrNotFound
	}
	sec.Status = status
	sec.ErrorMessage = copyString(errorMessage)
	sec.UpdatedAt = s.now()
	return nil
}

// GetContextState returns the project's context state.
func (s *Store) GetContextState(_ context.Context, projectID uuid.UUID) (*db.ContextState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.contexts[projectID]
	if !ok {
		return nil, nil
	}
	return copyContext(cs), nil
}

// AdvanceSection stores a generated section and moves the cursor past it.
func (s *Store) AdvanceSection(_ context.Context, runID uuid.UUID, adv *db.SectionAdvance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning(runID, adv.ProjectID); err != nil {
		return err
	}
	sec := s.section(adv.SectionID)
	if sec == nil || sec.ProjectID != adv.ProjectID {
		return db.ErrNotFound
	}

	now := s.now()
	content := adv.Content
	summary := adv.Summary.Summary
	sec.Status = db.SectionStatusCompleted
	sec.Content = &content
	sec.Summary = &summary
	sec.ErrorMessage = nil
	sec.UpdatedAt = now

	cs, ok := s.contexts[adv.ProjectID]
	if !ok {
		cs = &db.ContextState{ProjectID: adv.ProjectID}
		s.contexts[adv.ProjectID] = cs
	}
	cs.CurrentSectionIndex = adv.NextIndex
	cs.Summaries = append(cs.Summaries, copySummary(adv.Summary))
	cs.LastSectionContent = adv.Content
	cs.UpdatedAt = now
	return nil
}

// Rewind deletes downstream state and moves the project back.
func (s *Store) Rewind(_ context.Context, projectID uuid.UUID, plan *db.RewindPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireIdle(projectID); err != nil {
		return err
	}

	drop := make(map[string]bool, len(plan.ArtifactTypes))
	for _, t := range plan.ArtifactTypes {
		drop[t] = true
	}
	s.artifacts = filter(s.artifacts, func(a *db.Artifact) bool {
		return a.ProjectID != projectID || !drop[a.Type]
	})

	switch {
	case plan.DropSections:
		delete(s.sections, projectID)
		delete(s.contexts, projectID)
	case plan.ResetSections:
		now := s.now()
		for _, sec := range s.sections[projectID] {
			sec.Status = db.SectionStatusPending
			sec.Content = nil
			sec.Summary = nil
			sec.ErrorMessage = nil
			sec.UpdatedAt = now
		}
		s.resetContext(projectID)
	}

	s.updateProject(projectID, plan.Project)
	return nil
}

func (s *Store) insertArtifact(projectID uuid.UUID, in *db.ArtifactInput) (*db.Artifact, error) {
	stage, ok := db.ArtifactStages[in.Type]
	if !ok {
		return nil, fmt.Errorf("unknown artifact type: %s", in.Type)
	}
	now := s.now()
	a := &db.Artifact{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Type:        in.Type,
		Stage:       stage,
		TextContent: copyString(in.Text),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Variant != "" {
		v := in.Variant
		a.Variant = &v
	}
	if len(in.Content) > 0 {
		a.Content = append(json.RawMessage(nil), in.Content...)
	}
	s.artifacts = append(s.artifacts, a)
	return a, nil
}

func (s *Store) latest(projectID uuid.UUID, artifactType string, selectedOnly bool) *db.Artifact {
	var best *db.Artifact
	for _, a := range s.artifacts {
		if a.ProjectID != projectID || a.Type != artifactType || (selectedOnly && !a.IsSelected) {
			continue
		}
		if best == nil || !a.CreatedAt.Before(best.CreatedAt) {
			best = a
		}
	}
	return best
}

func (s *Store) running(projectID uuid.UUID) *db.Run {
	for _, r := range s.runs {
		if r.ProjectID == projectID && r.Status == db.RunStatusRunning {
			return r
		}
	}
	return nil
}

func (s *Store) run(id uuid.UUID) *db.Run {
	for _, r := range s.runs {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *Store) section(id uuid.UUID) *db.Section {
	for _, list := range s.sections {
		for _, sec := range list {
			if sec.ID == id {
				return sec
			}
		}
	}
	return nil
}

func (s *Store) requireIdle(projectID uuid.UUID) (*db.Project, error) {
	p, ok := s.projects[projectID]
	if !ok {
		return nil, db.ErrNotFound
	}
	if running := s.running(projectID); running != nil {
		return nil, &db.RunConflictError{Running: copyRun(running)}
	}
	return p, nil
}

func (s *Store) requireRunning(runID, projectID uuid.UUID) error {
	run := s.run(runID)
	if run == nil {
		return db.ErrNotFound
	}
	if run.ProjectID != projectID {
		return fmt.Errorf("run %s does not belong to project %s", runID, projectID)
	}
	if run.Status != db.RunStatusRunning {
		return db.ErrRunNotActive
	}
	return nil
}

func (s *Store) updateProject(id uuid.UUID, upd db.ProjectUpdate) {
	if p, ok := s.projects[id]; ok {
		p.CurrentStage = upd.Stage
		p.Status = upd.Status
		p.UpdatedAt = s.now()
	}
}

func (s *Store) resetContext(projectID uuid.UUID) {
	s.contexts[projectID] = &db.ContextState{ProjectID: projectID, UpdatedAt: s.now()}
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyArtifact(a *db.Artifact) *db.Artifact {
	if a == nil {
		return nil
	}
	out := *a
	out.Variant = copyString(a.Variant)
	out.TextContent = copyString(a.TextContent)
	if a.Content != nil {
		out.Content = append(json.RawMessage(nil), a.Content...)
	}
	return &out
}

func copyRun(r *db.Run) *db.Run {
	if r == nil {
		return nil
	}
	out := *r
	out.ErrorMessage = copyString(r.ErrorMessage)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	out.TokenDetails = append([]db.TokenDetail(nil), r.TokenDetails...)
	return &out
}

func copySection(sec *db.Section) db.Section {
	out := *sec
	out.Content = copyString(sec.Content)
	out.Summary = copyString(sec.Summary)
	out.ErrorMessage = copyString(sec.ErrorMessage)
	return out
}

func copySummary(s types.SectionSummary) types.SectionSummary {
	s.Topics = append([]string(nil), s.Topics...)
	return s
}

func copyContext(cs *db.ContextState) *db.ContextState {
	out := *cs
	out.Summaries = make([]types.SectionSummary, 0, len(cs.Summaries))
	for _, sum := range cs.Summaries {
		out.Summaries = append(out.Summaries, copySummary(sum))
	}
	return &out
}
