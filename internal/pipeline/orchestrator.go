// Package pipeline drives a project through the five generation stages. The
// only coordination between concurrent callers, in this process or another,
// is the store's atomic run acquisition.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/events"
	"github.com/jonathan/content-writer/internal/generator"
	"github.com/jonathan/content-writer/internal/pipeline/stages"
	"github.com/jonathan/content-writer/internal/summarize"
)

// CancelMessage is recorded on runs cancelled by the user.
const CancelMessage = "cancelled by user"

// Options configures an Orchestrator.
type Options struct {
	Logger    *zap.Logger
	Publisher events.Publisher
	Stage     stages.Options
	Limits    summarize.Limits
	// CallTimeout bounds each generator call. Zero means no deadline.
	CallTimeout time.Duration
	// MaxBackgroundRuns bounds StartStage concurrency.
	MaxBackgroundRuns int
	// Streaming selects InvokeStream over Invoke.
	Streaming bool
}

// Orchestrator runs stages against a store and a generator.
type Orchestrator struct {
	store      db.Store
	gen        generator.Generator
	logger     *zap.Logger
	publisher  events.Publisher
	opts       Options
	acc        *summarize.Accumulator
	background errgroup.Group
}

// New creates an Orchestrator.
func New(store db.Store, gen generator.Generator, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Stage == (stages.Options{}) {
		opts.Stage = stages.DefaultOptions()
	}
	if opts.MaxBackgroundRuns <= 0 {
		opts.MaxBackgroundRuns = 4
	}

	o := &Orchestrator{
		store:     store,
		gen:       gen,
		logger:    opts.Logger,
		publisher: opts.Publisher,
		opts:      opts,
		acc:       summarize.New(opts.Limits),
	}
	o.background.SetLimit(opts.MaxBackgroundRuns)
	return o
}

// Wait blocks until every background run has finished.
func (o *Orchestrator) Wait() error {
	return o.background.Wait()
}

// Result is the outcome of a stage run.
type Result struct {
	Run       *db.Run     `json:"run"`
	Project   *db.Project `json:"project"`
	Cancelled bool        `json:"cancelled,omitempty"`
}

// ProgressFunc receives every event of a single call.
type ProgressFunc func(events.Event)

// RunOption configures a single RunStage or StartStage call.
type RunOption func(*runConfig)

type runConfig struct {
	progress ProgressFunc
}

// WithProgress registers a per-call progress callback.
func WithProgress(fn ProgressFunc) RunOption {
	return func(c *runConfig) {
		c.progress = fn
	}
}

func newRunConfig(opts []RunOption) *runConfig {
	cfg := &runConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (o *Orchestrator) emit(ctx context.Context, cfg *runConfig, run *db.Run, e events.Event) {
	e.ProjectID = run.ProjectID
	e.RunID = run.ID
	e.Stage = run.Stage
	e.StageName = run.StageName
	e.Timestamp = time.Now().UTC()

	if err := o.publisher.Publish(ctx, &e); err != nil {
		o.logger.Warn("failed to publish event",
			zap.String("event", e.Type),
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
	}
	if cfg != nil && cfg.progress != nil {
		cfg.progress(e)
	}
}

func (o *Orchestrator) runLogger(run *db.Run) *zap.Logger {
	return o.logger.With(
		zap.String("project_id", run.ProjectID.String()),
		zap.String("run_id", run.ID.String()),
		zap.Int("stage", run.Stage),
	)
}

// invoke calls the generator under the configured deadline.
func (o *Orchestrator) invoke(ctx context.Context, log *zap.Logger, workflow string, inputs map[string]string) (*generator.Result, error) {
	if o.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.CallTimeout)
		defer cancel()
	}
	if !o.opts.Streaming {
		return o.gen.Invoke(ctx, workflow, inputs)
	}
	return o.gen.InvokeStream(ctx, workflow, inputs, func(e generator.Event) {
		log.Debug("generator event",
			zap.String("type", e.Type),
			zap.String("node", e.NodeTitle),
			zap.String("status", e.Status),
		)
	})
}

// isCancelled reports whether the run was cancelled from outside.
func (o *Orchestrator) isCancelled(ctx context.Context, runID uuid.UUID) bool {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil || run == nil {
		return false
	}
	return run.Status == db.RunStatusCancelled
}

// result reads back the run and project after a terminal transition.
func (o *Orchestrator) result(ctx context.Context, run *db.Run) *Result {
	ctx = context.WithoutCancel(ctx)
	res := &Result{Run: run}
	if r, err := o.store.GetRun(ctx, run.ID); err == nil && r != nil {
		res.Run = r
		res.Cancelled = r.Status == db.RunStatusCancelled
	}
	if p, err := o.store.GetProject(ctx, run.ProjectID); err == nil {
		res.Project = p
	}
	return res
}

// usage accumulates token accounting over one or more generator calls.
type usage struct {
	total   int
	details []db.TokenDetail
}

func (u *usage) add(res *generator.Result) {
	if res == nil {
		return
	}
	u.total += res.Usage.TotalTokens
	for _, n := range res.Usage.Nodes {
		u.details = append(u.details, db.TokenDetail{
			NodeID:    n.NodeID,
			NodeTitle: n.NodeTitle,
			NodeType:  n.NodeType,
			Tokens:    n.Tokens,
		})
	}
}
