// Package events defines the progress notifications emitted while a stage
// runs and the publishers that deliver them to downstream systems.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types
const (
	TypeStageStarted     = "stage_started"
	TypeSectionStarted   = "section_started"
	TypeSectionCompleted = "section_completed"
	TypeStageCompleted   = "stage_completed"
	TypeStageFailed      = "stage_failed"
	TypeRunCancelled     = "run_cancelled"
)

// Event is one progress notification for a run.
type Event struct {
	Type      string    `json:"type"`
	ProjectID uuid.UUID `json:"project_id"`
	RunID     uuid.UUID `json:"run_id"`
	Stage     int       `json:"stage"`
	StageName string    `json:"stage_name,omitempty"`
	// Section is the zero-based section order for stage 5 events.
	Section   *int      `json:"section,omitempty"`
	Heading   string    `json:"heading,omitempty"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events downstream.
type Publisher interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *Event) error
	// Close releases publisher resources.
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, *Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// LogPublisher writes events to a zap logger.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, e *Event) error {
	fields := []zap.Field{
		zap.String("event", e.Type),
		zap.String("project_id", e.ProjectID.String()),
		zap.String("run_id", e.RunID.String()),
		zap.Int("stage", e.Stage),
	}
	if e.Section != nil {
		fields = append(fields, zap.Int("section", *e.Section))
	}
	if e.Total > 0 {
		fields = append(fields, zap.Int("completed", e.Completed), zap.Int("total", e.Total))
	}
	if e.Message != "" {
		fields = append(fields, zap.String("message", e.Message))
	}

	if e.Type == TypeStageFailed {
		p.logger.Warn("pipeline progress", fields...)
	} else {
		p.logger.Info("pipeline progress", fields...)
	}
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error { return nil }

// Fanout publishes every event to all of its publishers.
type Fanout []Publisher

// Publish implements Publisher. Every publisher is tried; their errors are
// joined.
func (f Fanout) Publish(ctx context.Context, e *Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher.
func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
