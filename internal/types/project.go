// Package types provides type definitions for structured data exchanged between
// the pipeline, the store and the HTTP API.
package types

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// CreateProjectRequest is the payload for creating a new writing project.
type CreateProjectRequest struct {
	Topic        string `json:"topic" validate:"required,min=1,max=200"`
	Language     string `json:"language,omitempty" validate:"omitempty,max=50"`
	SeedDocument string `json:"seed_document,omitempty" validate:"omitempty,max=50000"`
}

// Validate validates the CreateProjectRequest using the validator.
func (r *CreateProjectRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// RewindRequest asks the pipeline to redo a stage and everything after it.
type RewindRequest struct {
	ToStage int `json:"to_stage" validate:"required,min=1,max=5"`
}

// Validate validates the RewindRequest using the validator.
func (r *RewindRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// EditArtifactRequest carries a hand-edited artifact payload. At least one of
// Content (structured) or Text must be set.
type EditArtifactRequest struct {
	Content json.RawMessage `json:"content,omitempty" validate:"required_without=Text"`
	Text    *string         `json:"text,omitempty" validate:"required_without=Content"`
}

// Validate validates the EditArtifactRequest using the validator.
func (r *EditArtifactRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
