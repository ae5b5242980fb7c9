// Package server provides the HTTP API of the content writer.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/generator"
	"github.com/jonathan/content-writer/internal/pipeline"
	"github.com/jonathan/content-writer/internal/schemas"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation   *ErrValidation
		fields       validator.ValidationErrors
		precondition *pipeline.PreconditionError
		conflict     *pipeline.ConflictError
		genErr       *pipeline.GeneratorError
		cfgErr       *pipeline.ConfigError
		schemaErr    *schemas.ValidationError
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &fields), errors.Is(err, pipeline.ErrInvalidStage):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrProjectNotFound),
		errors.Is(err, pipeline.ErrRunNotFound),
		errors.Is(err, pipeline.ErrArtifactNotFound),
		errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.Is(err, db.ErrRunActive):
		return http.StatusConflict
	case errors.As(err, &precondition), errors.As(err, &schemaErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &genErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, pipeline.ErrBusy), errors.As(err, &cfgErr), errors.Is(err, generator.ErrNotBound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "precondition_failed"
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return "generator_failed"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// describe builds the response body for err. Internal errors are not echoed.
func describe(err error) (int, errorBody) {
	status := HTTPStatus(err)
	body := errorBody{Error: err.Error(), Code: errorCode(status)}
	if status == http.StatusInternalServerError {
		body.Error = "internal server error"
	}

	var (
		conflict     *pipeline.ConflictError
		precondition *pipeline.PreconditionError
		fields       validator.ValidationErrors
		schemaErr    *schemas.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		body.Details = map[string]any{"running_stage": conflict.RunningStage}
		if conflict.RunID != uuid.Nil {
			body.Details["run_id"] = conflict.RunID
		}
	case errors.As(err, &precondition) && len(precondition.Missing) > 0:
		body.Details = map[string]any{"missing": precondition.Missing}
	case errors.As(err, &fields):
		invalid := make(map[string]any, len(fields))
		for _, f := range fields {
			invalid[f.Field()] = f.Tag()
		}
		body.Details = map[string]any{"fields": invalid}
	case errors.As(err, &schemaErr):
		body.Details = map[string]any{"schema": schemaErr.Schema, "errors": schemaErr.Errors}
	}
	return status, body
}
