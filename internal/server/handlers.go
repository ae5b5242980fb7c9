package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/pipeline"
	"github.com/jonathan/content-writer/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBodyBytes     = 1 << 20
)

// ArtifactResponse wraps an edited artifact with an optional rewind hint.
type ArtifactResponse struct {
	Artifact *db.Artifact               `json:"artifact"`
	Rewind   *pipeline.RewindSuggestion `json:"rewind_suggestion,omitempty"`
}

// SelectionResponse wraps the project after a header selection.
type SelectionResponse struct {
	Project *db.Project                `json:"project"`
	Rewind  *pipeline.RewindSuggestion `json:"rewind_suggestion,omitempty"`
}

// DocumentResponse is the assembled article.
type DocumentResponse struct {
	ArtifactID uuid.UUID `json:"artifact_id"`
	types.FinalDocument
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// requireProject returns ErrProjectNotFound when the project does not exist.
func (s *Server) requireProject(r *http.Request, id uuid.UUID) error {
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}
	if p == nil {
		return pipeline.ErrProjectNotFound
	}
	return nil
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req types.CreateProjectRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	in := &db.ProjectInput{Topic: req.Topic, Language: req.Language}
	if in.Language == "" {
		in.Language = s.language
	}
	if seed := strings.TrimSpace(req.SeedDocument); seed != "" {
		in.SeedDocument = &seed
	}

	project, err := s.store.CreateProject(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	projects, err := s.store.ListProjects(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if projects == nil {
		projects = []db.Project{}
	}
	s.jsonResponse(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state, err := s.orch.GetProjectState(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteProject(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			err = pipeline.ErrProjectNotFound
		}
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	artifactType := r.URL.Query().Get("type")
	if _, ok := db.ArtifactStages[artifactType]; artifactType != "" && !ok {
		s.writeError(w, r, &ErrValidation{Field: "type", Message: "unknown artifact type"})
		return
	}
	if err := s.requireProject(r, id); err != nil {
		s.writeError(w, r, err)
		return
	}

	artifacts, err := s.store.ListArtifacts(r.Context(), id, artifactType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if artifacts == nil {
		artifacts = []db.Artifact{}
	}
	s.jsonResponse(w, http.StatusOK, artifacts)
}

func (s *Server) handleEditArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	artifactID, err := pathUUID(r, "artifact_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.EditArtifactRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	artifact, suggestion, err := s.orch.EditArtifact(r.Context(), id, artifactID, req.Content, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ArtifactResponse{Artifact: artifact, Rewind: suggestion})
}

func (s *Server) handleSelectHeader(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	artifactID, err := pathUUID(r, "artifact_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	project, suggestion, err := s.orch.SelectHeaderVariant(r.Context(), id, artifactID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, SelectionResponse{Project: project, Rewind: suggestion})
}

func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.requireProject(r, id); err != nil {
		s.writeError(w, r, err)
		return
	}

	sections, err := s.store.ListSections(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sections == nil {
		sections = []db.Section{}
	}
	s.jsonResponse(w, http.StatusOK, sections)
}

// handleGetDocument returns the assembled article. ?format=html or
// ?format=text return the bare body instead of JSON.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.requireProject(r, id); err != nil {
		s.writeError(w, r, err)
		return
	}

	artifact, err := s.store.LatestArtifact(r.Context(), id, db.ArtifactFinalDocument)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if artifact == nil {
		s.errorResponse(w, http.StatusNotFound, "document has not been generated yet")
		return
	}

	var doc types.FinalDocument
	if err := json.Unmarshal(artifact.Content, &doc); err != nil {
		s.writeError(w, r, fmt.Errorf("failed to decode document: %w", err))
		return
	}

	switch r.URL.Query().Get("format") {
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(doc.HTML))
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(doc.Text))
	default:
		s.jsonResponse(w, http.StatusOK, DocumentResponse{ArtifactID: artifact.ID, FinalDocument: doc})
	}
}
