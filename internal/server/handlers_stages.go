package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/jonathan/content-writer/internal/events"
	"github.com/jonathan/content-writer/internal/pipeline"
	"github.com/jonathan/content-writer/internal/types"
)

// RunFailedResponse is returned when a stage ran but did not succeed. The
// run and project already record the failure.
type RunFailedResponse struct {
	errorBody
	Result *pipeline.Result `json:"result"`
}

func stageParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("stage"))
	if err != nil {
		return 0, pipeline.ErrInvalidStage
	}
	return n, nil
}

// handleRunStage runs a stage and answers with its result. With ?async=true
// the stage runs in the background and the running run is returned.
func (s *Server) handleRunStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stage, err := stageParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		run, err := s.orch.StartStage(r.Context(), id, stage)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/projects/"+id.String())
		s.jsonResponse(w, http.StatusAccepted, run)
		return
	}

	result, err := s.orch.RunStage(r.Context(), id, stage)
	if err != nil {
		s.writeRunError(w, r, result, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, result *pipeline.Result, err error) {
	if result == nil {
		s.writeError(w, r, err)
		return
	}
	status, body := describe(err)
	s.jsonResponse(w, status, RunFailedResponse{errorBody: body, Result: result})
}

// handleStreamStage runs a stage and streams its progress as server-sent
// events, ending with a result or error event. Errors raised before the run
// starts are plain JSON responses.
func (s *Server) handleStreamStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stage, err := stageParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		sse       *SSEWriter
		streamErr error
	)
	progress := func(e events.Event) {
		if sse == nil && streamErr == nil {
			sse, streamErr = NewSSEWriter(w)
		}
		if sse == nil {
			return
		}
		if err := sse.WriteEvent(e.Type, e); err != nil {
			s.logger.Debug("client stopped reading progress", zap.Error(err))
		}
	}

	result, err := s.orch.RunStage(r.Context(), id, stage, pipeline.WithProgress(progress))
	if sse == nil {
		if streamErr != nil {
			s.logger.Warn("streaming unsupported", zap.Error(streamErr))
		}
		if err != nil {
			s.writeRunError(w, r, result, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, result)
		return
	}

	if err != nil {
		sse.WriteError(err)
	}
	if result != nil {
		sse.WriteResult(result)
	}
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runID, err := pathUUID(r, "run_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.orch.CancelRun(r.Context(), runID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

func (s *Server) handleRewind(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.RewindRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	project, err := s.orch.Rewind(r.Context(), id, req.ToStage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, project)
}
