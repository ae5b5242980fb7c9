package db

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusError     = "error"
	RunStatusCancelled = "cancelled"
)

// Run is one attempted execution of a stage.
type Run struct {
	ID           uuid.UUID     `json:"id"`
	ProjectID    uuid.UUID     `json:"project_id"`
	Stage        int           `json:"stage"`
	StageName    string        `json:"stage_name"`
	Status       string        `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	TotalTokens  int           `json:"total_tokens"`
	TokenDetails []TokenDetail `json:"token_details,omitempty"`
}

// TokenDetail is the usage reported for a single node of a remote workflow.
type TokenDetail struct {
	NodeID    string `json:"node_id,omitempty"`
	NodeTitle string `json:"node_title"`
	NodeType  string `json:"node_type,omitempty"`
	Tokens    int    `json:"tokens"`
}

// RunStart describes a run to acquire and the project transition that goes
// with it.
type RunStart struct {
	Stage         int
	StageName     string
	ProjectStatus string
	// Allow, when set, is checked against the locked project after the
	// single-run check. A false result fails with ErrStageOrder.
	Allow func(p *Project) bool
}

// RunOutcome is the terminal transition of a run. Project, when set, is
// applied in the same transaction and only if the run was still running.
type RunOutcome struct {
	Status       string
	ErrorMessage string
	TotalTokens  int
	TokenDetails []TokenDetail
	Project      *ProjectUpdate
}

// ProjectReset restores a project when a run is cancelled. It only applies
// when the project still carries IfStatus.
type ProjectReset struct {
	IfStatus string
	Stage    int
	Status   string
}
