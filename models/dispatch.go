package models

import "time"

// DispatchStage names the step of the per-user pipeline that failed.
type DispatchStage string

const (
	DispatchStageGenerate DispatchStage = "generate"
	DispatchStagePersist  DispatchStage = "persist"
)

// DispatchFailure records one user the daily run could not serve.
type DispatchFailure struct {
	UserID string        `json:"user_id"`
	Stage  DispatchStage `json:"stage"`
	Error  string        `json:"error"`
}

// DispatchResult summarizes a single daily reading run.
type DispatchResult struct {
	Eligible          int               `json:"eligible"`
	Succeeded         int               `json:"succeeded"`
	Failures          []DispatchFailure `json:"failures,omitempty"`
	CredentialProblem bool              `json:"credential_problem,omitempty"`
	Skipped           bool              `json:"skipped,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
}

// Failed is the number of users that did not receive a reading.
func (r DispatchResult) Failed() int {
	return len(r.Failures)
}
