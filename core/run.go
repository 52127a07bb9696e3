package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunState is one node in the per-run state machine. States advance strictly
// in order; FAILED and CANCELLED are terminal and reachable from any
// non-terminal state.
type RunState string

const (
	StateIngested    RunState = "INGESTED"
	StateValidated   RunState = "VALIDATED"
	StateFeatured    RunState = "FEATURED"
	StateScored      RunState = "SCORED"
	StateAlerted     RunState = "ALERTED"
	StateRecommended RunState = "RECOMMENDED"
	StatePublished   RunState = "PUBLISHED"
	StateFailed      RunState = "FAILED"
	StateCancelled   RunState = "CANCELLED"
)

var stateOrder = map[RunState]int{
	StateIngested:    0,
	StateValidated:   1,
	StateFeatured:    2,
	StateScored:      3,
	StateAlerted:     4,
	StateRecommended: 5,
	StatePublished:   6,
}

// Terminal reports whether no further transition is allowed from s.
func (s RunState) Terminal() bool {
	return s == StatePublished || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether to is a legal successor of s: the next state
// in pipeline order, or a terminal failure state.
func (s RunState) CanTransition(to RunState) bool {
	if s.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	from, ok := stateOrder[s]
	next, ok2 := stateOrder[to]
	return ok && ok2 && next == from+1
}

// RunMetadata is the append-only record of one orchestrated run.
type RunMetadata struct {
	RunID    string    `json:"run_id"`
	ClientID string    `json:"client_id"`
	AsOf     time.Time `json:"as_of"`
	State    RunState  `json:"state"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// InputSnapshotID is the SHA-256 of the raw input bytes; identical inputs
	// yield identical snapshot ids across re-runs.
	InputSnapshotID string `json:"input_snapshot_id"`

	// RowCounts records the row count each stage produced, keyed by state
	// name at the time the stage completed.
	RowCounts map[string]int `json:"row_counts"`

	WarnCount       int             `json:"warn_count"`
	QuarantinedRows int             `json:"quarantined_rows"`
	IncompleteRows  int             `json:"incomplete_rows"`
	PredictionGaps  []PredictionGap `json:"prediction_gaps,omitempty"`

	// ModelVersions maps target metric to the artifact version that scored it.
	ModelVersions map[string]string `json:"model_versions,omitempty"`

	// FailedStage and Diagnostic are set only on FAILED.
	FailedStage string `json:"failed_stage,omitempty"`
	Diagnostic  string `json:"diagnostic,omitempty"`
}

// NewRunMetadata creates run metadata in the initial state with a fresh id.
func NewRunMetadata(clientID string, asOf time.Time) *RunMetadata {
	return &RunMetadata{
		RunID:         uuid.New().String(),
		ClientID:      clientID,
		AsOf:          asOf,
		State:         StateIngested,
		StartedAt:     time.Now().UTC(),
		RowCounts:     make(map[string]int),
		ModelVersions: make(map[string]string),
	}
}

// Advance moves the run to the next state, recording the stage row count.
// It returns an error on an illegal transition so a sequencing bug cannot
// silently corrupt the run log.
func (m *RunMetadata) Advance(to RunState, rows int) error {
	if !m.State.CanTransition(to) {
		return fmt.Errorf("illegal run state transition %s -> %s", m.State, to)
	}
	m.State = to
	m.RowCounts[string(to)] = rows
	if to.Terminal() {
		m.FinishedAt = time.Now().UTC()
	}
	return nil
}

// Fail marks the run FAILED at the given stage with a diagnostic.
func (m *RunMetadata) Fail(stage RunState, err error) {
	m.State = StateFailed
	m.FailedStage = string(stage)
	if err != nil {
		m.Diagnostic = err.Error()
	}
	m.FinishedAt = time.Now().UTC()
}

// Cancel marks the run CANCELLED.
func (m *RunMetadata) Cancel(stage RunState) {
	m.State = StateCancelled
	m.FailedStage = string(stage)
	m.FinishedAt = time.Now().UTC()
}
