package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ViolationClass separates violations that abort the run from violations
// that quarantine rows and continue.
type ViolationClass string

const (
	// ClassFatal aborts the run before any downstream artifact is written.
	ClassFatal ViolationClass = "FATAL"
	// ClassWarn quarantines the offending rows and continues.
	ClassWarn ViolationClass = "WARN"
)

// Violation is one contract check failure.
type Violation struct {
	Field  string         `json:"field"`
	Rule   string         `json:"rule"`
	Row    int            `json:"row"` // -1 for dataset-level violations
	Detail string         `json:"detail"`
	Class  ViolationClass `json:"class"`
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] field=%s rule=%s row=%d: %s", v.Class, v.Field, v.Rule, v.Row, v.Detail)
}

// ValidationError carries the FATAL violations that aborted a run.
type ValidationError struct {
	Stage      string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("validation failed at %s: %s", e.Stage, strings.Join(parts, "; "))
}

// LeakageError reports a feature computed from data dated after its as-of
// timestamp. Always fatal: it indicates a bug in the feature spec or builder,
// not bad input data.
type LeakageError struct {
	EntityID   string
	Feature    string
	RecordDate time.Time
	AsOf       time.Time
}

func (e *LeakageError) Error() string {
	return fmt.Sprintf("leakage: feature %q for entity %s uses record dated %s after as-of %s",
		e.Feature, e.EntityID, e.RecordDate.Format("2006-01-02"), e.AsOf.Format("2006-01-02"))
}

// FeatureMismatchError reports a feature row whose schema does not match the
// model artifact's declared input schema (names and order).
type FeatureMismatchError struct {
	Version string
	Want    []string
	Got     []string
}

func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("feature schema mismatch for model %s: want [%s], got [%s]",
		e.Version, strings.Join(e.Want, ","), strings.Join(e.Got, ","))
}

var (
	// ErrModelNotFound is returned when a configured model version is absent
	// from the registry. Scoring cannot proceed.
	ErrModelNotFound = errors.New("model version not found in registry")

	// ErrPublicationConflict is returned when another run holds the publish
	// lock for the same canonical slot.
	ErrPublicationConflict = errors.New("publication conflict: canonical slot is locked by another run")
)
