// Package model holds the versioned model registry and the pure scorer.
// Artifacts are immutable once registered; scoring the same rows with the
// same version always yields the same predictions.
package model

import (
	"fmt"
	"math"
	"time"
)

// Artifact is one trained linear model for a single target metric (its
// family). The input schema is ordered and must match the feature rows it
// scores exactly.
type Artifact struct {
	Family  string `json:"family"`
	Version string `json:"version"`

	Inputs       []string  `json:"inputs"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`

	// Optional output clamp; a cost model must never predict negative spend.
	ClampMin *float64 `json:"clamp_min,omitempty"`
	ClampMax *float64 `json:"clamp_max,omitempty"`

	// Confidence is fixed at training time (1 - normalized training RMSE)
	// and stamped onto every prediction the artifact makes.
	Confidence float64 `json:"confidence"`
}

// Metadata is the training record stored alongside the artifact. It never
// influences scoring; it exists for audits and the models CLI.
type Metadata struct {
	Family      string    `json:"family"`
	Version     string    `json:"version"`
	TrainedAt   time.Time `json:"trained_at"`
	CutoffDate  time.Time `json:"cutoff_date"`
	DatasetSize int       `json:"dataset_size"`
	Features    []string  `json:"features"`
	MAE         float64   `json:"mae"`
	RMSE        float64   `json:"rmse"`
	R2          float64   `json:"r2"`
}

// Ref names one registry entry.
type Ref struct {
	Family  string
	Version string
}

func (r Ref) String() string { return r.Family + "@" + r.Version }

// Validate checks the artifact's internal consistency. Registration refuses
// inconsistent artifacts so scoring never has to.
func (a *Artifact) Validate() error {
	if a.Family == "" {
		return fmt.Errorf("artifact has no family")
	}
	if _, _, _, err := ParseVersion(a.Version); err != nil {
		return fmt.Errorf("artifact %s: %w", a.Family, err)
	}
	if len(a.Inputs) == 0 {
		return fmt.Errorf("artifact %s@%s has no input schema", a.Family, a.Version)
	}
	if len(a.Coefficients) != len(a.Inputs) {
		return fmt.Errorf("artifact %s@%s has %d coefficients for %d inputs",
			a.Family, a.Version, len(a.Coefficients), len(a.Inputs))
	}
	if a.ClampMin != nil && a.ClampMax != nil && *a.ClampMin > *a.ClampMax {
		return fmt.Errorf("artifact %s@%s clamp range is inverted", a.Family, a.Version)
	}
	return nil
}

// Predict evaluates the linear model over one feature vector. The caller
// guarantees the vector matches Inputs in length and order.
func (a *Artifact) Predict(values []float64) float64 {
	out := a.Intercept
	for i, c := range a.Coefficients {
		out += c * values[i]
	}
	if a.ClampMin != nil && out < *a.ClampMin {
		out = *a.ClampMin
	}
	if a.ClampMax != nil && out > *a.ClampMax {
		out = *a.ClampMax
	}
	return out
}

// Defined reports whether every input value is usable. NaN inputs make the
// prediction undefined; those rows are skipped as gaps, never scored.
func Defined(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
