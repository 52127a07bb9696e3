package core

import "time"

// Prediction is one model output row. Immutable; one row per
// (entity, as-of, metric, model version).
type Prediction struct {
	EntityID     string    `json:"entity_id" msgpack:"entity_id"`
	AsOf         time.Time `json:"as_of" msgpack:"as_of"`
	ModelVersion string    `json:"model_version" msgpack:"model_version"`

	// Metric is the model family's target metric (e.g. ctr_link, cpa).
	Metric string  `json:"metric" msgpack:"metric"`
	Value  float64 `json:"predicted_value" msgpack:"predicted_value"`

	// Confidence is a fixed per-artifact score derived from the artifact's
	// training evaluation, not a per-row uncertainty estimate.
	Confidence float64 `json:"confidence" msgpack:"confidence"`
}

// PredictionGap records an entity/metric pair a rule or scorer expected a
// prediction for but none existed. Gaps are a data-completeness signal
// surfaced in run metadata, not an error.
type PredictionGap struct {
	EntityID string `json:"entity_id" msgpack:"entity_id"`
	Metric   string `json:"metric" msgpack:"metric"`
	Reason   string `json:"reason" msgpack:"reason"`
}
