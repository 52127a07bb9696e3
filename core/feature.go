package core

import "time"

// FeatureRow is a fixed-shape feature vector for one (client, entity, as-of)
// key. Names and Values are parallel slices; the order is the row's schema
// and must match the scoring model's declared input schema exactly.
type FeatureRow struct {
	ClientID string    `json:"client_id" msgpack:"client_id"`
	EntityID string    `json:"entity_id" msgpack:"entity_id"`
	AsOf     time.Time `json:"as_of" msgpack:"as_of"`

	Names  []string  `json:"names" msgpack:"names"`
	Values []float64 `json:"values" msgpack:"values"`

	// Incomplete marks rows that lack sufficient history for one or more
	// required features. Incomplete rows are retained and flagged, never
	// zero-filled, and the scorer skips them.
	Incomplete bool     `json:"incomplete" msgpack:"incomplete"`
	Missing    []string `json:"missing,omitempty" msgpack:"missing"`
}

// Value returns the named feature and whether the row carries it.
func (r *FeatureRow) Value(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return 0, false
}

// SchemaEquals reports whether the row's feature schema matches the given
// name list, including order.
func (r *FeatureRow) SchemaEquals(names []string) bool {
	if len(r.Names) != len(names) {
		return false
	}
	for i := range names {
		if r.Names[i] != names[i] {
			return false
		}
	}
	return true
}
