package feature

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"adpulse/core"
)

// Builder evaluates a feature spec against cleaned records. Per-entity rows
// are independent, so they fan out over the worker pool; results land in
// disjoint slots and are returned in sorted entity order regardless of
// scheduling.
type Builder struct {
	pool   *core.WorkerPool
	logger *zap.SugaredLogger
}

// NewBuilder creates a feature builder backed by the given pool.
func NewBuilder(pool *core.WorkerPool, logger *zap.SugaredLogger) *Builder {
	return &Builder{pool: pool, logger: logger}
}

// series is one entity's history up to and including the as-of date, keyed
// by civil day.
type series struct {
	entityID string
	clientID string
	byDay    map[string]*core.CleanedRecord
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

func (s *series) metricAt(day time.Time, metric string) (float64, bool) {
	rec, ok := s.byDay[dayKey(day)]
	if !ok {
		return 0, false
	}
	return rec.Metric(metric)
}

// Build computes one feature row per entity present in the input, sorted by
// entity id. Any record dated after asOf aborts with a LeakageError; that is
// a pipeline bug, not bad data, and no artifact may be built from it. Rows
// missing required history are flagged Incomplete with NaN in the affected
// slots, never zero-filled.
func (b *Builder) Build(records []core.CleanedRecord, asOf time.Time, spec *Spec) ([]core.FeatureRow, error) {
	bySeries := make(map[string]*series)
	for i := range records {
		rec := &records[i]
		if rec.Date.After(asOf) {
			return nil, &core.LeakageError{
				EntityID:   rec.CampaignID,
				Feature:    "input",
				RecordDate: rec.Date,
				AsOf:       asOf,
			}
		}
		s, ok := bySeries[rec.CampaignID]
		if !ok {
			s = &series{
				entityID: rec.CampaignID,
				clientID: rec.ClientID,
				byDay:    make(map[string]*core.CleanedRecord),
			}
			bySeries[rec.CampaignID] = s
		}
		s.byDay[dayKey(rec.Date)] = rec
	}

	entityIDs := make([]string, 0, len(bySeries))
	for id := range bySeries {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)

	names := spec.Names()
	rows := make([]core.FeatureRow, len(entityIDs))
	tasks := make([]func(), len(entityIDs))
	for i, id := range entityIDs {
		i, s := i, bySeries[id]
		tasks[i] = func() {
			rows[i] = buildRow(s, asOf, spec, names)
		}
	}
	if err := b.pool.RunTasks(tasks); err != nil {
		return nil, err
	}

	incomplete := 0
	for i := range rows {
		if rows[i].Incomplete {
			incomplete++
		}
	}
	b.logger.Infow("built feature rows",
		"entities", len(rows), "features", len(names), "incomplete", incomplete,
		"as_of", asOf.Format("2006-01-02"))
	return rows, nil
}

func buildRow(s *series, asOf time.Time, spec *Spec, names []string) core.FeatureRow {
	row := core.FeatureRow{
		ClientID: s.clientID,
		EntityID: s.entityID,
		AsOf:     asOf,
		Names:    names,
		Values:   make([]float64, len(names)),
	}

	for i, def := range spec.Features {
		value, ok := evaluate(s, asOf, def)
		if !ok {
			row.Values[i] = math.NaN()
			row.Incomplete = true
			row.Missing = append(row.Missing, names[i])
			continue
		}
		row.Values[i] = value
	}
	return row
}

func evaluate(s *series, asOf time.Time, def Definition) (float64, bool) {
	switch def.Kind {
	case KindLag:
		return s.metricAt(asOf.AddDate(0, 0, -def.Offset), def.Metric)

	case KindRollingMean:
		// Window ends the day before asOf so the row never reads its own
		// same-day value.
		sum, n := 0.0, 0
		for d := 1; d <= def.Window; d++ {
			if v, ok := s.metricAt(asOf.AddDate(0, 0, -d), def.Metric); ok {
				sum += v
				n++
			}
		}
		if n < def.EffectiveMinPeriods() {
			return 0, false
		}
		return sum / float64(n), true

	case KindPctChange:
		today, okToday := s.metricAt(asOf, def.Metric)
		prev, okPrev := s.metricAt(asOf.AddDate(0, 0, -1), def.Metric)
		if !okToday || !okPrev || prev == 0 {
			return 0, false
		}
		return (today - prev) / prev, true

	case KindCumSum:
		// Running total through asOf; with one observation per day this is
		// bounded by the series length.
		sum, n := 0.0, 0
		for key, rec := range s.byDay {
			if key > dayKey(asOf) {
				continue
			}
			if v, ok := rec.Metric(def.Metric); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			return 0, false
		}
		return sum, true

	case KindCalendar:
		switch def.Field {
		case CalendarDayOfWeek:
			// Monday = 0 .. Sunday = 6.
			return float64((int(asOf.Weekday()) + 6) % 7), true
		case CalendarISOWeek:
			_, week := asOf.ISOWeek()
			return float64(week), true
		}
	}
	return 0, false
}
