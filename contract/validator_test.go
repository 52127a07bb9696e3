package contract

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adpulse/core"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func rawRecord(campaign string, d int, metrics map[string]float64) core.RawRecord {
	return core.RawRecord{
		ClientID:   "acme",
		CampaignID: campaign,
		Date:       day(d),
		Metrics:    metrics,
	}
}

func basicContract() *Contract {
	min := 0.0
	return &Contract{
		Name: "daily_export",
		Fields: []FieldContract{
			{Name: "campaign_id", Type: TypeString, Required: true},
			{Name: "date", Type: TypeDate, Required: true},
			{Name: "impressions", Type: TypeNumeric, Required: true, Min: &min},
			{Name: "spend", Type: TypeNumeric, Required: true, Nullable: true, Min: &min},
		},
	}
}

func TestValidate_Passes(t *testing.T) {
	records := []core.RawRecord{
		rawRecord("c1", 1, map[string]float64{"impressions": 100, "spend": 5}),
		rawRecord("c1", 2, map[string]float64{"impressions": 200, "spend": 8}),
	}
	res := Validate(records, basicContract())
	assert.True(t, res.Passed)
	assert.Empty(t, res.Violations)
	assert.Empty(t, res.Quarantined)
}

func TestValidate_MissingRequiredColumnIsFatal(t *testing.T) {
	// No record carries impressions at all: schema drift, abort.
	records := []core.RawRecord{
		rawRecord("c1", 1, map[string]float64{"spend": 5}),
		rawRecord("c1", 2, map[string]float64{"spend": 8}),
	}
	res := Validate(records, basicContract())
	assert.False(t, res.Passed)

	fatal := res.FatalViolations()
	require.Len(t, fatal, 1)
	assert.Equal(t, "impressions", fatal[0].Field)
	assert.Equal(t, "missing_column", fatal[0].Rule)
	assert.Equal(t, -1, fatal[0].Row)
}

func TestValidate_NullRowQuarantinedNotFatal(t *testing.T) {
	records := []core.RawRecord{
		rawRecord("c1", 1, map[string]float64{"impressions": 100, "spend": 5}),
		rawRecord("c1", 2, map[string]float64{"impressions": math.NaN(), "spend": 8}),
	}
	res := Validate(records, basicContract())
	assert.True(t, res.Passed, "row-level null must not abort the run")
	assert.True(t, res.Quarantined[1])
	assert.False(t, res.Quarantined[0])
	assert.Equal(t, 1, res.WarnCount())
}

func TestValidate_RangeViolationQuarantines(t *testing.T) {
	records := []core.RawRecord{
		rawRecord("c1", 1, map[string]float64{"impressions": -10, "spend": 5}),
	}
	res := Validate(records, basicContract())
	assert.True(t, res.Passed)
	assert.True(t, res.Quarantined[0])
}

func TestValidate_MonotonicityFatal(t *testing.T) {
	c := basicContract()
	c.MonotonicDates = true
	records := []core.RawRecord{
		rawRecord("c1", 5, map[string]float64{"impressions": 100, "spend": 5}),
		rawRecord("c1", 3, map[string]float64{"impressions": 90, "spend": 4}),
	}
	res := Validate(records, c)
	assert.False(t, res.Passed)
	require.Len(t, res.FatalViolations(), 1)
	assert.Equal(t, "monotonic", res.FatalViolations()[0].Rule)
}

func TestValidate_AllowedSet(t *testing.T) {
	c := &Contract{
		Name: "status_check",
		Fields: []FieldContract{
			{Name: "campaign_status", Type: TypeString, Nullable: true, Allowed: []string{"ACTIVE", "PAUSED"}},
		},
	}
	records := []core.RawRecord{
		{ClientID: "acme", CampaignID: "c1", Date: day(1), CampaignStatus: "DELETED"},
	}
	res := Validate(records, c)
	assert.True(t, res.Passed)
	assert.True(t, res.Quarantined[0])
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	records := []core.RawRecord{
		rawRecord("c1", 1, map[string]float64{"impressions": -1, "spend": 5}),
	}
	before := records[0].Metrics["impressions"]
	Validate(records, basicContract())
	assert.Equal(t, before, records[0].Metrics["impressions"])
}

func TestParse_ValidDocument(t *testing.T) {
	doc := `name: daily_export
monotonic_dates: true
fields:
  - name: campaign_id
    type: string
    required: true
  - name: impressions
    type: numeric
    required: true
    min: 0
`
	c, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "daily_export", c.Name)
	assert.True(t, c.MonotonicDates)
	require.Len(t, c.Fields, 2)
	require.NotNil(t, c.Fields[1].Min)
	assert.Equal(t, 0.0, *c.Fields[1].Min)
}

func TestParse_RejectsBadType(t *testing.T) {
	doc := `name: x
fields:
  - name: impressions
    type: integer
`
	_, err := Parse([]byte(doc))
	assert.Error(t, err)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	doc := `name: x
fields:
  - name: impressions
    type: numeric
    threshold: 5
`
	_, err := Parse([]byte(doc))
	assert.Error(t, err)
}
