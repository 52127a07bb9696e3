package ingest

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exportHeader = "Date,Campaign ID,Campaign name,Campaign start date,Campaign end date,Campaign status,Campaign objective," +
	"Ad set ID,Ad set name,Ad ID,Ad name,Creative name," +
	"Impressions,Cost,Link clicks,Clicks (all),Actions," +
	"Cost per action (CPA),CPM (cost per 1000 impressions),Cost per 1000 people reached," +
	"CTR (link click-through rate),CTR (all),CPC (cost per link click),CPC (all)"

func TestParseExport(t *testing.T) {
	csv := exportHeader + "\n" +
		"2024-03-01,123.0,Promo | Traffic | M3,2024-02-01,2024-04-01,ACTIVE,LINK_CLICKS," +
		"456.0,AS1,789.0,Ad One,Creative A," +
		"\"1,000\",25.50,40,55,10," +
		"2.55,25.5,3.1,0.04,0.055,0.6375,0.4636\n"

	records, err := ParseExport(strings.NewReader(csv), "acme")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "acme", rec.ClientID)
	assert.Equal(t, 0, rec.Row)
	assert.Equal(t, "2024-03-01", rec.Date.Format("2006-01-02"))
	assert.Equal(t, "123", rec.CampaignID, "spreadsheet .0 suffix must be stripped")
	assert.Equal(t, "456", rec.AdsetID)
	assert.Equal(t, "789", rec.AdID)
	assert.Equal(t, "Promo | Traffic | M3", rec.CampaignName)
	assert.Equal(t, "ACTIVE", rec.CampaignStatus)
	require.NotNil(t, rec.CampaignStart)
	assert.Equal(t, "2024-02-01", rec.CampaignStart.Format("2006-01-02"))

	assert.Equal(t, 1000.0, rec.Metrics["impressions"], "thousands separator must be stripped")
	assert.Equal(t, 25.50, rec.Metrics["spend"])
	assert.Equal(t, 40.0, rec.Metrics["clicks"])
	assert.Equal(t, 10.0, rec.Metrics["actions"])
}

func TestParseExportMissingColumnFailsFast(t *testing.T) {
	header := strings.Replace(exportHeader, "Impressions,", "", 1)
	_, err := ParseExport(strings.NewReader(header+"\n"), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required export columns")
	assert.Contains(t, err.Error(), "Impressions")
}

func TestParseExportTruncatedRowIsError(t *testing.T) {
	csv := exportHeader + "\n" + "2024-03-01,c1,Promo\n"

	_, err := ParseExport(strings.NewReader(csv), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read export row 0")
}

func TestParseExportEmptyMetricIsNaN(t *testing.T) {
	csv := exportHeader + "\n" +
		"2024-03-01,1,C,,,ACTIVE,TRAFFIC,2,AS,3,Ad,Cr," +
		",not-a-number,40,55,10,,,,,,,\n"

	records, err := ParseExport(strings.NewReader(csv), "acme")
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.True(t, math.IsNaN(records[0].Metrics["impressions"]), "empty cell must be NaN, not zero")
	assert.True(t, math.IsNaN(records[0].Metrics["spend"]), "unparsable cell must be NaN")
	assert.Equal(t, 40.0, records[0].Metrics["clicks"])
	assert.Nil(t, records[0].CampaignStart)
}
