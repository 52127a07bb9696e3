package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"adpulse/core"
)

// Deduper drops exact duplicate observations: same client, date, campaign,
// ad set and ad. Re-pulls within a single export frequently overlap, so the
// first occurrence wins and later copies are discarded. A Deduper is scoped
// to one run's input; sharing one across runs would swallow the rows of any
// repeated input.
type Deduper struct {
	cache *lru.Cache[string, struct{}]
}

// NewDeduper creates a deduper with the given LRU capacity.
func NewDeduper(size int) (*Deduper, error) {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &Deduper{cache: cache}, nil
}

// Deduplicate returns the records with duplicates removed, preserving input
// order.
func (d *Deduper) Deduplicate(records []core.RawRecord) []core.RawRecord {
	out := make([]core.RawRecord, 0, len(records))
	for i := range records {
		key := recordKey(&records[i])
		if _, seen := d.cache.Get(key); seen {
			continue
		}
		d.cache.Add(key, struct{}{})
		out = append(out, records[i])
	}
	return out
}

func recordKey(rec *core.RawRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s",
		rec.ClientID, rec.Date.Format("2006-01-02"), rec.CampaignID, rec.AdsetID, rec.AdID)
	return hex.EncodeToString(h.Sum(nil))
}
