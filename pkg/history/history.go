// Package history holds the daily token-usage ledger and its persistence.
package history

import (
	"slices"
	"strings"

	"github.com/pario-ai/tokenash/pkg/models"
)

// History is a ledger of usage records, strictly ascending by day with no
// duplicate days. It is not safe for concurrent mutation.
type History struct {
	records []models.UsageRecord
}

// New returns a History built by merging records in order.
func New(records ...models.UsageRecord) *History {
	h := &History{}
	for _, r := range records {
		h.Merge(r)
	}
	return h
}

func compareDay(r models.UsageRecord, day string) int {
	return strings.Compare(r.Day, day)
}

// Merge folds rec into the ledger. For an existing day only the providers
// present in rec are overwritten; other providers keep their counts. A new
// day is inserted in order. Negative counts are ignored, and a new day with
// no usable counts is not inserted. Merge reports whether a new day was
// inserted.
func (h *History) Merge(rec models.UsageRecord) bool {
	counts := make(map[string]int64, len(rec.Providers))
	for p, n := range rec.Providers {
		if n >= 0 {
			counts[p] = n
		}
	}

	i, found := slices.BinarySearchFunc(h.records, rec.Day, compareDay)
	if found {
		existing := h.records[i]
		if existing.Providers == nil {
			existing.Providers = make(map[string]int64, len(counts))
		}
		for p, n := range counts {
			existing.Providers[p] = n
		}
		h.records[i] = existing
		return false
	}
	if len(counts) == 0 && len(rec.Providers) > 0 {
		return false
	}
	h.records = slices.Insert(h.records, i, models.UsageRecord{Day: rec.Day, Providers: counts})
	return true
}

// LastN returns the trailing n records in ascending day order, or all of
// them when fewer than n exist. n <= 0 yields an empty slice. The returned
// slice is a copy; its provider maps must be treated as read-only.
func (h *History) LastN(n int) []models.UsageRecord {
	if n <= 0 || len(h.records) == 0 {
		return []models.UsageRecord{}
	}
	start := 0
	if len(h.records) > n {
		start = len(h.records) - n
	}
	return slices.Clone(h.records[start:])
}

// Since returns the records whose day is on or after day, ascending.
func (h *History) Since(day string) []models.UsageRecord {
	i, _ := slices.BinarySearchFunc(h.records, day, compareDay)
	return slices.Clone(h.records[i:])
}

// Get returns the record for day.
func (h *History) Get(day string) (models.UsageRecord, bool) {
	i, found := slices.BinarySearchFunc(h.records, day, compareDay)
	if !found {
		return models.UsageRecord{}, false
	}
	return h.records[i], true
}

// Records returns every record in ascending day order.
func (h *History) Records() []models.UsageRecord {
	return slices.Clone(h.records)
}

// Len returns the number of days in the ledger.
func (h *History) Len() int {
	return len(h.records)
}
