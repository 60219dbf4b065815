package models

import (
	"fmt"
	"time"
)

// DayLayout is the calendar-day format used for ledger keys.
const DayLayout = "2006-01-02"

// UsageData is one day of token usage as reported by a single provider.
type UsageData struct {
	Day          string `json:"date"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
}

// UsageRecord is one day of token usage broken down by provider.
type UsageRecord struct {
	Day       string           `json:"date"`
	Providers map[string]int64 `json:"providers"`
}

// NewUsageRecord returns a record for day with an empty provider map.
func NewUsageRecord(day string) UsageRecord {
	return UsageRecord{Day: day, Providers: make(map[string]int64)}
}

// Total returns the sum of all provider counts.
func (r UsageRecord) Total() int64 {
	var total int64
	for _, n := range r.Providers {
		total += n
	}
	return total
}

// Clone returns a deep copy of r.
func (r UsageRecord) Clone() UsageRecord {
	out := UsageRecord{Day: r.Day, Providers: make(map[string]int64, len(r.Providers))}
	for k, v := range r.Providers {
		out.Providers[k] = v
	}
	return out
}

// DayOf formats t as a ledger day in its own location.
func DayOf(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay parses a ledger day.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return t, nil
}
