// Package chart turns a window of the usage ledger into a chart description
// and renders it as a QuickChart URL, a PNG, markdown, or terminal output.
package chart

import (
	"fmt"
	"slices"

	"github.com/pario-ai/tokenash/pkg/models"
)

// DefaultTitle is used when no chart title is configured.
const DefaultTitle = "🔥 Token Consumption (Last 30 Days)"

// Kind is the chart type.
type Kind string

const (
	KindBar  Kind = "bar"
	KindLine Kind = "line"
)

// Series is one provider's per-day counts aligned with Spec.Labels.
type Series struct {
	Provider string
	Values   []int64
}

// Summary holds scalars computed over the per-day totals.
type Summary struct {
	Sum  int64
	Mean int64
	Max  int64
}

// Spec is a renderer-agnostic chart description.
type Spec struct {
	Kind   Kind
	Title  string
	Labels []string
	// Series has one entry per provider seen in the window, ordered by first
	// appearance. Empty when no record carries a provider breakdown.
	Series []Series
	// Totals is the per-day total, plotted only when Series is empty.
	Totals  []int64
	Summary Summary
}

// Stacked reports whether the chart stacks provider series.
func (s *Spec) Stacked() bool {
	return len(s.Series) > 0
}

// Build synthesizes a Spec from window. An empty window yields nil, the
// "no data" result callers check before rendering.
func Build(window []models.UsageRecord, title string) *Spec {
	if len(window) == 0 {
		return nil
	}
	if title == "" {
		title = DefaultTitle
	}

	spec := &Spec{
		Labels: make([]string, 0, len(window)),
		Totals: make([]int64, 0, len(window)),
	}
	index := make(map[string]int)

	for i, rec := range window {
		spec.Labels = append(spec.Labels, dayLabel(rec.Day))
		spec.Totals = append(spec.Totals, rec.Total())

		providers := make([]string, 0, len(rec.Providers))
		for p := range rec.Providers {
			providers = append(providers, p)
		}
		slices.Sort(providers)

		for _, p := range providers {
			j, ok := index[p]
			if !ok {
				j = len(spec.Series)
				index[p] = j
				spec.Series = append(spec.Series, Series{Provider: p, Values: make([]int64, len(window))})
			}
			spec.Series[j].Values[i] = rec.Providers[p]
		}
	}

	spec.Kind = KindLine
	if spec.Stacked() {
		spec.Kind = KindBar
	}
	spec.Summary = summarize(spec.Totals)
	spec.Title = fmt.Sprintf("%s\nTotal: %s | Avg: %s/day | Peak: %s",
		title,
		FormatTokens(spec.Summary.Sum),
		FormatTokens(spec.Summary.Mean),
		FormatTokens(spec.Summary.Max))
	return spec
}

// summarize computes the sum, floored mean and max of totals. Integer
// arithmetic keeps large counts exact.
func summarize(totals []int64) Summary {
	var s Summary
	if len(totals) == 0 {
		return s
	}
	for _, v := range totals {
		s.Sum += v
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = s.Sum / int64(len(totals))
	return s
}

// dayLabel formats a ledger day as MM/DD. Unparsable days are shown as-is.
func dayLabel(day string) string {
	t, err := models.ParseDay(day)
	if err != nil {
		return day
	}
	return t.Format("01/02")
}

// FormatTokens renders a token count compactly: 1.5M, 12K, 999.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.0fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
