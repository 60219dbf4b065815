package chart

import (
	"strings"

	"github.com/guptarohit/asciigraph"
)

// RenderTerminal plots spec as an ASCII line chart, one line per provider
// or a single totals line.
func RenderTerminal(spec *Spec, width, height int) string {
	if spec == nil {
		return "No usage data available"
	}
	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	var (
		series [][]float64
		colors []asciigraph.AnsiColor
		names  []string
	)
	if spec.Stacked() {
		for _, s := range spec.Series {
			series = append(series, toFloats(s.Values))
			colors = append(colors, paletteFor(s.Provider).Terminal)
			names = append(names, displayName(s.Provider))
		}
	} else {
		series = append(series, toFloats(spec.Totals))
		colors = append(colors, totalPalette.Terminal)
		names = append(names, "Total Tokens")
	}

	return asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption(caption(spec, names)),
	)
}

func caption(spec *Spec, names []string) string {
	return spec.Labels[0] + " to " + spec.Labels[len(spec.Labels)-1] + " (" + strings.Join(names, ", ") + ")"
}

func toFloats(values []int64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
