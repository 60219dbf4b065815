package chart

import "github.com/guptarohit/asciigraph"

// palette is the fill/border color pair of a provider's dataset.
type palette struct {
	Background string
	Border     string
	Terminal   asciigraph.AnsiColor
}

var providerPalettes = map[string]palette{
	"openai": {
		Background: "rgba(16, 163, 127, 0.7)",
		Border:     "rgba(16, 163, 127, 1)",
		Terminal:   asciigraph.Green,
	},
	"anthropic": {
		Background: "rgba(204, 131, 75, 0.7)",
		Border:     "rgba(204, 131, 75, 1)",
		Terminal:   asciigraph.DarkOrange,
	},
}

var fallbackPalette = palette{
	Background: "rgba(100, 100, 100, 0.7)",
	Border:     "rgba(100, 100, 100, 1)",
	Terminal:   asciigraph.Gray,
}

var totalPalette = palette{
	Background: "rgba(255, 99, 132, 0.2)",
	Border:     "rgba(255, 99, 132, 1)",
	Terminal:   asciigraph.Red,
}

func paletteFor(provider string) palette {
	if p, ok := providerPalettes[provider]; ok {
		return p
	}
	return fallbackPalette
}
