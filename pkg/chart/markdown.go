package chart

import (
	"fmt"
	"strings"
	"time"
)

// NoDataMarkdown is emitted in place of a chart when the window is empty.
const NoDataMarkdown = "<!-- TokenAsh: No usage data available -->\n"

// Markdown renders the README snippet for spec. days is the configured
// window size shown in the summary line.
func Markdown(spec *Spec, chartURL string, days int, now time.Time) string {
	if spec == nil {
		return NoDataMarkdown
	}

	lines := []string{
		"## 🔥 Token Consumption",
		"",
		fmt.Sprintf("![Token Usage Chart](%s)", chartURL),
		"",
		fmt.Sprintf("> **Total (%dd):** %s tokens | **Daily Avg:** %s tokens",
			days, FormatTokens(spec.Summary.Sum), FormatTokens(spec.Summary.Mean)),
		"",
		fmt.Sprintf("<sub>🔄 Updated: %s UTC | Generated by TokenAsh</sub>",
			now.UTC().Format("2006-01-02 15:04")),
		"",
	}
	return strings.Join(lines, "\n")
}
