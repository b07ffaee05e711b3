package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/thermo-dash/internal/logic"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// TempColor returns the colour for a temperature relative to the threshold.
func TempColor(v, threshold float64) lipgloss.Color {
	switch {
	case v >= threshold:
		return colorCrit
	case v >= threshold-1:
		return colorHigh
	case v >= threshold-5:
		return colorWarn
	default:
		return colorOk
	}
}

// RenderSparkline renders the newest samples that fit in width. Each block
// is coloured against the threshold captured with its sample. Unused columns
// on the left are drawn as a dim rule.
func RenderSparkline(win []logic.Sample, width int) string {
	if width <= 0 {
		return ""
	}
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	if len(win) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}
	if len(win) > width {
		win = win[len(win)-width:]
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range win {
		lo = math.Min(lo, s.Temperature)
		hi = math.Max(hi, s.Temperature)
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	for i := 0; i < width-len(win); i++ {
		sb.WriteString(dim.Render("╌"))
	}
	for _, s := range win {
		norm := math.Max(0, math.Min(1, (s.Temperature-lo)/span))
		idx := int(norm * 7)
		style := lipgloss.NewStyle().Foreground(TempColor(s.Temperature, s.Threshold))
		if s.Exceeds() {
			style = style.Bold(true)
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}
	return sb.String()
}
