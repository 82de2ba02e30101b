package output

import (
	"fmt"
	"strings"
)

// ruleWidth is the length of the rule under section headers.
var ruleWidth = 66

// SetWidth sizes section rules for a terminal of the given column count.
// Widths under 40 columns are ignored.
func SetWidth(columns int) {
	if columns >= 40 {
		ruleWidth = columns - 14
	}
}

// ScoreBar renders a 0-100 quality score as a bar, coloured by the same
// bands as the quality levels.
// Example: "████████░░ 80/100"
func ScoreBar(score, width int) string {
	if width <= 0 {
		width = 20
	}
	score = min(max(score, 0), 100)
	filled := score * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	style := StyleError
	switch {
	case score >= 70:
		style = StyleSuccess
	case score >= 30:
		style = StyleWarning
	}
	return fmt.Sprintf("%s %s", style.Render(bar), StyleMuted.Render(fmt.Sprintf("%d/100", score)))
}

// TrendArrow returns a styled trend indicator for a delta value: an up
// arrow for positive, down for negative and a dash for zero. Green when the
// move is an improvement.
func TrendArrow(delta float64, higherIsBetter bool) string {
	return trendArrow(delta, higherIsBetter, "%+.1f")
}

// TrendArrowPercent is TrendArrow for deltas measured in percentage points.
func TrendArrowPercent(delta float64, higherIsBetter bool) string {
	return trendArrow(delta, higherIsBetter, "%+.0f%%")
}

func trendArrow(delta float64, higherIsBetter bool, format string) string {
	if delta == 0 {
		return StyleMuted.Render("─")
	}
	arrow := "▼ " + fmt.Sprintf(format, delta)
	if delta > 0 {
		arrow = "▲ " + fmt.Sprintf(format, delta)
	}
	if (delta > 0) == higherIsBetter {
		return StyleSuccess.Render(arrow)
	}
	return StyleError.Render(arrow)
}

// Section returns a styled section header with a horizontal rule.
func Section(title string) string {
	header := StyleHeader.Render(title)
	rule := StyleMuted.Render(strings.Repeat("─", ruleWidth))
	return fmt.Sprintf("\n %s\n %s", header, rule)
}
