package output

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Ago renders t relative to now, e.g. "3 hours ago". The zero time renders
// as "never".
func Ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// Count renders n with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}

// Bytes renders a byte size, e.g. "4.2 MB".
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Percent renders a 0-1 ratio as a percentage with one decimal.
func Percent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// Minutes renders a duration in seconds as minutes with one decimal.
func Minutes(seconds float64) string {
	return fmt.Sprintf("%.1f min", seconds/60)
}

// RiskStyled colors a percentage by how many sessions were high risk.
func RiskStyled(ratio float64) string {
	s := Percent(ratio)
	switch {
	case ratio >= 0.5:
		return StyleError.Render(s)
	case ratio >= 0.2:
		return StyleWarning.Render(s)
	default:
		return StyleSuccess.Render(s)
	}
}
