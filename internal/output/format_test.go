package output

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgo(t *testing.T) {
	assert.Equal(t, "never", Ago(time.Time{}))
	assert.Equal(t, "2 hours ago", Ago(time.Now().Add(-2*time.Hour)))
}

func TestCount(t *testing.T) {
	assert.Equal(t, "0", Count(0))
	assert.Equal(t, "1,234,567", Count(1234567))
}

func TestBytes(t *testing.T) {
	assert.Equal(t, "0 B", Bytes(-5))
	assert.Equal(t, "4.2 kB", Bytes(4200))
}

func TestPercentAndMinutes(t *testing.T) {
	assert.Equal(t, "33.3%", Percent(1.0/3))
	assert.Equal(t, "0.0%", Percent(0))
	assert.Equal(t, "1.5 min", Minutes(90))
}

func TestRiskStyled_NoColor(t *testing.T) {
	SetNoColor(true)
	defer SetNoColor(false)

	assert.Equal(t, "50.0%", RiskStyled(0.5))
	assert.Equal(t, "10.0%", RiskStyled(0.1))
}

func TestColorSupported_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorSupported(os.Stdout))
}

func TestColorSupported_RegularFile(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	assert.False(t, ColorSupported(f))
}
