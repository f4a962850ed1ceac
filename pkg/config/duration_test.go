package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m30s":      90 * time.Second,
		"PT5S":       5 * time.Second,
		"PT1.5S":     1500 * time.Millisecond,
		"P2D":        48 * time.Hour,
		"P1DT2H":     26 * time.Hour,
		"-PT10M":     -10 * time.Minute,
		"10 seconds": 10 * time.Second,
		"2 days":     48 * time.Hour,
		"500":        500 * time.Millisecond,
		"250 ms":     250 * time.Millisecond,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "P", "PT", "P1Y", "ten seconds", "5 fortnights"} {
		_, err := ParseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePeriod(t *testing.T) {
	cases := map[string]Period{
		"P5D":      {Days: 5},
		"P1Y2M3D":  {Years: 1, Months: 2, Days: 3},
		"P2W":      {Days: 14},
		"-P1M":     {Months: -1},
		"3 months": {Months: 3},
		"7":        {Days: 7},
	}
	for in, want := range cases {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "P", "PT5S", "1.5 days"} {
		_, err := ParsePeriod(bad)
		assert.Error(t, err, bad)
	}
}

func TestPeriodAddTo(t *testing.T) {
	start := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	got := Period{Months: 1, Days: 1}.AddTo(start)
	assert.Equal(t, start.AddDate(0, 1, 1), got)
	assert.Equal(t, "P1M1D", Period{Months: 1, Days: 1}.String())
}
