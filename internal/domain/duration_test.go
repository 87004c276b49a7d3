package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDuration(t *testing.T) {
	base := 2*time.Hour + 15*time.Minute

	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"absolute hours", "3", 3 * time.Hour},
		{"absolute hours and minutes", "01:30", time.Hour + 30*time.Minute},
		{"minutes are not clamped", "1:90", 2*time.Hour + 30*time.Minute},
		{"relative increase", "+0:45", 3 * time.Hour},
		{"relative decrease", "-1:15", time.Hour},
		{"relative hours only", "+2", 4*time.Hour + 15*time.Minute},
		{"surrounding whitespace", " 2:05 ", 2*time.Hour + 5*time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyDuration(tt.input, base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyDurationSignSemantics(t *testing.T) {
	for _, base := range []time.Duration{0, 17 * time.Minute, 5*time.Hour + 3*time.Minute} {
		plus, err := ApplyDuration("+1:20", base)
		require.NoError(t, err)
		assert.Equal(t, base+80*time.Minute, plus)

		absolute, err := ApplyDuration("1:20", base)
		require.NoError(t, err)
		assert.Equal(t, 80*time.Minute, absolute)
	}

	minus, err := ApplyDuration("-1:20", 3*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Minute, minus)
}

func TestApplyDurationRejectsMalformed(t *testing.T) {
	for _, input := range []string{
		"", "1:2:3", "a", "1:b", "1.5", "+", "1:-5", "1:+5",
		"2562048", "6000000", "+2562048", "99999999999999999999",
		"0:153722867280912931", "2562047:59999",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ApplyDuration(input, time.Hour)
			var fe *FormatError
			require.True(t, errors.As(err, &fe), "expected FormatError, got %v", err)
		})
	}
}

func TestApplyDurationRejectsNegativeResult(t *testing.T) {
	_, err := ApplyDuration("-2", time.Hour)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
}

func TestApplyDurationLargestValue(t *testing.T) {
	d, err := ApplyDuration("2562047", 0)
	require.NoError(t, err)
	assert.Equal(t, 2562047*time.Hour, d)

	_, err = ApplyDuration("+2562047", time.Hour)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatDuration(0))
	assert.Equal(t, "01:05", FormatDuration(65*time.Minute+59*time.Second))
	assert.Equal(t, "26:00", FormatDuration(26*time.Hour))
}

func TestHours(t *testing.T) {
	assert.Equal(t, 1.5, Hours(90*time.Minute))
	assert.Equal(t, 0.33, Hours(20*time.Minute))
	assert.Equal(t, 0.02, Hours(time.Minute))
}
