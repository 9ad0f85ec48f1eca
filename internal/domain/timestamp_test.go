package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp_Formats(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2024-03-05T14:30:00Z", want},
		{"rfc3339 offset", "2024-03-05T16:30:00+02:00", want},
		{"iso no zone", "2024-03-05T14:30:00", want},
		{"space separated", "2024-03-05 14:30:00", want},
		{"minutes only", "2024-03-05 14:30", want},
		{"rfc1123z", "Tue, 05 Mar 2024 14:30:00 +0000", want},
		{"dotted european", "05.03.2024 14:30", want},
		{"slashed european", "05/03/2024 14:30", want},
		{"date only", "2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"unix seconds", "1709649000", want},
		{"unix millis", "1709649000000", want},
		{"padded", "  2024-03-05T14:30:00Z ", want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := ParseTimestamp(tt.in)
			got, ok := ts.Time()
			require.True(t, ok, "expected %q to parse", tt.in)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseTimestamp_Unparseable(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "2024-13-45", "05/03"} {
		ts := ParseTimestamp(in)
		assert.False(t, ts.Valid(), "expected %q to be unparseable", in)
	}
}

func TestParseTimestampWith_OrderMatters(t *testing.T) {
	first := TimeParser{Name: "fixed", Parse: func(string) (time.Time, error) {
		return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), nil
	}}
	ts := ParseTimestampWith([]TimeParser{first, epochParser}, "1709649000")
	got, ok := ts.Time()
	require.True(t, ok)
	assert.Equal(t, 2000, got.Year())
}

func TestTimestamp_Before(t *testing.T) {
	a := ParsedTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b := ParsedTime(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.False(t, a.Before(Timestamp{}))
	assert.False(t, Timestamp{}.Before(b))
}
