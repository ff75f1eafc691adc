package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type vendorTimestamp struct {
	seconds int64
}

func (v vendorTimestamp) ToTime() time.Time {
	return time.Unix(v.seconds, 0)
}

func TestNormalize(t *testing.T) {
	want := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input any
	}{
		{"native", want},
		{"native pointer", &want},
		{"native other zone", want.In(time.FixedZone("EST", -5*3600))},
		{"iso string", "2026-03-14T18:30:00Z"},
		{"iso string with offset", "2026-03-14T13:30:00-05:00"},
		{"iso string fractional", "2026-03-14T18:30:00.000Z"},
		{"vendor wrapper", vendorTimestamp{seconds: want.Unix()}},
		{"mongo datetime", primitive.NewDateTimeFromTime(want)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.input)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNormalizeFailures(t *testing.T) {
	_, err := Normalize(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Normalize("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Normalize(time.Time{})
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Normalize("next tuesday")
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Normalize(42)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestParseISODateOnly(t *testing.T) {
	got, err := ParseISO("2026-11-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2026, 10, 18, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), StartOfDay(in))
}
