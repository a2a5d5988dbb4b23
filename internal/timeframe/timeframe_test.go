package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/timeframe"
)

func TestParseRange(t *testing.T) {
	t.Run("date-only end widens to end of day", func(t *testing.T) {
		frame, err := timeframe.ParseRange("2026-03-01", "2026-03-01")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), frame.From)
		assert.Equal(t, time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC), frame.To)
	})

	t.Run("rfc3339 bounds are kept as given", func(t *testing.T) {
		frame, err := timeframe.ParseRange("2026-03-01T08:00:00Z", "2026-03-01T09:30:00Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), frame.From)
		assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), frame.To)
	})

	t.Run("start after end fails", func(t *testing.T) {
		_, err := timeframe.ParseRange("2026-03-02", "2026-03-01")
		require.Error(t, err)
	})

	t.Run("garbage input fails", func(t *testing.T) {
		_, err := timeframe.ParseRange("yesterday", "2026-03-01")
		require.Error(t, err)
		_, err = timeframe.ParseRange("2026-03-01", "03/02/2026")
		require.Error(t, err)
	})
}

func TestMidpointAndDays(t *testing.T) {
	frame, err := timeframe.New(
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), frame.Midpoint())
	assert.Equal(t, 10, frame.Days())

	short, err := timeframe.New(
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, short.Days())
}

func TestSQLiteBucketExpression(t *testing.T) {
	cases := []struct {
		bucket timeframe.BucketSize
		want   string
	}{
		{timeframe.BucketDay, "strftime('%Y-%m-%d', visit_time)"},
		{timeframe.BucketWeek, "strftime('%Y-W%W', visit_time)"},
		{timeframe.BucketMonth, "strftime('%Y-%m', visit_time)"},
	}
	for _, tc := range cases {
		expr, err := timeframe.SQLiteBucketExpression("visit_time", tc.bucket)
		require.NoError(t, err)
		assert.Equal(t, tc.want, expr)
	}

	_, err := timeframe.SQLiteBucketExpression("visit_time", timeframe.BucketSize("hour"))
	require.Error(t, err)
}
