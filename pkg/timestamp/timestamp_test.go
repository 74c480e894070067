package timestamp

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMillis(t *testing.T) {
	tests := []struct {
		d  time.Duration
		ms float64
	}{
		{0, 0},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 1.5},
		{104 * time.Millisecond, 104},
		{-2 * time.Millisecond, -2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ms, Millis(tt.d))
		assert.Equal(t, tt.d, FromMillis(tt.ms))
	}
}

func TestFromMillis_RoundsAndSaturates(t *testing.T) {
	assert.Equal(t, time.Duration(1), FromMillis(0.0000006))
	assert.Equal(t, time.Duration(0), FromMillis(math.NaN()))
	assert.Equal(t, time.Duration(math.MaxInt64), FromMillis(1e300))
	assert.Equal(t, time.Duration(math.MinInt64), FromMillis(-1e300))
}

func TestUnixMs(t *testing.T) {
	assert.Equal(t, int64(0), ToUnixMs(time.Time{}))
	assert.True(t, FromUnixMs(0).IsZero())

	ts := time.Date(2024, 10, 8, 14, 30, 0, 123_000_000, time.UTC)
	ms := ToUnixMs(ts)
	assert.Equal(t, int64(1728397800123), ms)
	assert.True(t, ts.Equal(FromUnixMs(ms)))
	assert.Equal(t, time.UTC, FromUnixMs(ms).Location())
}

func TestBucket(t *testing.T) {
	ts := time.Date(2024, 10, 8, 14, 59, 59, 0, time.UTC)
	assert.Equal(t, "2024/10/08/14", Bucket(ts))

	east := time.FixedZone("UTC+2", 2*60*60)
	assert.Equal(t, "2024/10/08/12", Bucket(time.Date(2024, 10, 8, 14, 0, 0, 0, east)))
}
