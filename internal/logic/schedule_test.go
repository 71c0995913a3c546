package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextWeekday(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"monday", time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC), time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC)},
		{"friday", time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		{"saturday", time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
		{"sunday", time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextWeekday(tt.now, time.UTC)))
		})
	}

	// 02:00 UTC on Saturday is still Friday evening in EST.
	got := NextWeekday(time.Date(2026, 10, 17, 2, 0, 0, 0, time.UTC), est)
	assert.True(t, time.Date(2026, 10, 19, 0, 0, 0, 0, est).Equal(got))
	assert.Equal(t, est, got.Location())
}
