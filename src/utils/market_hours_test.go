package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFXSession(t *testing.T) {
	mh := NewMarketHours(nil)

	cases := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"saturday", time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC), false},
		{"sunday before open", time.Date(2024, 6, 16, 21, 59, 0, 0, time.UTC), false},
		{"sunday open", time.Date(2024, 6, 16, 22, 0, 0, 0, time.UTC), true},
		{"wednesday", time.Date(2024, 6, 19, 3, 0, 0, 0, time.UTC), true},
		{"friday before close", time.Date(2024, 6, 21, 21, 59, 0, 0, time.UTC), true},
		{"friday close", time.Date(2024, 6, 21, 22, 0, 0, 0, time.UTC), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.open, mh.IsOpen("EURUSD", c.at))
		})
	}
}

func TestExchangeCalendar(t *testing.T) {
	mh := NewMarketHours(nil)

	cal := mh.calendarFor("vod.l")
	assert.False(t, cal.FX)
	assert.False(t, mh.IsOpen("VOD.L", time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)))
	assert.True(t, mh.IsOpen("VOD.L", time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)))
}

func TestCalendarsAreCached(t *testing.T) {
	mh := NewMarketHours(nil)
	first := mh.calendarFor("GBPUSD")
	assert.Same(t, first, mh.calendarFor("gbpusd"))
	assert.Len(t, mh.Calendars, 1)
}

func TestAnyOpen(t *testing.T) {
	mh := NewMarketHours(nil)
	saturday := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 6, 17, 12, 0, 0, 0, time.UTC)

	assert.False(t, mh.AnyOpen([]string{"EURUSD", "VOD.L"}, saturday))
	assert.True(t, mh.AnyOpen([]string{"EURUSD", "VOD.L"}, monday))
	assert.False(t, mh.AnyOpen(nil, monday))
}
