package utils

import (
	"strings"
	"time"

	"mt-gateway/src/logger"

	"github.com/scmhub/calendar"
)

// micBySuffix maps exchange suffixes (ISO 10383 MIC) as used by broker
// symbol names for listed instruments.
var micBySuffix = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".BR": "xbru",
	".MI": "xmil",
	".MC": "xmad",
	".ST": "xsto",
	".CO": "xcse",
	".HE": "xhel",
	".VI": "xwbo",
	".SW": "xswx",
	".TO": "xtse",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
	".US": "xnys",
}

// -----------------------------------------------------------------------------

// TradingCalendar answers whether one instrument trades at a given moment.
// FX-style symbols follow the 24/5 session, listed instruments their
// exchange calendar.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	FX       bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

func GetCalendar(symbol string, log *logger.Logger) *TradingCalendar {
	symbol = strings.ToUpper(symbol)

	mic := ""
	for suffix, code := range micBySuffix {
		if strings.HasSuffix(symbol, suffix) {
			mic = code
			break
		}
	}
	if mic == "" {
		// Currency pairs, metals and CFDs quoted by the broker around the clock.
		return &TradingCalendar{FX: true, Timezone: time.UTC}
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		if log != nil {
			log.Warning("No calendar for MIC '%s' (%s), using the FX session", mic, symbol)
		}
		return &TradingCalendar{FX: true, Timezone: time.UTC}
	}
	return &TradingCalendar{Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}
	if tc.FX {
		return date.Weekday() != time.Saturday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at t.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.FX {
		return fxSessionOpen(t.UTC())
	}
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}
	return tc.Calendar.IsOpen(t)
}

// fxSessionOpen is true from Sunday 22:00 UTC to Friday 22:00 UTC.
func fxSessionOpen(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return t.Hour() >= 22
	case time.Friday:
		return t.Hour() < 22
	default:
		return true
	}
}
