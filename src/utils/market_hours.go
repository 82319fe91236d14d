package utils

import (
	"strings"
	"sync"
	"time"

	"mt-gateway/src/logger"
)

// -----------------------------------------------------------------------------

// MarketHours resolves calendars lazily per symbol and caches them.
type MarketHours struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketHours(l *logger.Logger) *MarketHours {
	if l == nil {
		l = logger.NewNop()
	}
	return &MarketHours{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
}

// -----------------------------------------------------------------------------

func (mh *MarketHours) calendarFor(symbol string) *TradingCalendar {
	symbol = strings.ToUpper(symbol)

	mh.mu.RLock()
	cal, ok := mh.Calendars[symbol]
	mh.mu.RUnlock()
	if ok {
		return cal
	}

	cal = GetCalendar(symbol, mh.Logger)

	mh.mu.Lock()
	defer mh.mu.Unlock()
	if existing, ok := mh.Calendars[symbol]; ok {
		return existing
	}
	mh.Calendars[symbol] = cal
	if cal.FX {
		mh.Logger.Debug("MarketHours: %s uses the FX session", symbol)
	} else {
		mh.Logger.Debug("MarketHours: %s uses an exchange calendar", symbol)
	}
	return cal
}

// -----------------------------------------------------------------------------

// IsOpen reports whether symbol trades at the given instant.
func (mh *MarketHours) IsOpen(symbol string, at time.Time) bool {
	return mh.calendarFor(symbol).IsOpenOnMinute(at)
}

// -----------------------------------------------------------------------------

// AnyOpen is true when at least one of the symbols trades at the given instant.
func (mh *MarketHours) AnyOpen(symbols []string, at time.Time) bool {
	for _, s := range symbols {
		if mh.IsOpen(s, at) {
			return true
		}
	}
	return false
}
