package models

import (
	"fmt"
	"strings"
)

// Timeframe is the bar period as named by the terminal (M1, H1, ...).
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
	TimeframeW1  Timeframe = "W1"
	TimeframeMN1 Timeframe = "MN1"
)

// AllTimeframes lists the supported timeframes from shortest to longest.
var AllTimeframes = []Timeframe{
	TimeframeM1, TimeframeM5, TimeframeM15, TimeframeM30,
	TimeframeH1, TimeframeH4, TimeframeD1, TimeframeW1, TimeframeMN1,
}

var timeframeSeconds = map[Timeframe]int64{
	TimeframeM1:  60,
	TimeframeM5:  5 * 60,
	TimeframeM15: 15 * 60,
	TimeframeM30: 30 * 60,
	TimeframeH1:  60 * 60,
	TimeframeH4:  4 * 60 * 60,
	TimeframeD1:  24 * 60 * 60,
	TimeframeW1:  7 * 24 * 60 * 60,
	TimeframeMN1: 30 * 24 * 60 * 60,
}

// ParseTimeframe accepts the plain names and the PERIOD_ prefixed aliases
// clients historically send (PERIOD_M1, PERIOD_1D).
func ParseTimeframe(s string) (Timeframe, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "PERIOD_")
	if name == "1D" {
		name = "D1"
	}
	tf := Timeframe(name)
	if _, ok := timeframeSeconds[tf]; !ok {
		return "", fmt.Errorf("invalid timeframe: %s", s)
	}
	return tf, nil
}

// Seconds returns the nominal bar length.
func (tf Timeframe) Seconds() int64 {
	return timeframeSeconds[tf]
}

// Period is the label used on the wire ("PERIOD_M1").
func (tf Timeframe) Period() string {
	return "PERIOD_" + string(tf)
}

// MBar is one closed OHLC bar. CloseTime is UTC unix seconds, already
// corrected for the terminal's clock offset.
type MBar struct {
	Symbol    string    `json:"name"`
	Timeframe Timeframe `json:"-"`
	Period    string    `json:"period"`
	CloseTime int64     `json:"closeTime"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
}
