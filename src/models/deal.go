package models

// Deal entry and reason codes as reported by the terminal.
const (
	DealEntryIn    = 0
	DealEntryOut   = 1
	DealEntryInOut = 2
	DealEntryOutBy = 3

	DealTypeBuy  = 0
	DealTypeSell = 1

	DealReasonSL = 4
	DealReasonTP = 5
)

type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "STOP_LOSS"
	CloseReasonTakeProfit CloseReason = "TAKE_PROFIT"
	CloseReasonManual     CloseReason = "MANUAL"
)

// MDeal is a raw history deal from the terminal.
type MDeal struct {
	Ticket     uint64  `json:"ticket"`
	Order      uint64  `json:"order"`
	PositionID uint64  `json:"position_id"`
	Symbol     string  `json:"symbol"`
	Type       int     `json:"type"`
	Entry      int     `json:"entry"`
	Reason     int     `json:"reason"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	OpenPrice  float64 `json:"price_open"`
	Profit     float64 `json:"profit"`
	StopLoss   float64 `json:"sl"`
	TakeProfit float64 `json:"tp"`
	OpenTime   int64   `json:"time_open"`
	Time       int64   `json:"time"`
}

// IsClosing reports whether the deal closes (part of) a position.
func (d MDeal) IsClosing() bool {
	return d.Entry == DealEntryOut || d.Entry == DealEntryInOut || d.Entry == DealEntryOutBy
}

// MClosedDeal is a classified closing deal.
type MClosedDeal struct {
	Ticket      uint64      `json:"ticket"`
	Symbol      string      `json:"symbol"`
	Volume      float64     `json:"volume"`
	Profit      float64     `json:"profit"`
	EntryPrice  float64     `json:"entry_price"`
	StopLoss    float64     `json:"sl"`
	TakeProfit  float64     `json:"tp"`
	Direction   Direction   `json:"direction"`
	CloseReason CloseReason `json:"close_reason"`
	OpenTime    int64       `json:"open_time"`
	CloseTime   int64       `json:"close_time"`
}

// MCloseStats are running closure counters.
type MCloseStats struct {
	Total           int `json:"total"`
	StopLossCount   int `json:"stoploss"`
	TakeProfitCount int `json:"takeprofit"`
}

// MStatsSnapshot is the statistics view attached to each closure message.
type MStatsSnapshot struct {
	Since    int64                  `json:"since"`
	Global   MCloseStats            `json:"global"`
	BySymbol map[string]MCloseStats `json:"by_symbol"`
}
