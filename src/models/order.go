package models

import "time"

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderKind selects the validation path: immediate execution or a resting order.
type OrderKind string

const (
	OrderKindMarket  OrderKind = "MARKET"
	OrderKindPending OrderKind = "PENDING"
)

type OrderType string

const (
	OrderTypeMarketBuy  OrderType = "MARKET_BUY"
	OrderTypeMarketSell OrderType = "MARKET_SELL"
	OrderTypeBuyLimit   OrderType = "BUY_LIMIT"
	OrderTypeBuyStop    OrderType = "BUY_STOP"
	OrderTypeSellLimit  OrderType = "SELL_LIMIT"
	OrderTypeSellStop   OrderType = "SELL_STOP"
)

// IsPending reports whether the type rests on the book.
func (t OrderType) IsPending() bool {
	return t != OrderTypeMarketBuy && t != OrderTypeMarketSell
}

// MOrderRequest is the client's order as received by the gateway.
type MOrderRequest struct {
	Symbol     string    `json:"symbol"`
	Volume     float64   `json:"volume"`
	Direction  Direction `json:"direction"`
	Price      float64   `json:"price"`
	StopLoss   float64   `json:"sl"`
	TakeProfit float64   `json:"tp"`
	Kind       OrderKind `json:"-"`
}

// MTick is the current quote.
type MTick struct {
	Ask  float64 `json:"ask"`
	Bid  float64 `json:"bid"`
	Time int64   `json:"time"`
}

// MSymbolInfo carries the precision of a symbol.
type MSymbolInfo struct {
	Digits int     `json:"digits"`
	Point  float64 `json:"point"`
}

// MOrderDecision is either a rejection or a routable order.
type MOrderDecision struct {
	Rejected      bool      `json:"rejected"`
	Reason        string    `json:"reason,omitempty"`
	OrderType     OrderType `json:"order_type,omitempty"`
	AdjustedPrice float64   `json:"entry_price"`
	AdjustedSL    float64   `json:"sl"`
	AdjustedTP    float64   `json:"tp"`
}

// Rejected builds a rejection decision.
func Rejected(reason string) MOrderDecision {
	return MOrderDecision{Rejected: true, Reason: reason}
}

// Routed builds a routable decision.
func Routed(orderType OrderType, price, sl, tp float64) MOrderDecision {
	return MOrderDecision{OrderType: orderType, AdjustedPrice: price, AdjustedSL: sl, AdjustedTP: tp}
}

// MUpstreamOrder is what the terminal receives.
type MUpstreamOrder struct {
	Symbol      string    `json:"symbol"`
	Volume      float64   `json:"volume"`
	Type        OrderType `json:"type"`
	Pending     bool      `json:"pending"`
	Price       float64   `json:"price"`
	StopLoss    float64   `json:"sl"`
	TakeProfit  float64   `json:"tp"`
	Deviation   int       `json:"deviation"`
	TimeGTC     bool      `json:"type_time_gtc"`
	FillOrKill  bool      `json:"type_filling_fok"`
	Expiration  int64     `json:"expiration,omitempty"`
	Magic       int64     `json:"magic,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"-"`
}

// MOrderResult is the terminal's answer to order_send.
type MOrderResult struct {
	Retcode int     `json:"retcode"`
	Ticket  uint64  `json:"order"`
	Deal    uint64  `json:"deal"`
	Price   float64 `json:"price"`
	Comment string  `json:"comment"`
}

// MOrderResponse is returned to the client on success.
type MOrderResponse struct {
	Message    string    `json:"message"`
	Ticket     uint64    `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	OrderType  OrderType `json:"order_type"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"sl"`
	TakeProfit float64   `json:"tp"`
	Expiration int64     `json:"expiration,omitempty"`
}

// MOrderAudit is the journal record of one order request.
type MOrderAudit struct {
	Request   MOrderRequest `json:"request"`
	OrderType OrderType     `json:"order_type"`
	Outcome   string        `json:"outcome"` // placed | rejected | failed
	Reason    string        `json:"reason"`
	Ticket    uint64        `json:"ticket"`
	Retcode   int           `json:"retcode"`
	CreatedAt time.Time     `json:"created_at"`
}
