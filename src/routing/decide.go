package routing

import (
	"fmt"

	"mt-gateway/src/models"

	"github.com/shopspring/decimal"
)

// Rules are the broker distance limits applied by Decide.
type Rules struct {
	MaxPriceDrift         float64
	MinDistancePoints     float64
	MinStopDistancePoints float64
}

// RulesFromConfig copies the order limits out of the config.
func RulesFromConfig(cfg models.MOrdersConfig) Rules {
	return Rules{
		MaxPriceDrift:         cfg.MaxPriceDrift,
		MinDistancePoints:     cfg.MinDistancePoints,
		MinStopDistancePoints: cfg.MinStopDistancePoints,
	}
}

// -----------------------------------------------------------------------------

// Decide turns a request and the current market state into a rejection or a
// routable order. It performs no I/O and is deterministic. Prices are compared
// as decimals so that 1.2002 - 1.2000 is exactly 0.0002.
func Decide(req models.MOrderRequest, tick models.MTick, info models.MSymbolInfo, rules Rules) models.MOrderDecision {
	var ref float64
	switch req.Direction {
	case models.DirectionBuy:
		ref = tick.Ask
	case models.DirectionSell:
		ref = tick.Bid
	default:
		return models.Rejected("Invalid direction - use BUY/SELL")
	}

	if req.Kind == models.OrderKindPending {
		return decidePending(req, dec(ref), info, rules)
	}
	return decideMarket(req, dec(ref), info, rules)
}

// -----------------------------------------------------------------------------

func decideMarket(req models.MOrderRequest, ref decimal.Decimal, info models.MSymbolInfo, rules Rules) models.MOrderDecision {
	price, sl, tp := dec(req.Price), dec(req.StopLoss), dec(req.TakeProfit)
	digits := int32(info.Digits)

	if ref.Sub(price).Abs().GreaterThan(dec(rules.MaxPriceDrift)) {
		return models.Rejected(fmt.Sprintf("Price moved - market %s, requested %s",
			ref.StringFixed(digits), price.StringFixed(digits)))
	}

	orderType := models.OrderTypeMarketBuy
	if req.Direction == models.DirectionBuy {
		if sl.GreaterThanOrEqual(ref) {
			return models.Rejected("SL must be below market price for BUY order")
		}
		if tp.LessThanOrEqual(ref) {
			return models.Rejected("TP must be above market price for BUY order")
		}
	} else {
		orderType = models.OrderTypeMarketSell
		if sl.LessThanOrEqual(ref) {
			return models.Rejected("SL must be above market price for SELL order")
		}
		if tp.GreaterThanOrEqual(ref) {
			return models.Rejected("TP must be below market price for SELL order")
		}
	}

	return models.Routed(orderType,
		roundTo(ref, digits),
		roundTo(sl, digits),
		roundTo(tp, digits))
}

// -----------------------------------------------------------------------------

func decidePending(req models.MOrderRequest, ref decimal.Decimal, info models.MSymbolInfo, rules Rules) models.MOrderDecision {
	price := dec(req.Price)
	point := dec(info.Point)
	digits := int32(info.Digits)
	minDistance := dec(rules.MinDistancePoints).Mul(point)
	priceDiff := price.Sub(ref)

	var orderType models.OrderType
	if req.Direction == models.DirectionBuy {
		orderType = models.OrderTypeBuyLimit
		if price.GreaterThan(ref) {
			orderType = models.OrderTypeBuyStop
		}
	} else {
		orderType = models.OrderTypeSellLimit
		if price.LessThan(ref) {
			orderType = models.OrderTypeSellStop
		}
	}

	if (orderType == models.OrderTypeBuyStop || orderType == models.OrderTypeSellStop) &&
		priceDiff.Abs().LessThan(minDistance) {
		return models.Rejected(fmt.Sprintf("Entry too close to market price for %s order (min %s)",
			orderType, minDistance.String()))
	}

	entry := price.Round(digits)
	sl := dec(req.StopLoss).Round(digits)
	tp := dec(req.TakeProfit).Round(digits)
	stopDistance := dec(rules.MinStopDistancePoints).Mul(point)

	if req.Direction == models.DirectionBuy {
		if sl.GreaterThanOrEqual(entry.Sub(stopDistance)) {
			return models.Rejected("SL too close to entry price for BUY order")
		}
		if tp.LessThanOrEqual(entry.Add(stopDistance)) {
			return models.Rejected("TP too close to entry price for BUY order")
		}
	} else {
		if sl.LessThanOrEqual(entry.Add(stopDistance)) {
			return models.Rejected("SL too close to entry price for SELL order")
		}
		if tp.GreaterThanOrEqual(entry.Sub(stopDistance)) {
			return models.Rejected("TP too close to entry price for SELL order")
		}
	}

	return models.Routed(orderType, entry.InexactFloat64(), sl.InexactFloat64(), tp.InexactFloat64())
}

// -----------------------------------------------------------------------------

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func roundTo(v decimal.Decimal, digits int32) float64 {
	return v.Round(digits).InexactFloat64()
}
