package reconciler

import "mt-gateway/src/models"

// Classify turns a closing deal into a ClosedDeal. Opening deals return false.
// The closed position ran the opposite way to the deal that closed it.
func Classify(d models.MDeal) (models.MClosedDeal, bool) {
	if !d.IsClosing() {
		return models.MClosedDeal{}, false
	}

	reason := models.CloseReasonManual
	switch d.Reason {
	case models.DealReasonSL:
		reason = models.CloseReasonStopLoss
	case models.DealReasonTP:
		reason = models.CloseReasonTakeProfit
	}

	direction := models.DirectionBuy
	if d.Type == models.DealTypeBuy {
		direction = models.DirectionSell
	}

	entry := d.OpenPrice
	if entry == 0 {
		entry = d.Price
	}

	return models.MClosedDeal{
		Ticket:      d.Ticket,
		Symbol:      d.Symbol,
		Volume:      d.Volume,
		Profit:      d.Profit,
		EntryPrice:  entry,
		StopLoss:    d.StopLoss,
		TakeProfit:  d.TakeProfit,
		Direction:   direction,
		CloseReason: reason,
		OpenTime:    d.OpenTime,
		CloseTime:   d.Time,
	}, true
}
