package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"mt-gateway/src/models"

	"github.com/shopspring/decimal"
)

func price(v float64, digits int) string {
	return decimal.NewFromFloat(v).StringFixed(int32(digits))
}

// -----------------------------------------------------------------------------

func FormatOrderPlaced(resp models.MOrderResponse, volume float64, digits int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎯 *Order Placed*\n")
	fmt.Fprintf(&sb, "• Ticket: #%d\n", resp.Ticket)
	fmt.Fprintf(&sb, "• Symbol: %s\n", resp.Symbol)
	fmt.Fprintf(&sb, "• Direction: %s\n", resp.Direction)
	fmt.Fprintf(&sb, "• Type: %s\n", resp.OrderType)
	fmt.Fprintf(&sb, "• Volume: %g\n", volume)
	fmt.Fprintf(&sb, "• Price: %s\n", price(resp.EntryPrice, digits))
	fmt.Fprintf(&sb, "• SL: %s\n", price(resp.StopLoss, digits))
	fmt.Fprintf(&sb, "• TP: %s", price(resp.TakeProfit, digits))
	if resp.Expiration != 0 {
		fmt.Fprintf(&sb, "\n• Expires: %s", time.Unix(resp.Expiration, 0).UTC().Format("2006-01-02 15:04 UTC"))
	}
	return sb.String()
}

// -----------------------------------------------------------------------------

func FormatOrderRejected(req models.MOrderRequest, reason string) string {
	return fmt.Sprintf("⚠️ *Order Rejected*\n"+
		"• Symbol: %s\n"+
		"• Direction: %s\n"+
		"• Volume: %g\n"+
		"• Price: %g\n"+
		"• SL: %g\n"+
		"• TP: %g\n"+
		"• Reason: %s",
		req.Symbol, req.Direction, req.Volume, req.Price, req.StopLoss, req.TakeProfit, reason)
}

// -----------------------------------------------------------------------------

// RiskReward renders reward/risk to one decimal as "R:1", or "0:1" without risk.
func RiskReward(entry, sl, tp float64) string {
	e, s, t := decimal.NewFromFloat(entry), decimal.NewFromFloat(sl), decimal.NewFromFloat(tp)
	risk := e.Sub(s).Abs()
	if risk.IsZero() {
		return "0:1"
	}
	reward := t.Sub(e).Abs()
	return reward.Div(risk).Round(1).StringFixed(1) + ":1"
}

// Duration renders the holding time as "Xh Ym".
func Duration(openTime, closeTime int64) string {
	d := closeTime - openTime
	if openTime == 0 || d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dh %dm", d/3600, (d%3600)/60)
}

// -----------------------------------------------------------------------------

func FormatClosedPosition(deal models.MClosedDeal, digits int, stats models.MStatsSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 *Position Closed*\n")
	fmt.Fprintf(&sb, "• Ticket: #%d\n", deal.Ticket)
	fmt.Fprintf(&sb, "• Symbol: %s\n", deal.Symbol)
	fmt.Fprintf(&sb, "• Direction: %s\n", deal.Direction)
	fmt.Fprintf(&sb, "• Volume: %g\n", deal.Volume)
	fmt.Fprintf(&sb, "• Price: %s\n", price(deal.EntryPrice, digits))
	fmt.Fprintf(&sb, "• SL: %s\n", price(deal.StopLoss, digits))
	fmt.Fprintf(&sb, "• TP: %s\n", price(deal.TakeProfit, digits))
	fmt.Fprintf(&sb, "• Profit: $%s\n", decimal.NewFromFloat(deal.Profit).StringFixed(2))
	fmt.Fprintf(&sb, "• Duration: %s\n", Duration(deal.OpenTime, deal.CloseTime))
	fmt.Fprintf(&sb, "• R:R Ratio: %s\n", RiskReward(deal.EntryPrice, deal.StopLoss, deal.TakeProfit))
	fmt.Fprintf(&sb, "• Reason: %s\n", deal.CloseReason)

	since := time.Unix(stats.Since, 0).UTC().Format("2006-01-02")
	sym := stats.BySymbol[deal.Symbol]
	fmt.Fprintf(&sb, "\n📊 *%s since %s*\n", deal.Symbol, since)
	fmt.Fprintf(&sb, "• Closed: %d | SL: %d | TP: %d\n", sym.Total, sym.StopLossCount, sym.TakeProfitCount)
	fmt.Fprintf(&sb, "📊 *All symbols*\n")
	fmt.Fprintf(&sb, "• Closed: %d | SL: %d | TP: %d", stats.Global.Total, stats.Global.StopLossCount, stats.Global.TakeProfitCount)
	return sb.String()
}

// FormatStats renders a full statistics snapshot, one line per symbol.
func FormatStats(stats models.MStatsSnapshot) string {
	symbols := make([]string, 0, len(stats.BySymbol))
	for s := range stats.BySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Closed positions since %s*\n", time.Unix(stats.Since, 0).UTC().Format("2006-01-02"))
	for _, s := range symbols {
		st := stats.BySymbol[s]
		fmt.Fprintf(&sb, "• %s: %d (SL %d / TP %d)\n", s, st.Total, st.StopLossCount, st.TakeProfitCount)
	}
	fmt.Fprintf(&sb, "• Total: %d (SL %d / TP %d)", stats.Global.Total, stats.Global.StopLossCount, stats.Global.TakeProfitCount)
	return sb.String()
}
