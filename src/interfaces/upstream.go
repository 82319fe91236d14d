package interfaces

import (
	"context"
	"time"

	"mt-gateway/src/models"
)

// -----------------------------------------------------------------------------
// IUpstream is the trading terminal. Implementations are not safe for
// concurrent use; callers go through upstream.Session.
// -----------------------------------------------------------------------------

type IUpstream interface {

	// Connect logs in to the terminal.
	Connect(ctx context.Context) error

	// -----------------------------------------------------------------------------

	// LatestBars returns up to count most recent closed bars, oldest first.
	// An empty result with a nil error means the terminal had no data.
	LatestBars(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.MBar, error)

	// -----------------------------------------------------------------------------

	// RangeBars returns the closed bars between from and to, oldest first.
	RangeBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.MBar, error)

	// -----------------------------------------------------------------------------

	// Tick returns the current quote, or nil if the terminal has none.
	Tick(ctx context.Context, symbol string) (*models.MTick, error)

	// -----------------------------------------------------------------------------

	// SymbolInfo returns precision data, or nil if the symbol is unknown.
	SymbolInfo(ctx context.Context, symbol string) (*models.MSymbolInfo, error)

	// -----------------------------------------------------------------------------

	// SelectSymbol adds the symbol to Market Watch.
	SelectSymbol(ctx context.Context, symbol string) (bool, error)

	// -----------------------------------------------------------------------------

	// SendOrder submits an order. A nil result with a nil error means the
	// terminal produced no answer; LastError then explains why.
	SendOrder(ctx context.Context, order models.MUpstreamOrder) (*models.MOrderResult, error)

	// -----------------------------------------------------------------------------

	// LastError returns the terminal's last error code and message.
	LastError(ctx context.Context) (int, string)

	// -----------------------------------------------------------------------------

	// HistoryDeals returns deals executed between from and to.
	HistoryDeals(ctx context.Context, from, to time.Time) ([]models.MDeal, error)

	// -----------------------------------------------------------------------------

	// Disconnect shuts the terminal connection down.
	Disconnect() error
}
