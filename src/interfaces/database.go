package interfaces

import "mt-gateway/src/models"

// -----------------------------------------------------------------------------
// IJournal is the write-only sink for bars, closed deals and order outcomes.
// Nothing in the gateway reads it back.
// -----------------------------------------------------------------------------

type IJournal interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveBars records bars that were delivered to clients.
	SaveBars(bars []models.MBar) error

	// -----------------------------------------------------------------------------

	// SaveClosedDeals records classified closing deals.
	SaveClosedDeals(deals []models.MClosedDeal) error

	// -----------------------------------------------------------------------------

	// SaveOrderAudit records the outcome of an order request.
	SaveOrderAudit(audit models.MOrderAudit) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
