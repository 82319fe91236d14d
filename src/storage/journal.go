package storage

import (
	"fmt"

	"mt-gateway/src/interfaces"
	"mt-gateway/src/logger"
	"mt-gateway/src/models"
)

// -----------------------------------------------------------------------------

// NewJournal picks the backend named by storage.db_type. The journal is not
// initialized yet.
func NewJournal(cfg *models.MConfig, log *logger.Logger) (interfaces.IJournal, error) {
	switch cfg.Storage.DBType {
	case "sqlite":
		return NewAsyncSQLiteDB(cfg.Storage, log), nil
	case "postgres":
		return NewPostgresDB(cfg.Storage, cfg.Name, log)
	case "", "none":
		return NopJournal{}, nil
	default:
		return nil, fmt.Errorf("unsupported db_type: %s", cfg.Storage.DBType)
	}
}

// -----------------------------------------------------------------------------

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) Initialize() error                          { return nil }
func (NopJournal) SaveBars([]models.MBar) error               { return nil }
func (NopJournal) SaveClosedDeals([]models.MClosedDeal) error { return nil }
func (NopJournal) SaveOrderAudit(models.MOrderAudit) error    { return nil }
func (NopJournal) Close() error                               { return nil }
