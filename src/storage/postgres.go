package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mt-gateway/src/logger"
	"mt-gateway/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config models.MStorageConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

// NewPostgresDB keeps every table in a schema named after the service, or
// after the executable when no name is configured.
func NewPostgresDB(cfg models.MStorageConfig, service string, log *logger.Logger) (*PostgresDB, error) {
	name := service
	if name == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable name: %w", err)
		}
		name = filepath.Base(exe)
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}

	return &PostgresDB{
		Config: cfg,
		Schema: strings.ReplaceAll(name, "-", "_"),
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	db, err := sql.Open("postgres", d.Config.DBConnectionString)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}
	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}
	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	statements := []struct {
		table string
		ddl   string
	}{
		{"bars", `
			CREATE TABLE IF NOT EXISTS "%s"."bars" (
				symbol TEXT,
				timeframe TEXT,
				close_time BIGINT,
				open DOUBLE PRECISION,
				high DOUBLE PRECISION,
				low DOUBLE PRECISION,
				close DOUBLE PRECISION,
				PRIMARY KEY (symbol, timeframe, close_time)
			);`},
		{"closed_deals", `
			CREATE TABLE IF NOT EXISTS "%s"."closed_deals" (
				ticket BIGINT PRIMARY KEY,
				symbol TEXT,
				direction TEXT,
				volume DOUBLE PRECISION,
				profit DOUBLE PRECISION,
				entry_price DOUBLE PRECISION,
				sl DOUBLE PRECISION,
				tp DOUBLE PRECISION,
				close_reason TEXT,
				open_time BIGINT,
				close_time BIGINT
			);`},
		{"order_audit", `
			CREATE TABLE IF NOT EXISTS "%s"."order_audit" (
				id BIGSERIAL PRIMARY KEY,
				created_at TIMESTAMPTZ,
				symbol TEXT,
				kind TEXT,
				direction TEXT,
				volume DOUBLE PRECISION,
				price DOUBLE PRECISION,
				sl DOUBLE PRECISION,
				tp DOUBLE PRECISION,
				order_type TEXT,
				outcome TEXT,
				reason TEXT,
				ticket BIGINT,
				retcode INTEGER
			);`},
	}

	for _, s := range statements {
		if _, err := d.DB.Exec(fmt.Sprintf(s.ddl, d.Schema)); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.table, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveBars(bars []models.MBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO "%s"."bars" (symbol, timeframe, close_time, open, high, low, close)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, timeframe, close_time) DO NOTHING
	`, d.Schema))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.Symbol, string(b.Timeframe), b.CloseTime, b.Open, b.High, b.Low, b.Close); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveClosedDeals(deals []models.MClosedDeal) error {
	if len(deals) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO "%s"."closed_deals"
			(ticket, symbol, direction, volume, profit, entry_price, sl, tp, close_reason, open_time, close_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (ticket) DO UPDATE SET
			profit = EXCLUDED.profit,
			close_reason = EXCLUDED.close_reason,
			close_time = EXCLUDED.close_time
	`, d.Schema))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range deals {
		if _, err := stmt.Exec(int64(c.Ticket), c.Symbol, string(c.Direction), c.Volume, c.Profit,
			c.EntryPrice, c.StopLoss, c.TakeProfit, string(c.CloseReason), c.OpenTime, c.CloseTime); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) SaveOrderAudit(a models.MOrderAudit) error {
	_, err := d.DB.Exec(fmt.Sprintf(`
		INSERT INTO "%s"."order_audit"
			(created_at, symbol, kind, direction, volume, price, sl, tp, order_type, outcome, reason, ticket, retcode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, d.Schema), a.CreatedAt.UTC(), a.Request.Symbol, string(a.Request.Kind), string(a.Request.Direction),
		a.Request.Volume, a.Request.Price, a.Request.StopLoss, a.Request.TakeProfit, string(a.OrderType),
		a.Outcome, a.Reason, int64(a.Ticket), a.Retcode)
	return err
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
