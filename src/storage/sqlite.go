package storage

import (
	"database/sql"
	"fmt"
	"sync"

	"mt-gateway/src/logger"
	"mt-gateway/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config models.MStorageConfig
	DB     *sql.DB
	Logger *logger.Logger

	// SQLite allows one writer at a time.
	writeMu sync.Mutex
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg models.MStorageConfig, log *logger.Logger) *AsyncSQLiteDB {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	db, err := sql.Open("sqlite", d.Config.DBPath)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	statements := map[string]string{
		"bars": `
			CREATE TABLE IF NOT EXISTS bars (
				symbol TEXT,
				timeframe TEXT,
				close_time INTEGER,
				open REAL,
				high REAL,
				low REAL,
				close REAL,
				PRIMARY KEY (symbol, timeframe, close_time)
			);`,
		"closed_deals": `
			CREATE TABLE IF NOT EXISTS closed_deals (
				ticket INTEGER PRIMARY KEY,
				symbol TEXT,
				direction TEXT,
				volume REAL,
				profit REAL,
				entry_price REAL,
				sl REAL,
				tp REAL,
				close_reason TEXT,
				open_time INTEGER,
				close_time INTEGER
			);`,
		"order_audit": `
			CREATE TABLE IF NOT EXISTS order_audit (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at INTEGER,
				symbol TEXT,
				kind TEXT,
				direction TEXT,
				volume REAL,
				price REAL,
				sl REAL,
				tp REAL,
				order_type TEXT,
				outcome TEXT,
				reason TEXT,
				ticket INTEGER,
				retcode INTEGER
			);`,
	}

	for _, table := range []string{"bars", "closed_deals", "order_audit"} {
		if _, err := d.DB.Exec(statements[table]); err != nil {
			return fmt.Errorf("failed to create %s: %w", table, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) SaveBars(bars []models.MBar) error {
	if len(bars) == 0 {
		return nil
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO bars (symbol, timeframe, close_time, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
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

func (d *AsyncSQLiteDB) SaveClosedDeals(deals []models.MClosedDeal) error {
	if len(deals) == 0 {
		return nil
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO closed_deals
			(ticket, symbol, direction, volume, profit, entry_price, sl, tp, close_reason, open_time, close_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
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

func (d *AsyncSQLiteDB) SaveOrderAudit(a models.MOrderAudit) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	_, err := d.DB.Exec(`
		INSERT INTO order_audit
			(created_at, symbol, kind, direction, volume, price, sl, tp, order_type, outcome, reason, ticket, retcode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.CreatedAt.Unix(), a.Request.Symbol, string(a.Request.Kind), string(a.Request.Direction), a.Request.Volume,
		a.Request.Price, a.Request.StopLoss, a.Request.TakeProfit, string(a.OrderType), a.Outcome, a.Reason,
		int64(a.Ticket), a.Retcode)
	return err
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
