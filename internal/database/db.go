package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/pkg/models"
	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02 15:04:05"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meter_number TEXT NOT NULL,
		kind TEXT NOT NULL,
		interval TEXT NOT NULL,
		date TEXT NOT NULL,
		billing_period TEXT,
		import REAL NOT NULL,
		export REAL NOT NULL,
		net REAL NOT NULL,
		created_at TEXT NOT NULL,
		published INTEGER DEFAULT 0,
		UNIQUE(meter_number, interval, date)
	);
	CREATE INDEX IF NOT EXISTS idx_usage_meter ON usage_records(meter_number, interval);
	CREATE INDEX IF NOT EXISTS idx_usage_date ON usage_records(date);
	CREATE INDEX IF NOT EXISTS idx_usage_published ON usage_records(published);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertUsage stores a usage record, ignoring one already stored for the
// same meter, interval and date. It reports whether a row was added.
func (db *DB) InsertUsage(rec *models.UsageRecord) (bool, error) {
	query := `
	INSERT OR IGNORE INTO usage_records (meter_number, kind, interval, date, billing_period, import, export, net, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := time.Now().UTC().Format(time.RFC3339)
	res, err := db.conn.Exec(query,
		rec.MeterNumber, string(rec.Kind), string(rec.Interval), rec.Date.Format(timestampLayout),
		rec.BillingPeriod, rec.Import, rec.Export, rec.Net, createdAt)
	if err != nil {
		return false, fmt.Errorf("inserting usage record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking inserted rows: %w", err)
	}
	return n > 0, nil
}

// InsertAll stores records and returns how many were new
func (db *DB) InsertAll(records []models.UsageRecord) (int, error) {
	added := 0
	for i := range records {
		ok, err := db.InsertUsage(&records[i])
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	logger.StorageLog.Debugf("stored %d of %d records", added, len(records))
	return added, nil
}

// Filter narrows listings; empty fields match everything
type Filter struct {
	MeterNumber     string
	Interval        models.Interval
	UnpublishedOnly bool
}

// ListUsage retrieves usage records ordered by date
func (db *DB) ListUsage(f Filter) ([]models.UsageRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.MeterNumber != "" {
		where = append(where, "meter_number = ?")
		args = append(args, f.MeterNumber)
	}
	if f.Interval != "" {
		where = append(where, "interval = ?")
		args = append(args, string(f.Interval))
	}
	if f.UnpublishedOnly {
		where = append(where, "published = 0")
	}

	query := `
	SELECT id, meter_number, kind, interval, date, billing_period, import, export, net
	FROM usage_records`
	if len(where) > 0 {
		query += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\tORDER BY meter_number, interval, date"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var results []models.UsageRecord
	for rows.Next() {
		var (
			rec                     models.UsageRecord
			kind, interval, dateStr string
			billingPeriod           sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.MeterNumber, &kind, &interval, &dateStr, &billingPeriod,
			&rec.Import, &rec.Export, &rec.Net); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		rec.Kind = models.MeterKind(kind)
		rec.Interval = models.Interval(interval)
		rec.BillingPeriod = billingPeriod.String
		rec.Date, err = time.Parse(timestampLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing date: %w", err)
		}

		results = append(results, rec)
	}

	return results, rows.Err()
}

// ListUnpublishedUsage retrieves records not yet published
func (db *DB) ListUnpublishedUsage(meterNumber string, interval models.Interval) ([]models.UsageRecord, error) {
	return db.ListUsage(Filter{MeterNumber: meterNumber, Interval: interval, UnpublishedOnly: true})
}

// MarkPublished marks a usage record as published
func (db *DB) MarkPublished(id int) error {
	query := `UPDATE usage_records SET published = 1 WHERE id = ?`
	_, err := db.conn.Exec(query, id)
	if err != nil {
		return fmt.Errorf("marking record as published: %w", err)
	}
	return nil
}
