package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"TaxPool/internal/model"

	"github.com/holiman/uint256"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists ledger events to a SQLite database.
// Amounts are stored as decimal wei strings; they do not fit in INTEGER.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers (dashboards, the status command) do not block the daemon.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS purchases (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			buyer         TEXT NOT NULL,
			payment       TEXT NOT NULL,
			tokens_issued TEXT NOT NULL,
			dev_fee       TEXT NOT NULL,
			tax           TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_ts ON purchases(timestamp)`,

		`CREATE TABLE IF NOT EXISTS sales (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			seller    TEXT NOT NULL,
			amount    TEXT NOT NULL,
			proceeds  TEXT NOT NULL,
			tax       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_ts ON sales(timestamp)`,

		`CREATE TABLE IF NOT EXISTS randomness_requests (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			request_id TEXT NOT NULL,
			snapshot   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_rid ON randomness_requests(request_id)`,

		`CREATE TABLE IF NOT EXISTS distributions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			request_id TEXT NOT NULL,
			recipient  TEXT,
			amount     TEXT NOT NULL,
			status     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_distributions_ts ON distributions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS emergency_withdrawals (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			recipient TEXT NOT NULL,
			amount    TEXT NOT NULL,
			initiator TEXT NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordPurchase(evt *model.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO purchases
		(timestamp, buyer, payment, tokens_issued, dev_fee, tax)
		VALUES (?,?,?,?,?,?)`,
		unix(evt.At), string(evt.Buyer),
		evt.Payment.Dec(), evt.TokensIssued.Dec(), evt.DevFee.Dec(), evt.Tax.Dec(),
	)
	return err
}

func (r *SQLiteRecorder) RecordSale(evt *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO sales
		(timestamp, seller, amount, proceeds, tax)
		VALUES (?,?,?,?,?)`,
		unix(evt.At), string(evt.Seller), evt.Amount.Dec(), evt.Proceeds.Dec(), evt.Tax.Dec(),
	)
	return err
}

func (r *SQLiteRecorder) RecordRandomnessRequest(evt *model.RandomnessRequested) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO randomness_requests
		(timestamp, request_id, snapshot)
		VALUES (?,?,?)`,
		unix(evt.At), evt.RequestID, evt.Snapshot.Dec(),
	)
	return err
}

func (r *SQLiteRecorder) RecordDistribution(evt *model.Distribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO distributions
		(timestamp, request_id, recipient, amount, status)
		VALUES (?,?,?,?,?)`,
		unix(evt.At), evt.RequestID, string(evt.Recipient), evt.Amount.Dec(), evt.Status,
	)
	return err
}

func (r *SQLiteRecorder) RecordEmergencyWithdrawal(evt *model.EmergencyWithdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO emergency_withdrawals
		(timestamp, recipient, amount, initiator)
		VALUES (?,?,?,?)`,
		unix(evt.At), string(evt.Recipient), evt.Amount.Dec(), string(evt.Initiator),
	)
	return err
}

// RecentDistributions returns up to limit distributions, newest first.
func (r *SQLiteRecorder) RecentDistributions(limit int) ([]model.Distribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, request_id, recipient, amount, status
		FROM distributions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query distributions: %w", err)
	}
	defer rows.Close()

	var out []model.Distribution
	for rows.Next() {
		var (
			ts        int64
			recipient string
			amount    string
			d         model.Distribution
		)
		if err := rows.Scan(&ts, &d.RequestID, &recipient, &amount, &d.Status); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		v, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		d.Recipient = model.Address(recipient)
		d.Amount = v
		d.At = time.Unix(ts, 0)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}
