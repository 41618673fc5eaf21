// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS event_logs (
	id           INTEGER PRIMARY KEY,
	payment_id   INTEGER,
	event_value  INTEGER NOT NULL DEFAULT 0,
	license_fee  INTEGER NOT NULL DEFAULT 0,
	paid_amount  INTEGER,
	publisher_id TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS event_logs_payment_id ON event_logs (payment_id, id);
`

const eventColumns = "id, payment_id, event_value, license_fee, paid_amount, publisher_id, created_at"

const (
	unpaidQuery = "SELECT " + eventColumns + " FROM event_logs WHERE id BETWEEN ? AND ? AND payment_id IS NULL ORDER BY id LIMIT ? OFFSET ?"
	paidQuery   = "SELECT " + eventColumns + " FROM event_logs WHERE payment_id BETWEEN ? AND ? ORDER BY payment_id, id LIMIT ? OFFSET ?"
	insertQuery = "INSERT INTO event_logs (" + eventColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)"
	markQuery   = "UPDATE event_logs SET payment_id = ?, paid_amount = event_value - license_fee WHERE id = ?"
)

// SQLEventLog reads events from the event_logs table
type SQLEventLog struct {
	db *sql.DB
}

// NewSQLEventLog uses an open database
func NewSQLEventLog(db *sql.DB) *SQLEventLog {
	return &SQLEventLog{db: db}
}

// OpenSQLiteEventLog opens (or creates) a sqlite event log at path
func OpenSQLiteEventLog(ctx context.Context, path string) (*SQLEventLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	l := NewSQLEventLog(db)
	if err := l.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Migrate creates the table if needed
func (l *SQLEventLog) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate event log: %w", err)
	}
	return nil
}

// Close closes the database
func (l *SQLEventLog) Close() error {
	return l.db.Close()
}

// Append inserts events in one transaction
func (l *SQLEventLog) Append(ctx context.Context, events ...BillableEvent) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		var paymentID, paid sql.NullInt64
		if e.IsPaid() {
			paymentID = sql.NullInt64{Int64: e.PaymentBatchID, Valid: true}
			paid = sql.NullInt64{Int64: e.PaidAmount, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, insertQuery,
			e.EventID, paymentID, e.Value, e.LicenseFee, paid, e.PublisherID, e.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert event %d: %w", e.EventID, err)
		}
	}
	return tx.Commit()
}

// MarkPaid assigns events to a payment batch in one transaction
func (l *SQLEventLog) MarkPaid(ctx context.Context, paymentBatchID int64, eventIDs ...int64) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range eventIDs {
		res, err := tx.ExecContext(ctx, markQuery, paymentBatchID, id)
		if err != nil {
			return fmt.Errorf("failed to mark event %d paid: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("event %d not found", id)
		}
	}
	return tx.Commit()
}

func (l *SQLEventLog) FetchUnpaidEventsBetweenIDs(ctx context.Context, idFirst, idLast int64, limit, offset int) ([]BillableEvent, error) {
	if err := ValidateWindow(idFirst, idLast, limit, offset); err != nil {
		return nil, err
	}
	return l.query(ctx, unpaidQuery, idFirst, idLast, limit, offset)
}

func (l *SQLEventLog) FetchPaidEventsUpdatedAfterPaymentID(ctx context.Context, paymentIDFirst, paymentIDLast int64, limit, offset int) ([]BillableEvent, error) {
	if err := ValidateWindow(paymentIDFirst, paymentIDLast, limit, offset); err != nil {
		return nil, err
	}
	return l.query(ctx, paidQuery, paymentIDFirst, paymentIDLast, limit, offset)
}

func (l *SQLEventLog) query(ctx context.Context, q string, args ...any) ([]BillableEvent, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]BillableEvent, 0)
	for rows.Next() {
		var (
			e         BillableEvent
			paymentID sql.NullInt64
			paid      sql.NullInt64
			created   int64
		)
		if err := rows.Scan(&e.EventID, &paymentID, &e.Value, &e.LicenseFee, &paid, &e.PublisherID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.PaymentBatchID = paymentID.Int64
		e.PaidAmount = paid.Int64
		e.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}
