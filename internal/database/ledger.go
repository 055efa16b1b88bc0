package database

import (
	"context"
	"fmt"
	"time"

	"innkeeper/internal/models"
)

func (db *DB) CreatePayment(ctx context.Context, p *models.Payment) error {
	query := `INSERT INTO payments (booking_id, amount, method, status, transaction_id, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, p.BookingID, p.Amount, p.Method, p.Status, p.TransactionID, now, now)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", mapConstraintError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (db *DB) ListPayments(ctx context.Context, bookingID int64) ([]*models.Payment, error) {
	query := `SELECT id, booking_id, amount, method, status, transaction_id, created_at, updated_at
              FROM payments WHERE booking_id = ? ORDER BY id`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Amount, &p.Method, &p.Status, &p.TransactionID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

// SetPaymentsStatus mirrors a booking's payment status onto its ledger rows.
func (db *DB) SetPaymentsStatus(ctx context.Context, bookingID int64, status models.PaymentStatus) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE payments SET status = ?, updated_at = ? WHERE booking_id = ?`, status, time.Now(), bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to update payments: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (booking_id, action, actor, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.BookingID, entry.Action, entry.Actor, entry.Details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

func (db *DB) ListAuditEntries(ctx context.Context, bookingID int64) ([]*models.AuditEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, booking_id, action, actor, details, created_at FROM audit_log WHERE booking_id = ? ORDER BY id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Action, &e.Actor, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
