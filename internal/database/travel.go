package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"innkeeper/internal/domain"
	"innkeeper/internal/models"
)

const travelColumns = `id, customer_id, attraction_name, travel_date, guests, total_price, status, payment_status,
    cancellation_reason, refund_requested, refund_requested_at, refund_approved, refund_processed_at,
    cancelled_at, created_at, updated_at`

func scanTravelBooking(row rowScanner) (*models.TravelBooking, error) {
	var (
		tb       models.TravelBooking
		approved sql.NullBool
	)
	err := row.Scan(
		&tb.ID, &tb.CustomerID, &tb.AttractionName, &tb.TravelDate, &tb.Guests, &tb.TotalPrice, &tb.Status, &tb.PaymentStatus,
		&tb.CancellationReason, &tb.RefundRequested, &tb.RefundRequestedAt, &approved, &tb.RefundProcessedAt,
		&tb.CancelledAt, &tb.CreatedAt, &tb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if approved.Valid {
		v := approved.Bool
		tb.RefundApproved = &v
	}
	return &tb, nil
}

func (db *DB) CreateTravelBooking(ctx context.Context, tb *models.TravelBooking) error {
	if tb.Status == "" {
		tb.Status = models.TravelConfirmed
	}
	if tb.PaymentStatus == "" {
		tb.PaymentStatus = models.PaymentPaid
	}
	query := `INSERT INTO travel_bookings (customer_id, attraction_name, travel_date, guests, total_price, status, payment_status, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		tb.CustomerID, tb.AttractionName, dateArg(tb.TravelDate), tb.Guests, tb.TotalPrice, tb.Status, tb.PaymentStatus, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create travel booking: %w", mapConstraintError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	tb.ID = id
	tb.TravelDate = models.DateOnly(tb.TravelDate)
	tb.CreatedAt = now
	tb.UpdatedAt = now
	return nil
}

func getTravelBooking(ctx context.Context, q queryRower, id int64) (*models.TravelBooking, error) {
	tb, err := scanTravelBooking(q.QueryRowContext(ctx, `SELECT `+travelColumns+` FROM travel_bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get travel booking: %w", err)
	}
	return tb, nil
}

func (db *DB) GetTravelBooking(ctx context.Context, id int64) (*models.TravelBooking, error) {
	return getTravelBooking(ctx, db.DB, id)
}

func (db *DB) ListTravelBookings(ctx context.Context, customerID int64) ([]*models.TravelBooking, error) {
	query := `SELECT ` + travelColumns + ` FROM travel_bookings`
	var args []any
	if customerID != 0 {
		query += ` WHERE customer_id = ?`
		args = append(args, customerID)
	}
	query += ` ORDER BY travel_date DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list travel bookings: %w", err)
	}
	defer rows.Close()

	var list []*models.TravelBooking
	for rows.Next() {
		tb, err := scanTravelBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan travel booking: %w", err)
		}
		list = append(list, tb)
	}
	return list, rows.Err()
}

// UpdateTravelBooking applies fn to the stored row and persists the mutable
// columns in the same transaction.
func (db *DB) UpdateTravelBooking(ctx context.Context, id int64, fn func(tb *models.TravelBooking) error) (*models.TravelBooking, error) {
	var updated *models.TravelBooking
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		tb, err := getTravelBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(tb); err != nil {
			return err
		}

		query := `UPDATE travel_bookings SET
                    status = ?, payment_status = ?, cancellation_reason = ?, refund_requested = ?,
                    refund_requested_at = ?, refund_approved = ?, refund_processed_at = ?, cancelled_at = ?, updated_at = ?
                  WHERE id = ?`
		_, err = tx.ExecContext(ctx, query,
			tb.Status, tb.PaymentStatus, tb.CancellationReason, tb.RefundRequested,
			tb.RefundRequestedAt, nullableBool(tb.RefundApproved), tb.RefundProcessedAt, tb.CancelledAt, time.Now(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to update travel booking: %w", mapConstraintError(err))
		}

		updated, err = getTravelBooking(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
