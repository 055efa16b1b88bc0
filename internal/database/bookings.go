package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"innkeeper/internal/domain"
	"innkeeper/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var bookingColumns = []string{
	"b.id", "b.customer_id", "b.room_id", "r.number", "b.check_in_date", "b.check_out_date",
	"b.guests", "b.nights", "b.nightly_rate", "b.total_price", "b.additional_charges",
	"b.status", "b.payment_status", "b.payment_method", "b.confirmation_code",
	"b.special_requests", "b.notes", "b.cancellation_reason",
	"b.refund_requested", "b.refund_requested_at", "b.refund_approved", "b.refund_processed_at",
	"b.cancelled_at", "b.checked_in_at", "b.checked_out_at", "b.created_at", "b.updated_at", "b.version",
}

// holdingStatuses are the statuses whose date ranges block a room.
var holdingStatuses = []string{
	string(models.BookingPending),
	string(models.BookingConfirmed),
	string(models.BookingCheckedIn),
}

func selectBookings() sq.SelectBuilder {
	return sq.Select(bookingColumns...).
		From("bookings b").
		LeftJoin("rooms r ON r.id = b.room_id")
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		roomID     sql.NullInt64
		roomNumber sql.NullString
		approved   sql.NullBool
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &roomID, &roomNumber, &b.CheckIn, &b.CheckOut,
		&b.Guests, &b.Nights, &b.NightlyRate, &b.TotalPrice, &b.AdditionalCharges,
		&b.Status, &b.PaymentStatus, &b.PaymentMethod, &b.ConfirmationCode,
		&b.SpecialRequests, &b.Notes, &b.CancellationReason,
		&b.RefundRequested, &b.RefundRequestedAt, &approved, &b.RefundProcessedAt,
		&b.CancelledAt, &b.CheckedInAt, &b.CheckedOutAt, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if roomID.Valid {
		id := roomID.Int64
		b.RoomID = &id
	}
	b.RoomNumber = roomNumber.String
	if approved.Valid {
		v := approved.Bool
		b.RefundApproved = &v
	}
	return &b, nil
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func dateArg(t time.Time) string {
	return models.DateOnly(t).Format(models.DateLayout)
}

// activeOverlapCount is the availability predicate: bookings on the room whose
// status still holds it and whose [check_in, check_out) intersects the candidate.
func activeOverlapCount(ctx context.Context, q queryRower, roomID int64, checkIn, checkOut time.Time, excludeID int64) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("bookings").
		Where(sq.Eq{"room_id": roomID, "status": holdingStatuses}).
		Where(sq.Gt{"check_out_date": dateArg(checkIn)}).
		Where(sq.Lt{"check_in_date": dateArg(checkOut)}).
		Where(sq.NotEq{"id": excludeID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build overlap query: %w", err)
	}

	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to check overlap: %w", err)
	}
	return n, nil
}

// CheckAvailability is the advisory read; CreateBookingWithLock repeats the
// predicate under the write lock.
func (db *DB) CheckAvailability(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error) {
	n, err := activeOverlapCount(ctx, db.DB, roomID, checkIn, checkOut, 0)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// CreateBookingWithLock locks the room, re-runs the availability predicate and
// inserts the booking in one transaction.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	if booking.RoomID == nil {
		return domain.ErrRoomRequired
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Lock the room row
	if err := lockRoom(ctx, tx, *booking.RoomID); err != nil {
		return err
	}

	// 2. Check availability inside transaction
	overlapping, err := activeOverlapCount(ctx, tx, *booking.RoomID, booking.CheckIn, booking.CheckOut, 0)
	if err != nil {
		return err
	}
	if overlapping > 0 {
		return domain.ErrRoomUnavailable
	}

	// 3. Create booking
	queryInsert := `INSERT INTO bookings (
                customer_id, room_id, check_in_date, check_out_date, guests, nights, nightly_rate,
                total_price, additional_charges, status, payment_status, payment_method,
                confirmation_code, special_requests, notes, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	now := time.Now()
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.CustomerID,
		*booking.RoomID,
		dateArg(booking.CheckIn),
		dateArg(booking.CheckOut),
		booking.Guests,
		booking.Nights,
		booking.NightlyRate,
		booking.TotalPrice,
		booking.AdditionalCharges,
		booking.Status,
		booking.PaymentStatus,
		booking.PaymentMethod,
		booking.ConfirmationCode,
		booking.SpecialRequests,
		booking.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", mapConstraintError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.CheckIn = models.DateOnly(booking.CheckIn)
	booking.CheckOut = models.DateOnly(booking.CheckOut)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func getBooking(ctx context.Context, q queryRower, id int64) (*models.Booking, error) {
	query, args, err := selectBookings().Where(sq.Eq{"b.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build booking query: %w", err)
	}
	b, err := scanBooking(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db.DB, id)
}

func applyBookingFilter(sb sq.SelectBuilder, f models.BookingFilter) sq.SelectBuilder {
	if f.CustomerID != 0 {
		sb = sb.Where(sq.Eq{"b.customer_id": f.CustomerID})
	}
	if f.RoomID != 0 {
		sb = sb.Where(sq.Eq{"b.room_id": f.RoomID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		sb = sb.Where(sq.Eq{"b.status": statuses})
	}
	if !f.From.IsZero() {
		sb = sb.Where(sq.Gt{"b.check_out_date": dateArg(f.From)})
	}
	if !f.To.IsZero() {
		sb = sb.Where(sq.Lt{"b.check_in_date": dateArg(f.To)})
	}
	if !f.CheckInOn.IsZero() {
		sb = sb.Where(sq.Eq{"b.check_in_date": dateArg(f.CheckInOn)})
	}
	if !f.CheckOutOn.IsZero() {
		sb = sb.Where(sq.Eq{"b.check_out_date": dateArg(f.CheckOutOn)})
	}
	if f.RefundRequested != nil {
		sb = sb.Where(sq.Eq{"b.refund_requested": *f.RefundRequested})
	}
	return sb
}

// ListBookings returns bookings matching the filter, newest stays first.
// From/To select stays overlapping [From, To).
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	sb := applyBookingFilter(selectBookings(), filter).OrderBy("b.check_in_date DESC", "b.id DESC")
	if filter.Limit > 0 {
		sb = sb.Limit(filter.Limit)
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build bookings query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (db *DB) CountBookings(ctx context.Context, filter models.BookingFilter) (int, error) {
	sb := applyBookingFilter(sq.Select("COUNT(*)").From("bookings b"), filter)
	query, args, err := sb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return n, nil
}

// ListOverdueCheckedIn returns checked-in bookings whose checkout date is
// before today, or on/before it when inclusive is set.
func (db *DB) ListOverdueCheckedIn(ctx context.Context, today time.Time, inclusive bool) ([]int64, error) {
	cutoff := sq.Sqlizer(sq.Lt{"check_out_date": dateArg(today)})
	if inclusive {
		cutoff = sq.LtOrEq{"check_out_date": dateArg(today)}
	}
	query, args, err := sq.Select("id").
		From("bookings").
		Where(sq.Eq{"status": string(models.BookingCheckedIn)}).
		Where(cutoff).
		OrderBy("check_out_date", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build overdue query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue bookings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan overdue id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateBooking loads the booking under the write lock (locking its room too),
// runs apply and persists whatever apply changed, all in one transaction.
func (db *DB) UpdateBooking(ctx context.Context, id int64, apply func(tx domain.BookingTx) error) (*models.Booking, error) {
	var updated *models.Booking
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		b, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.RoomID != nil {
			if err := lockRoom(ctx, tx, *b.RoomID); err != nil {
				return err
			}
		}

		btx := &bookingTx{ctx: ctx, tx: tx, booking: b}
		if err := apply(btx); err != nil {
			return err
		}

		if err := saveBooking(ctx, tx, b); err != nil {
			return err
		}

		updated, err = getBooking(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func saveBooking(ctx context.Context, tx *sql.Tx, b *models.Booking) error {
	query := `UPDATE bookings SET
                room_id = ?, status = ?, payment_status = ?, total_price = ?, additional_charges = ?,
                notes = ?, cancellation_reason = ?, refund_requested = ?, refund_requested_at = ?,
                refund_approved = ?, refund_processed_at = ?, cancelled_at = ?, checked_in_at = ?,
                checked_out_at = ?, updated_at = ?, version = version + 1
              WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query,
		nullableID(b.RoomID), b.Status, b.PaymentStatus, b.TotalPrice, b.AdditionalCharges,
		b.Notes, b.CancellationReason, b.RefundRequested, b.RefundRequestedAt,
		nullableBool(b.RefundApproved), b.RefundProcessedAt, b.CancelledAt, b.CheckedInAt,
		b.CheckedOutAt, time.Now(), b.ID, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", mapConstraintError(err))
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// bookingTx implements domain.BookingTx on top of an open transaction.
type bookingTx struct {
	ctx     context.Context
	tx      *sql.Tx
	booking *models.Booking
}

func (t *bookingTx) Booking() *models.Booking {
	return t.booking
}

func (t *bookingTx) Room() (*models.Room, error) {
	if t.booking.RoomID == nil {
		return nil, nil
	}
	return t.lockedRoom(`SELECT `+roomColumns+roomFrom+` WHERE r.id = ?`, *t.booking.RoomID)
}

func (t *bookingTx) RoomByNumber(number string) (*models.Room, error) {
	return t.lockedRoom(`SELECT `+roomColumns+roomFrom+` WHERE r.number = ?`, number)
}

func (t *bookingTx) lockedRoom(query string, arg any) (*models.Room, error) {
	room, err := scanRoom(t.tx.QueryRowContext(t.ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	if err := lockRoom(t.ctx, t.tx, room.ID); err != nil {
		return nil, err
	}
	return room, nil
}

func (t *bookingTx) HasOverlap(roomID int64, checkIn, checkOut time.Time, excludeID int64) (bool, error) {
	n, err := activeOverlapCount(t.ctx, t.tx, roomID, checkIn, checkOut, excludeID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *bookingTx) SetRoomStatus(roomID int64, status models.RoomStatus) error {
	return setRoomStatus(t.ctx, t.tx, roomID, status)
}
