package domain

import (
	"context"
	"time"

	"innkeeper/internal/models"
)

// BookingTx is the view a lifecycle step gets of one booking while the store
// holds the write lock. Mutations made to Booking() are persisted when the
// step returns nil; any error rolls everything back.
type BookingTx interface {
	Booking() *models.Booking
	// Room returns the booking's current room, locked, or nil when none is attached.
	Room() (*models.Room, error)
	// RoomByNumber resolves and locks a room by its human-facing number.
	RoomByNumber(number string) (*models.Room, error)
	// HasOverlap applies the availability predicate to roomID, ignoring excludeID.
	HasOverlap(roomID int64, checkIn, checkOut time.Time, excludeID int64) (bool, error)
	SetRoomStatus(roomID int64, status models.RoomStatus) error
}

type InventoryStore interface {
	CreateRoomType(ctx context.Context, rt *models.RoomType) error
	GetRoomType(ctx context.Context, id int64) (*models.RoomType, error)
	ListRoomTypes(ctx context.Context) ([]*models.RoomType, error)
	DeleteRoomType(ctx context.Context, id int64) error
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	GetRoomByNumber(ctx context.Context, number string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
	SetRoomStatus(ctx context.Context, id int64, status models.RoomStatus) (*models.Room, error)
	DeleteRoom(ctx context.Context, id int64) error
	CountRoomsByStatus(ctx context.Context) (map[models.RoomStatus]int, error)
	SeedInventory(ctx context.Context, types []models.RoomType, rooms []models.Room) (int, error)
}

type BookingStore interface {
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	CheckAvailability(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	CountBookings(ctx context.Context, filter models.BookingFilter) (int, error)
	UpdateBooking(ctx context.Context, id int64, apply func(tx BookingTx) error) (*models.Booking, error)
	ListOverdueCheckedIn(ctx context.Context, today time.Time, inclusive bool) ([]int64, error)
	CountRoomsByStatus(ctx context.Context) (map[models.RoomStatus]int, error)
}

type TravelStore interface {
	CreateTravelBooking(ctx context.Context, tb *models.TravelBooking) error
	GetTravelBooking(ctx context.Context, id int64) (*models.TravelBooking, error)
	ListTravelBookings(ctx context.Context, customerID int64) ([]*models.TravelBooking, error)
	UpdateTravelBooking(ctx context.Context, id int64, apply func(tb *models.TravelBooking) error) (*models.TravelBooking, error)
}

// LedgerStore holds the secondary records: payments and the audit trail.
type LedgerStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, bookingID int64) ([]*models.Payment, error)
	SetPaymentsStatus(ctx context.Context, bookingID int64, status models.PaymentStatus) (int64, error)
	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	ListAuditEntries(ctx context.Context, bookingID int64) ([]*models.AuditEntry, error)
}

// SideChannel accepts fire-and-forget work that must never affect the primary transition.
type SideChannel interface {
	Enqueue(ctx context.Context, task models.SideTask) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Notifier delivers staff notifications (Telegram chat or log).
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}
