package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"innkeeper/internal/config"
	"innkeeper/internal/database"
	"innkeeper/internal/events"
	"innkeeper/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// recordingSide captures side tasks instead of running them.
type recordingSide struct {
	mu    sync.Mutex
	tasks []models.SideTask
}

func (r *recordingSide) Enqueue(_ context.Context, task models.SideTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *recordingSide) byType(taskType string) []models.SideTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SideTask
	for _, t := range r.tasks {
		if t.Type == taskType {
			out = append(out, t)
		}
	}
	return out
}

type fixture struct {
	db        *database.DB
	side      *recordingSide
	bus       *events.EventBus
	published []string
	bookings  *BookingService
	refunds   *RefundService
	travel    *TravelService
	inventory *InventoryService
	roomType  *models.RoomType
	now       time.Time
}

func testConfig() config.BookingConfig {
	return config.BookingConfig{
		ConfirmationPrefix:  "HTL",
		MaxStayNights:       30,
		TravelRefundMinDays: 2,
	}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithConfig(t, testConfig())
}

func newFixtureWithConfig(t *testing.T, cfg config.BookingConfig) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:   db,
		side: &recordingSide{},
		bus:  events.NewEventBus(),
		now:  time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
	record := func(e *events.Event) error {
		f.published = append(f.published, e.Type)
		return nil
	}
	f.bus.Subscribe(record,
		events.EventBookingCreated, events.EventBookingCheckedIn, events.EventBookingCheckedOut,
		events.EventBookingCancelled, events.EventBookingOverridden, events.EventBookingOverdueSwept,
		events.EventRefundRequested, events.EventRefundApproved, events.EventRefundDeclined,
	)

	clock := func() time.Time { return f.now }
	f.bookings = NewBookingService(db, db, f.side, f.bus, nil, cfg, &logger)
	f.bookings.now = clock
	f.refunds = NewRefundService(db, db, f.side, f.bus, cfg, &logger)
	f.refunds.now = clock
	f.travel = NewTravelService(db, f.bus, &logger)
	f.inventory = NewInventoryService(db, &logger)

	f.roomType = &models.RoomType{Name: "Standard", BasePrice: 80, MaxOccupancy: 2}
	require.NoError(t, f.inventory.CreateRoomType(context.Background(), f.roomType))
	return f
}

func (f *fixture) addRoom(t *testing.T, number string, price float64) *models.Room {
	t.Helper()
	room := &models.Room{Number: number, RoomTypeID: f.roomType.ID, Floor: 1, Price: price}
	require.NoError(t, f.inventory.CreateRoom(context.Background(), room))
	return room
}

func (f *fixture) roomStatus(t *testing.T, id int64) models.RoomStatus {
	t.Helper()
	room, err := f.db.GetRoom(context.Background(), id)
	require.NoError(t, err)
	return room.Status
}

func (f *fixture) book(t *testing.T, roomID int64, checkIn, checkOut string) *models.Booking {
	t.Helper()
	res, err := f.bookings.CreateBooking(context.Background(), CreateBookingRequest{
		CustomerID:    7,
		RoomID:        roomID,
		CheckIn:       date(t, checkIn),
		CheckOut:      date(t, checkOut),
		Guests:        1,
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	return res.Booking
}

func date(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := models.ParseDate(raw)
	require.NoError(t, err)
	return d
}
