package export

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"innkeeper/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubSource struct {
	bookings []*models.Booking
	rooms    []*models.Room
	filter   models.BookingFilter
	err      error
}

func (s *stubSource) ListBookings(_ context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	s.filter = filter
	return s.bookings, s.err
}

func (s *stubSource) ListRooms(context.Context) ([]*models.Room, error) {
	return s.rooms, nil
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestExport(t *testing.T) {
	roomID := int64(1)
	src := &stubSource{
		rooms: []*models.Room{
			{ID: 1, Number: "101", Status: models.RoomOccupied},
			{ID: 2, Number: "102", Status: models.RoomAvailable},
		},
		bookings: []*models.Booking{
			{
				ID: 10, ConfirmationCode: "HTL-7-1-20250601120000-ABCDEF", CustomerID: 7,
				RoomID: &roomID, RoomNumber: "101", CheckIn: day(2), CheckOut: day(4),
				Nights: 2, Guests: 2, Status: models.BookingCheckedIn, PaymentStatus: models.PaymentPaid,
				TotalPrice: 200,
			},
		},
	}
	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "exports")
	exp := NewExporter(src, dir, &logger)

	path, err := exp.Export(context.Background(), day(1), day(5))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bookings_2025-06-01_to_2025-06-05.xlsx"), path)
	assert.True(t, src.filter.From.Equal(day(1)))
	assert.True(t, src.filter.To.Equal(day(6)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetBookings)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, bookingColumns, rows[0])
	assert.Equal(t, "HTL-7-1-20250601120000-ABCDEF", rows[1][1])
	assert.Equal(t, "2025-06-02", rows[1][4])
	assert.Equal(t, "checked_in", rows[1][8])

	// columns: A room, B 01.06, C 02.06, D 03.06, E 04.06
	got, err := f.GetCellValue(sheetOccupancy, "C3")
	require.NoError(t, err)
	assert.Equal(t, "#10 checked_in", got)
	got, err = f.GetCellValue(sheetOccupancy, "D3")
	require.NoError(t, err)
	assert.Equal(t, "#10 checked_in", got)
	got, err = f.GetCellValue(sheetOccupancy, "E3")
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = f.GetCellValue(sheetOccupancy, "A4")
	require.NoError(t, err)
	assert.Equal(t, "102 (available)", got)

	assert.NotContains(t, f.GetSheetList(), "Sheet1")
}

func TestExport_Errors(t *testing.T) {
	exp := NewExporter(&stubSource{}, t.TempDir(), nil)
	_, err := exp.Export(context.Background(), day(5), day(1))
	assert.Error(t, err)

	exp = NewExporter(&stubSource{err: errors.New("db closed")}, t.TempDir(), nil)
	_, err = exp.Export(context.Background(), day(1), day(5))
	assert.ErrorContains(t, err, "db closed")
}
