package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"innkeeper/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	sheetBookings  = "Bookings"
	sheetOccupancy = "Occupancy"
)

var bookingColumns = []string{
	"ID", "Confirmation", "Customer", "Room", "Check-in", "Check-out",
	"Nights", "Guests", "Status", "Payment", "Total", "Refund",
}

// statusFill colours occupancy cells by booking status.
var statusFill = map[models.BookingStatus]string{
	models.BookingPending:    "#FFF2CC",
	models.BookingConfirmed:  "#DDEBF7",
	models.BookingCheckedIn:  "#C6EFCE",
	models.BookingCheckedOut: "#E7E6E6",
	models.BookingCancelled:  "#F8CBAD",
}

// Source is the read side the exporter needs.
type Source interface {
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
}

// Exporter writes staff spreadsheets of bookings overlapping a date window.
type Exporter struct {
	src    Source
	dir    string
	logger *zerolog.Logger
}

func NewExporter(src Source, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{src: src, dir: dir, logger: logger}
}

// Export writes bookings whose stay overlaps [from, to] and returns the
// file path. The workbook has a flat booking list and a rooms by nights grid.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (string, error) {
	from, to = models.DateOnly(from), models.DateOnly(to)
	if to.Before(from) {
		return "", fmt.Errorf("export window ends before it starts: %s > %s",
			from.Format(models.DateLayout), to.Format(models.DateLayout))
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	bookings, err := e.src.ListBookings(ctx, models.BookingFilter{From: from, To: to.AddDate(0, 0, 1)})
	if err != nil {
		return "", fmt.Errorf("failed to load bookings: %w", err)
	}
	rooms, err := e.src.ListRooms(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load rooms: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetBookings)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := writeBookingList(f, bookings); err != nil {
		return "", err
	}

	if _, err := f.NewSheet(sheetOccupancy); err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := writeOccupancy(f, rooms, bookings, from, to); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
	path := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	if e.logger != nil {
		e.logger.Info().Str("file_path", path).Int("bookings", len(bookings)).Msg("export written")
	}
	return path, nil
}

func writeBookingList(f *excelize.File, bookings []*models.Booking) error {
	header, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, title := range bookingColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetBookings, cell, title)
	}
	last, _ := excelize.CoordinatesToCellName(len(bookingColumns), 1)
	_ = f.SetCellStyle(sheetBookings, "A1", last, header)

	for i, b := range bookings {
		row := []any{
			b.ID, b.ConfirmationCode, b.CustomerID, b.RoomNumber,
			b.CheckIn.Format(models.DateLayout), b.CheckOut.Format(models.DateLayout),
			b.Nights, b.Guests, string(b.Status), string(b.PaymentStatus), b.TotalPrice,
			b.RefundStatus(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetBookings, cell, &row); err != nil {
			return fmt.Errorf("failed to write booking %d: %w", b.ID, err)
		}
	}

	_ = f.SetColWidth(sheetBookings, "A", "A", 8)
	_ = f.SetColWidth(sheetBookings, "B", "B", 36)
	_ = f.SetColWidth(sheetBookings, "C", "L", 14)
	return nil
}

// writeOccupancy lays rooms out as rows and nights as columns. A cell holds
// the booking that occupies the room that night.
func writeOccupancy(f *excelize.File, rooms []*models.Room, bookings []*models.Booking, from, to time.Time) error {
	_ = f.SetCellValue(sheetOccupancy, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format("02.01.2006"), to.Format("02.01.2006")))

	dateCols := make(map[string]int)
	col := 2
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheetOccupancy, cell, d.Format("02.01"))
		dateCols[d.Format(models.DateLayout)] = col
		col++
	}

	styles := make(map[models.BookingStatus]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		})
		if err != nil {
			return fmt.Errorf("failed to create status style: %w", err)
		}
		styles[status] = id
	}

	rowOf := make(map[int64]int, len(rooms))
	for i, room := range rooms {
		row := i + 3
		rowOf[room.ID] = row
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheetOccupancy, cell, fmt.Sprintf("%s (%s)", room.Number, room.Status))
	}

	for _, b := range bookings {
		if b.RoomID == nil || b.Status == models.BookingCancelled {
			continue
		}
		row, ok := rowOf[*b.RoomID]
		if !ok {
			continue
		}
		for d := b.CheckIn; d.Before(b.CheckOut); d = d.AddDate(0, 0, 1) {
			c, ok := dateCols[d.Format(models.DateLayout)]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c, row)
			_ = f.SetCellValue(sheetOccupancy, cell, fmt.Sprintf("#%d %s", b.ID, b.Status))
			_ = f.SetCellStyle(sheetOccupancy, cell, cell, styles[b.Status])
		}
	}

	_ = f.SetColWidth(sheetOccupancy, "A", "A", 18)
	lastCol, _ := excelize.ColumnNumberToName(col)
	_ = f.SetColWidth(sheetOccupancy, "B", lastCol, 16)
	return nil
}
