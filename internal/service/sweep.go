package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"
)

// errNotOverdue marks a booking that left checked_in (or got extended)
// between the overdue query and its own transaction.
var errNotOverdue = errors.New("booking is no longer overdue")

// SweepOverdue closes every checked-in stay whose checkout date has passed.
// Each booking gets its own transaction, so one bad row never blocks the rest,
// and a second run finds nothing to do.
func (s *BookingService) SweepOverdue(ctx context.Context) (models.SweepReport, error) {
	var report models.SweepReport
	today := s.today()

	ids, err := s.store.ListOverdueCheckedIn(ctx, today, s.cfg.SweepInclusiveToday)
	if err != nil {
		return report, err
	}

	for _, id := range ids {
		report.Examined++
		booking, err := s.closeOverdue(ctx, id, today)
		switch {
		case errors.Is(err, errNotOverdue):
			report.Skipped++
			metrics.IncSweep("skipped")
			continue
		case err != nil:
			report.Failed++
			metrics.IncSweep("failed")
			s.logger.Error().Err(err).Int64("booking_id", id).Msg("overdue sweep failed for booking")
			continue
		}

		if booking.Status == models.BookingCancelled {
			report.Cancelled++
		} else {
			report.Closed++
		}
		report.Swept = append(report.Swept, booking.ID)
		metrics.IncSweep(string(booking.Status))
		metrics.IncTransition(string(booking.Status))
		s.audit(ctx, booking.ID, models.AuditOverdueClosed, actorSystem,
			fmt.Sprintf("checkout date %s passed, closed as %s", booking.CheckOut.Format(models.DateLayout), booking.Status))
		s.publishEvent(events.EventBookingOverdueSwept, bookingPayload(booking, models.BookingCheckedIn, actorSystem, ""))
	}

	if report.Total() > 0 || report.Failed > 0 {
		s.logger.Info().
			Int("closed", report.Closed).
			Int("cancelled", report.Cancelled).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("overdue sweep finished")
	}
	return report, nil
}

// closeOverdue tries checked_out first and falls back to cancelled only when
// the store refuses the checked_out value itself.
func (s *BookingService) closeOverdue(ctx context.Context, id int64, today time.Time) (*models.Booking, error) {
	booking, err := s.store.UpdateBooking(ctx, id, s.overdueStep(today, models.BookingCheckedOut))
	if errors.Is(err, domain.ErrStatusRejected) {
		s.logger.Warn().Err(err).Int64("booking_id", id).Msg("store rejected checked_out, closing as cancelled")
		booking, err = s.store.UpdateBooking(ctx, id, s.overdueStep(today, models.BookingCancelled))
	}
	return booking, err
}

func (s *BookingService) overdueStep(today time.Time, target models.BookingStatus) func(domain.BookingTx) error {
	return func(tx domain.BookingTx) error {
		b := tx.Booking()
		if b.Status != models.BookingCheckedIn {
			return errNotOverdue
		}
		cutoff := models.DateOnly(b.CheckOut)
		if cutoff.After(today) || (cutoff.Equal(today) && !s.cfg.SweepInclusiveToday) {
			return errNotOverdue
		}

		now := s.now()
		b.Status = target
		if target == models.BookingCancelled {
			if b.CancelledAt == nil {
				b.CancelledAt = &now
			}
		} else {
			b.CheckedOutAt = &now
		}
		if b.RoomID != nil {
			return tx.SetRoomStatus(*b.RoomID, models.RoomAvailable)
		}
		return nil
	}
}

// sweepBeforeRead runs the sweep ahead of a reception read. A failed sweep
// is logged and the read goes ahead.
func (s *BookingService) sweepBeforeRead(ctx context.Context) models.SweepReport {
	report, err := s.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("overdue sweep before read failed")
	}
	return report
}

// ListForReception is the staff booking list. It sweeps first so overdue
// stays never show as checked in.
func (s *BookingService) ListForReception(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	s.sweepBeforeRead(ctx)
	if filter.Limit == 0 {
		filter.Limit = models.DefaultListLimit
	}
	return s.store.ListBookings(ctx, filter)
}

func (s *BookingService) CheckedIn(ctx context.Context) ([]*models.Booking, error) {
	s.sweepBeforeRead(ctx)
	return s.store.ListBookings(ctx, models.BookingFilter{
		Statuses: []models.BookingStatus{models.BookingCheckedIn},
		Limit:    models.DefaultListLimit,
	})
}

func (s *BookingService) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	report := s.sweepBeforeRead(ctx)
	today := s.today()

	rooms, err := s.store.CountRoomsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	holding := []models.BookingStatus{models.BookingPending, models.BookingConfirmed}
	arrivals, err := s.store.CountBookings(ctx, models.BookingFilter{CheckInOn: today, Statuses: holding})
	if err != nil {
		return nil, err
	}
	departures, err := s.store.CountBookings(ctx, models.BookingFilter{
		CheckOutOn: today,
		Statuses:   []models.BookingStatus{models.BookingCheckedIn},
	})
	if err != nil {
		return nil, err
	}
	checkedIn, err := s.store.CountBookings(ctx, models.BookingFilter{
		Statuses: []models.BookingStatus{models.BookingCheckedIn},
	})
	if err != nil {
		return nil, err
	}
	requested := true
	openRefunds, err := s.store.CountBookings(ctx, models.BookingFilter{RefundRequested: &requested})
	if err != nil {
		return nil, err
	}

	return &models.Dashboard{
		Date:            today.Format(models.DateLayout),
		Swept:           report.Total(),
		RoomsByStatus:   rooms,
		ArrivalsToday:   arrivals,
		DeparturesToday: departures,
		CheckedIn:       checkedIn,
		OpenRefunds:     openRefunds,
	}, nil
}
