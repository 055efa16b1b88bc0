package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"innkeeper/internal/config"
	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"

	"github.com/rs/zerolog"
)

// RefundService runs the cancellation/refund approval workflow for room and
// travel bookings. Requests never change the booking status; only an
// approval cancels.
type RefundService struct {
	bookings domain.BookingStore
	travel   domain.TravelStore
	cfg      config.BookingConfig
	now      func() time.Time
	sideEffects
}

func NewRefundService(
	bookings domain.BookingStore,
	travel domain.TravelStore,
	side domain.SideChannel,
	eventBus domain.EventPublisher,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *RefundService {
	if cfg.TravelRefundMinDays < 0 {
		cfg.TravelRefundMinDays = models.DefaultTravelRefundMinDays
	}
	return &RefundService{
		bookings:    bookings,
		travel:      travel,
		cfg:         cfg,
		now:         time.Now,
		sideEffects: newSideEffects(side, eventBus, logger),
	}
}

// ParseRefundType accepts "booking" or "travel" in any casing.
func ParseRefundType(raw string) (string, error) {
	switch t := strings.ToLower(strings.TrimSpace(raw)); t {
	case models.RefundTypeBooking, models.RefundTypeTravel:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidType, raw)
}

func openRequest(r *models.RefundState, reason string, now time.Time) {
	r.RefundRequested = true
	r.RefundRequestedAt = &now
	r.RefundApproved = nil
	r.CancellationReason = strings.TrimSpace(reason)
}

func (s *RefundService) RequestCancellation(ctx context.Context, bookingID, customerID int64, reason string) (*models.Booking, error) {
	booking, err := s.bookings.UpdateBooking(ctx, bookingID, func(tx domain.BookingTx) error {
		b := tx.Booking()
		if b.CustomerID != customerID {
			return domain.ErrNotOwner
		}
		switch b.Status {
		case models.BookingCancelled:
			return domain.ErrAlreadyCancelled
		case models.BookingCheckedOut:
			return fmt.Errorf("%w: stay is already checked out", domain.ErrInvalidTransition)
		}
		openRequest(&b.RefundState, reason, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("booking_id", booking.ID).Int64("customer_id", customerID).Msg("cancellation requested")
	s.publishEvent(events.EventRefundRequested, bookingPayload(booking, booking.Status, fmt.Sprintf("customer:%d", customerID), booking.CancellationReason))
	return booking, nil
}

func (s *RefundService) RequestTravelRefund(ctx context.Context, travelID, customerID int64, reason string) (*models.TravelBooking, error) {
	today := models.DateOnly(s.now().In(s.cfg.Location()))
	tb, err := s.travel.UpdateTravelBooking(ctx, travelID, func(tb *models.TravelBooking) error {
		if tb.CustomerID != customerID {
			return domain.ErrNotOwner
		}
		if tb.Status == models.TravelCancelled {
			return domain.ErrAlreadyCancelled
		}
		if days := models.DaysUntil(today, tb.TravelDate); days < s.cfg.TravelRefundMinDays {
			return fmt.Errorf("%w: %d days left, %d required", domain.ErrTooCloseToTravelDate, days, s.cfg.TravelRefundMinDays)
		}
		openRequest(&tb.RefundState, reason, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("travel_id", tb.ID).Int64("customer_id", customerID).Msg("travel refund requested")
	s.publishEvent(events.EventRefundRequested, travelPayload(tb, tb.Status, fmt.Sprintf("customer:%d", customerID), tb.CancellationReason))
	return tb, nil
}

// RefundDecision is the outcome of an approve or decline, for either kind.
type RefundDecision struct {
	Type    string                `json:"type"`
	Booking *models.Booking       `json:"booking,omitempty"`
	Travel  *models.TravelBooking `json:"travel,omitempty"`
	Label   string                `json:"refund_status"`
}

func approve(r *models.RefundState, now time.Time) {
	approved := true
	r.RefundApproved = &approved
	r.RefundRequested = false
	r.RefundProcessedAt = &now
	if r.CancelledAt == nil {
		r.CancelledAt = &now
	}
}

func decline(r *models.RefundState, reason string) {
	declined := false
	r.RefundApproved = &declined
	r.RefundRequested = false
	r.CancelledAt = nil
	if reason = strings.TrimSpace(reason); reason != "" {
		r.CancellationReason = reason
	}
}

// ApproveRefund cancels the booking, marks its payment refunded and, for a
// guest still checked in, frees the room in the same transaction.
func (s *RefundService) ApproveRefund(ctx context.Context, id int64, refundType, actor string) (*RefundDecision, error) {
	refundType, err := ParseRefundType(refundType)
	if err != nil {
		return nil, err
	}

	if refundType == models.RefundTypeTravel {
		tb, err := s.travel.UpdateTravelBooking(ctx, id, func(tb *models.TravelBooking) error {
			if tb.RefundApproved != nil && *tb.RefundApproved {
				return domain.ErrAlreadyRefunded
			}
			approve(&tb.RefundState, s.now())
			tb.Status = models.TravelCancelled
			tb.PaymentStatus = models.PaymentRefunded
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info().Int64("travel_id", tb.ID).Str("actor", actor).Msg("travel refund approved")
		s.publishEvent(events.EventRefundApproved, travelPayload(tb, "", actor, tb.CancellationReason))
		return &RefundDecision{Type: refundType, Travel: tb, Label: models.RefundLabel(tb.RefundApproved)}, nil
	}

	var previous models.BookingStatus
	booking, err := s.bookings.UpdateBooking(ctx, id, func(tx domain.BookingTx) error {
		b := tx.Booking()
		previous = b.Status
		if b.RefundApproved != nil && *b.RefundApproved {
			return domain.ErrAlreadyRefunded
		}
		if b.Status == models.BookingCheckedOut {
			return fmt.Errorf("%w: stay is already checked out", domain.ErrInvalidTransition)
		}
		approve(&b.RefundState, s.now())
		b.Status = models.BookingCancelled
		b.PaymentStatus = models.PaymentRefunded
		if previous == models.BookingCheckedIn && b.RoomID != nil {
			return tx.SetRoomStatus(*b.RoomID, models.RoomAvailable)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(booking.Status))
	s.logger.Info().Int64("booking_id", booking.ID).Str("actor", actor).Msg("refund approved")
	s.paymentStatus(ctx, booking.ID, models.PaymentRefunded)
	s.audit(ctx, booking.ID, models.AuditRefundApproved, actor, booking.CancellationReason)
	s.publishEvent(events.EventRefundApproved, bookingPayload(booking, previous, actor, booking.CancellationReason))
	return &RefundDecision{Type: refundType, Booking: booking, Label: models.RefundLabel(booking.RefundApproved)}, nil
}

// DeclineRefund closes the request without cancelling. A checked-in guest
// stays checked in; anything else returns to confirmed.
func (s *RefundService) DeclineRefund(ctx context.Context, id int64, refundType, reason, actor string) (*RefundDecision, error) {
	refundType, err := ParseRefundType(refundType)
	if err != nil {
		return nil, err
	}

	if refundType == models.RefundTypeTravel {
		tb, err := s.travel.UpdateTravelBooking(ctx, id, func(tb *models.TravelBooking) error {
			if tb.Status == models.TravelCancelled {
				return fmt.Errorf("%w: travel booking is cancelled", domain.ErrInvalidTransition)
			}
			decline(&tb.RefundState, reason)
			tb.Status = models.TravelConfirmed
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info().Int64("travel_id", tb.ID).Str("actor", actor).Msg("travel refund declined")
		s.publishEvent(events.EventRefundDeclined, travelPayload(tb, "", actor, tb.CancellationReason))
		return &RefundDecision{Type: refundType, Travel: tb, Label: models.RefundLabel(tb.RefundApproved)}, nil
	}

	var previous models.BookingStatus
	booking, err := s.bookings.UpdateBooking(ctx, id, func(tx domain.BookingTx) error {
		b := tx.Booking()
		previous = b.Status
		if b.Status.IsTerminal() {
			return fmt.Errorf("%w: booking is %s", domain.ErrInvalidTransition, b.Status)
		}
		decline(&b.RefundState, reason)
		if b.Status != models.BookingCheckedIn {
			b.Status = models.BookingConfirmed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("booking_id", booking.ID).Str("actor", actor).Msg("refund declined")
	s.audit(ctx, booking.ID, models.AuditRefundDeclined, actor, booking.CancellationReason)
	s.publishEvent(events.EventRefundDeclined, bookingPayload(booking, previous, actor, booking.CancellationReason))
	return &RefundDecision{Type: refundType, Booking: booking, Label: models.RefundLabel(booking.RefundApproved)}, nil
}
