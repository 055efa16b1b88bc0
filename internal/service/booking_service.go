package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"innkeeper/internal/config"
	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxCodeAttempts bounds confirmation code regeneration after a collision.
const maxCodeAttempts = 5

// WarningLedgerDeferred is returned with a booking whose payment ledger row
// could not be written synchronously.
const WarningLedgerDeferred = "payment ledger write deferred"

type CreateBookingRequest struct {
	CustomerID      int64     `json:"customer_id"`
	RoomID          int64     `json:"room_id"`
	CheckIn         time.Time `json:"check_in"`
	CheckOut        time.Time `json:"check_out"`
	Guests          int       `json:"guests"`
	PaymentMethod   string    `json:"payment_method"`
	SpecialRequests string    `json:"special_requests"`
}

// CreateResult carries the stored booking plus any best-effort failures the
// caller should surface.
type CreateResult struct {
	Booking  *models.Booking `json:"booking"`
	Warnings []string        `json:"warnings,omitempty"`
}

type CheckInRequest struct {
	RoomNumber string `json:"room_number"`
	Notes      string `json:"notes"`
	Actor      string `json:"-"`
}

type CheckOutRequest struct {
	Action            string  `json:"action"`
	AdditionalCharges float64 `json:"additional_charges"`
	Actor             string  `json:"-"`
}

// CustomerBooking is a booking as its owner sees it.
type CustomerBooking struct {
	*models.Booking
	RefundLabel string `json:"refund_status,omitempty"`
}

type BookingService struct {
	store   domain.BookingStore
	ledger  domain.LedgerStore
	limiter domain.RateLimiter
	cfg     config.BookingConfig
	now     func() time.Time
	sideEffects
}

func NewBookingService(
	store domain.BookingStore,
	ledger domain.LedgerStore,
	side domain.SideChannel,
	eventBus domain.EventPublisher,
	limiter domain.RateLimiter,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.MaxStayNights <= 0 {
		cfg.MaxStayNights = models.DefaultMaxStayNights
	}
	if cfg.ConfirmationPrefix == "" {
		cfg.ConfirmationPrefix = models.DefaultConfirmationPrefix
	}
	return &BookingService{
		store:       store,
		ledger:      ledger,
		limiter:     limiter,
		cfg:         cfg,
		now:         time.Now,
		sideEffects: newSideEffects(side, eventBus, logger),
	}
}

// today is the hotel's calendar date.
func (s *BookingService) today() time.Time {
	return models.DateOnly(s.now().In(s.cfg.Location()))
}

func (s *BookingService) CheckAvailability(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error) {
	checkIn, checkOut = models.DateOnly(checkIn), models.DateOnly(checkOut)
	if !checkOut.After(checkIn) {
		return false, domain.ErrInvalidDateRange
	}
	return s.store.CheckAvailability(ctx, roomID, checkIn, checkOut)
}

func (s *BookingService) validateCreate(req *CreateBookingRequest) error {
	if req.CustomerID <= 0 {
		return validationError("customer_id is required")
	}
	if req.RoomID <= 0 {
		return validationError("room_id is required")
	}
	if req.CheckIn.IsZero() || req.CheckOut.IsZero() {
		return validationError("check_in and check_out are required")
	}
	req.CheckIn, req.CheckOut = models.DateOnly(req.CheckIn), models.DateOnly(req.CheckOut)
	if !req.CheckOut.After(req.CheckIn) {
		return domain.ErrInvalidDateRange
	}
	if req.Guests < 1 {
		return validationError("guests must be at least 1")
	}
	return nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, customerID int64) error {
	if s.limiter == nil || s.cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	key := "booking:" + strconv.FormatInt(customerID, 10)
	allowed, err := s.limiter.CheckRateLimit(ctx, key, s.cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		s.logger.Warn().Err(err).Int64("customer_id", customerID).Msg("rate limit check failed, allowing request")
		return nil
	}
	if !allowed {
		metrics.IncRateLimited()
		return domain.ErrRateLimited
	}
	return nil
}

// CreateBooking reserves a room for a date range. The availability predicate
// runs again inside the inserting transaction, so concurrent creators for the
// same room cannot both succeed.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateResult, error) {
	if err := s.validateCreate(&req); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	room, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if room.Type != nil && room.Type.MaxOccupancy > 0 && req.Guests > room.Type.MaxOccupancy {
		return nil, validationError("room %s takes at most %d guests", room.Number, room.Type.MaxOccupancy)
	}

	nights := models.Nights(req.CheckIn, req.CheckOut)
	if nights < 1 || nights > s.cfg.MaxStayNights {
		return nil, fmt.Errorf("%w: %d nights (max %d)", domain.ErrInvalidStayLength, nights, s.cfg.MaxStayNights)
	}

	available, err := s.store.CheckAvailability(ctx, room.ID, req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}
	if !available {
		metrics.IncConflict(domain.Kind(domain.ErrRoomUnavailable))
		return nil, domain.ErrRoomUnavailable
	}

	rate := room.EffectiveRate()
	roomID := room.ID
	booking := &models.Booking{
		CustomerID:      req.CustomerID,
		RoomID:          &roomID,
		RoomNumber:      room.Number,
		CheckIn:         req.CheckIn,
		CheckOut:        req.CheckOut,
		Guests:          req.Guests,
		Nights:          nights,
		NightlyRate:     rate,
		TotalPrice:      float64(nights) * rate,
		Status:          models.BookingConfirmed,
		PaymentStatus:   models.PaymentPaid,
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		SpecialRequests: strings.TrimSpace(req.SpecialRequests),
	}

	for attempt := 1; ; attempt++ {
		booking.ConfirmationCode = s.confirmationCode(req.CustomerID, room.ID)
		err = s.store.CreateBookingWithLock(ctx, booking)
		if !errors.Is(err, domain.ErrDuplicateConfirmationCode) || attempt >= maxCodeAttempts {
			break
		}
		s.logger.Warn().Int("attempt", attempt).Msg("confirmation code collision, regenerating")
	}
	if err != nil {
		if errors.Is(err, domain.ErrRoomUnavailable) {
			metrics.IncConflict(domain.Kind(err))
		}
		return nil, err
	}

	metrics.IncTransition(string(booking.Status))
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("customer_id", booking.CustomerID).
		Str("room", room.Number).
		Str("code", booking.ConfirmationCode).
		Msg("booking created")
	s.publishEvent(events.EventBookingCreated, bookingPayload(booking, "", actorSystem, ""))

	result := &CreateResult{Booking: booking}
	if warning := s.recordPayment(ctx, booking); warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	return result, nil
}

// recordPayment mirrors the booking into the ledger. A failed write is queued
// for retry and reported as a warning; the booking stands either way.
func (s *BookingService) recordPayment(ctx context.Context, booking *models.Booking) string {
	payment := &models.Payment{
		BookingID:     booking.ID,
		Amount:        booking.TotalPrice,
		Method:        booking.PaymentMethod,
		Status:        models.PaymentPaid,
		TransactionID: uuid.NewString(),
	}
	if s.ledger != nil {
		err := s.ledger.CreatePayment(ctx, payment)
		if err == nil {
			return ""
		}
		s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("payment ledger write failed, queued for retry")
	}
	s.enqueue(ctx, models.SideTask{Type: models.SideTaskPayment, BookingID: booking.ID, Payment: payment})
	return WarningLedgerDeferred
}

func (s *BookingService) confirmationCode(customerID, roomID int64) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%d-%d-%s-%s",
		s.cfg.ConfirmationPrefix, customerID, roomID, s.now().UTC().Format("20060102150405"), suffix)
}

// CheckIn moves a booking to checked_in and marks its room occupied in one
// transaction. An explicit room number reassigns the booking first.
func (s *BookingService) CheckIn(ctx context.Context, bookingID int64, req CheckInRequest) (*models.Booking, error) {
	number := strings.TrimSpace(req.RoomNumber)
	var previous models.BookingStatus

	booking, err := s.store.UpdateBooking(ctx, bookingID, func(tx domain.BookingTx) error {
		b := tx.Booking()
		previous = b.Status
		if b.Status == models.BookingCheckedIn {
			return domain.ErrAlreadyCheckedIn
		}
		if b.Status.IsTerminal() {
			return fmt.Errorf("%w: booking is %s", domain.ErrInvalidTransition, b.Status)
		}

		var room *models.Room
		if number != "" {
			var err error
			room, err = tx.RoomByNumber(number)
			if err != nil {
				return err
			}
			if room.Status == models.RoomOccupied {
				return domain.ErrRoomOccupied
			}
			overlap, err := tx.HasOverlap(room.ID, b.CheckIn, b.CheckOut, b.ID)
			if err != nil {
				return err
			}
			if overlap {
				return fmt.Errorf("%w: room %s is booked for these dates", domain.ErrRoomOccupied, room.Number)
			}
			b.RoomID = &room.ID
		} else {
			var err error
			room, err = tx.Room()
			if err != nil {
				return err
			}
			if room == nil {
				return domain.ErrRoomRequired
			}
			if room.Status == models.RoomOccupied {
				return domain.ErrRoomOccupied
			}
		}

		now := s.now()
		b.Status = models.BookingCheckedIn
		b.PaymentStatus = models.PaymentPaid
		b.CheckedInAt = &now
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			b.Notes = notes
		}
		return tx.SetRoomStatus(room.ID, models.RoomOccupied)
	})
	if err != nil {
		s.countConflict(err)
		return nil, err
	}

	metrics.IncTransition(string(booking.Status))
	s.logger.Info().Int64("booking_id", booking.ID).Str("room", booking.RoomNumber).Msg("guest checked in")
	s.audit(ctx, booking.ID, models.AuditCheckIn, req.Actor, "room "+booking.RoomNumber)
	s.publishEvent(events.EventBookingCheckedIn, bookingPayload(booking, previous, req.Actor, ""))
	return booking, nil
}

// CheckOut closes a stay (action checkout) or cancels the booking (action
// cancel). Either way a room held by a checked-in guest becomes available.
func (s *BookingService) CheckOut(ctx context.Context, bookingID int64, req CheckOutRequest) (*models.Booking, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action == "" {
		action = models.CheckOutActionCheckout
	}
	if req.AdditionalCharges < 0 {
		return nil, validationError("additional_charges cannot be negative")
	}
	var previous models.BookingStatus

	booking, err := s.store.UpdateBooking(ctx, bookingID, func(tx domain.BookingTx) error {
		b := tx.Booking()
		previous = b.Status
		if b.Status.IsTerminal() {
			return fmt.Errorf("%w: booking is %s", domain.ErrInvalidTransition, b.Status)
		}

		now := s.now()
		switch action {
		case models.CheckOutActionCancel:
			b.Status = models.BookingCancelled
			b.PaymentStatus = models.PaymentCancelled
			if b.CancelledAt == nil {
				b.CancelledAt = &now
			}
		case models.CheckOutActionCheckout:
			b.Status = models.BookingCheckedOut
			b.AdditionalCharges += req.AdditionalCharges
			b.TotalPrice += req.AdditionalCharges
			b.CheckedOutAt = &now
		default:
			return validationError("unknown action %q", req.Action)
		}

		if previous == models.BookingCheckedIn && b.RoomID != nil {
			return tx.SetRoomStatus(*b.RoomID, models.RoomAvailable)
		}
		return nil
	})
	if err != nil {
		s.countConflict(err)
		return nil, err
	}

	metrics.IncTransition(string(booking.Status))
	if booking.Status == models.BookingCancelled {
		s.audit(ctx, booking.ID, models.AuditCancel, req.Actor, "")
		s.paymentStatus(ctx, booking.ID, models.PaymentCancelled)
		s.publishEvent(events.EventBookingCancelled, bookingPayload(booking, previous, req.Actor, ""))
	} else {
		s.audit(ctx, booking.ID, models.AuditCheckOut, req.Actor,
			fmt.Sprintf("additional charges %.2f, total %.2f", req.AdditionalCharges, booking.TotalPrice))
		s.publishEvent(events.EventBookingCheckedOut, bookingPayload(booking, previous, req.Actor, ""))
	}
	s.logger.Info().Int64("booking_id", booking.ID).Str("status", string(booking.Status)).Msg("booking closed")
	return booking, nil
}

// UpdateStatus is the administrative override. It skips the transition
// guards and never touches the room.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID int64, rawStatus, actor string) (*models.Booking, error) {
	status, err := models.ParseBookingStatus(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	var previous models.BookingStatus

	booking, err := s.store.UpdateBooking(ctx, bookingID, func(tx domain.BookingTx) error {
		b := tx.Booking()
		previous = b.Status
		b.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(status))
	s.logger.Warn().
		Int64("booking_id", booking.ID).
		Str("from", string(previous)).
		Str("to", string(status)).
		Str("actor", actor).
		Msg("booking status overridden")
	s.audit(ctx, booking.ID, models.AuditStatusOverride, actor, fmt.Sprintf("%s -> %s", previous, status))
	s.publishEvent(events.EventBookingOverridden, bookingPayload(booking, previous, actor, ""))
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) ListForCustomer(ctx context.Context, customerID int64) ([]CustomerBooking, error) {
	if customerID <= 0 {
		return nil, validationError("customer id is required")
	}
	list, err := s.store.ListBookings(ctx, models.BookingFilter{CustomerID: customerID, Limit: models.DefaultListLimit})
	if err != nil {
		return nil, err
	}
	out := make([]CustomerBooking, 0, len(list))
	for _, b := range list {
		out = append(out, CustomerBooking{Booking: b, RefundLabel: b.RefundStatus()})
	}
	return out, nil
}

func (s *BookingService) ListAudit(ctx context.Context, bookingID int64) ([]*models.AuditEntry, error) {
	if _, err := s.store.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.ledger.ListAuditEntries(ctx, bookingID)
}

func (s *BookingService) ListPayments(ctx context.Context, bookingID int64) ([]*models.Payment, error) {
	if _, err := s.store.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.ledger.ListPayments(ctx, bookingID)
}

func (s *BookingService) countConflict(err error) {
	switch {
	case errors.Is(err, domain.ErrRoomOccupied),
		errors.Is(err, domain.ErrAlreadyCheckedIn),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrentModification):
		metrics.IncConflict(domain.Kind(err))
	}
}
