package service

import (
	"context"
	"fmt"
	"time"

	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"

	"github.com/rs/zerolog"
)

const (
	kindBooking = "booking"
	kindTravel  = "travel"

	actorSystem = "system"
)

// sideEffects bundles the best-effort collaborators every service writes to
// after its transaction commits. None of them can fail the caller.
type sideEffects struct {
	side     domain.SideChannel
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func newSideEffects(side domain.SideChannel, eventBus domain.EventPublisher, logger *zerolog.Logger) sideEffects {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return sideEffects{side: side, eventBus: eventBus, logger: logger}
}

func bookingPayload(b *models.Booking, previous models.BookingStatus, actor, reason string) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:      b.ID,
		Kind:           kindBooking,
		CustomerID:     b.CustomerID,
		RoomNumber:     b.RoomNumber,
		Status:         string(b.Status),
		PreviousStatus: string(previous),
		Actor:          actor,
		Reason:         reason,
		At:             time.Now(),
	}
}

func travelPayload(tb *models.TravelBooking, previous models.TravelStatus, actor, reason string) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:      tb.ID,
		Kind:           kindTravel,
		CustomerID:     tb.CustomerID,
		Status:         string(tb.Status),
		PreviousStatus: string(previous),
		Actor:          actor,
		Reason:         reason,
		At:             time.Now(),
	}
}

func (e sideEffects) publishEvent(eventType string, payload events.BookingEventPayload) {
	if e.eventBus == nil {
		return
	}
	if err := e.eventBus.PublishJSON(eventType, payload); err != nil {
		e.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", payload.BookingID).Msg("publish event error")
	}
}

func (e sideEffects) enqueue(ctx context.Context, task models.SideTask) {
	if e.side == nil {
		return
	}
	if err := e.side.Enqueue(ctx, task); err != nil {
		metrics.IncSideTask(task.Type, "enqueue_error")
		e.logger.Error().Err(err).Int64("booking_id", task.BookingID).Str("task", task.Type).Msg("side task enqueue error")
	}
}

func (e sideEffects) audit(ctx context.Context, bookingID int64, action, actor, details string) {
	if actor == "" {
		actor = actorSystem
	}
	e.enqueue(ctx, models.SideTask{
		Type:      models.SideTaskAudit,
		BookingID: bookingID,
		Audit: &models.AuditEntry{
			BookingID: bookingID,
			Action:    action,
			Actor:     actor,
			Details:   details,
			CreatedAt: time.Now(),
		},
	})
}

func (e sideEffects) paymentStatus(ctx context.Context, bookingID int64, status models.PaymentStatus) {
	e.enqueue(ctx, models.SideTask{
		Type:      models.SideTaskPaymentStatus,
		BookingID: bookingID,
		Payment:   &models.Payment{BookingID: bookingID, Status: status},
	})
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}
