package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/models"

	"github.com/rs/zerolog"
)

type CreateTravelRequest struct {
	CustomerID     int64     `json:"customer_id"`
	AttractionName string    `json:"attraction_name"`
	TravelDate     time.Time `json:"travel_date"`
	Guests         int       `json:"guests"`
	TotalPrice     float64   `json:"total_price"`
}

// CustomerTravel is a travel booking as its owner sees it.
type CustomerTravel struct {
	*models.TravelBooking
	RefundLabel string `json:"refund_status,omitempty"`
}

type TravelService struct {
	store domain.TravelStore
	sideEffects
}

func NewTravelService(store domain.TravelStore, eventBus domain.EventPublisher, logger *zerolog.Logger) *TravelService {
	return &TravelService{store: store, sideEffects: newSideEffects(nil, eventBus, logger)}
}

func (s *TravelService) Create(ctx context.Context, req CreateTravelRequest) (*models.TravelBooking, error) {
	name := strings.TrimSpace(req.AttractionName)
	switch {
	case req.CustomerID <= 0:
		return nil, validationError("customer_id is required")
	case name == "":
		return nil, validationError("attraction_name is required")
	case req.TravelDate.IsZero():
		return nil, validationError("travel_date is required")
	case req.Guests < 1:
		return nil, validationError("guests must be at least 1")
	case req.TotalPrice < 0:
		return nil, validationError("total_price cannot be negative")
	}

	tb := &models.TravelBooking{
		CustomerID:     req.CustomerID,
		AttractionName: name,
		TravelDate:     models.DateOnly(req.TravelDate),
		Guests:         req.Guests,
		TotalPrice:     req.TotalPrice,
		Status:         models.TravelPending,
		PaymentStatus:  models.PaymentPaid,
	}
	if err := s.store.CreateTravelBooking(ctx, tb); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("travel_id", tb.ID).Int64("customer_id", tb.CustomerID).Str("attraction", tb.AttractionName).Msg("travel booking created")
	s.publishEvent(events.EventBookingCreated, travelPayload(tb, "", actorSystem, ""))
	return tb, nil
}

func (s *TravelService) Get(ctx context.Context, id int64) (*models.TravelBooking, error) {
	return s.store.GetTravelBooking(ctx, id)
}

func (s *TravelService) ListForCustomer(ctx context.Context, customerID int64) ([]CustomerTravel, error) {
	if customerID <= 0 {
		return nil, validationError("customer id is required")
	}
	list, err := s.store.ListTravelBookings(ctx, customerID)
	if err != nil {
		return nil, err
	}
	out := make([]CustomerTravel, 0, len(list))
	for _, tb := range list {
		out = append(out, CustomerTravel{TravelBooking: tb, RefundLabel: tb.RefundStatus()})
	}
	return out, nil
}

// UpdateStatus is the administrative override for excursions.
func (s *TravelService) UpdateStatus(ctx context.Context, id int64, rawStatus, actor string) (*models.TravelBooking, error) {
	status, err := models.ParseTravelStatus(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	var previous models.TravelStatus
	tb, err := s.store.UpdateTravelBooking(ctx, id, func(tb *models.TravelBooking) error {
		previous = tb.Status
		tb.Status = status
		if status == models.TravelCancelled && tb.CancelledAt == nil {
			now := time.Now()
			tb.CancelledAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn().Int64("travel_id", tb.ID).Str("from", string(previous)).Str("to", string(status)).Str("actor", actor).Msg("travel status overridden")
	s.publishEvent(events.EventBookingOverridden, travelPayload(tb, previous, actor, ""))
	return tb, nil
}
