package models

import (
	"fmt"
	"strings"
	"time"
)

// TravelStatus covers excursion bookings, which never allocate a room.
type TravelStatus string

const (
	TravelPending   TravelStatus = "pending"
	TravelConfirmed TravelStatus = "confirmed"
	TravelCancelled TravelStatus = "cancelled"
)

func ParseTravelStatus(raw string) (TravelStatus, error) {
	s := TravelStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s == "canceled" {
		s = TravelCancelled
	}
	switch s {
	case TravelPending, TravelConfirmed, TravelCancelled:
		return s, nil
	}
	return "", fmt.Errorf("invalid travel status: %q", raw)
}

type TravelBooking struct {
	ID             int64         `json:"id"`
	CustomerID     int64         `json:"customer_id"`
	AttractionName string        `json:"attraction_name"`
	TravelDate     time.Time     `json:"travel_date"`
	Guests         int           `json:"guests"`
	TotalPrice     float64       `json:"total_price"`
	Status         TravelStatus  `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	RefundState
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
