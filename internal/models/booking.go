package models

import (
	"fmt"
	"strings"
	"time"
)

// BookingStatus is the closed set of lifecycle states for a room booking.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingCheckedIn  BookingStatus = "checked_in"
	BookingCheckedOut BookingStatus = "checked_out"
	BookingCancelled  BookingStatus = "cancelled"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCheckedIn, BookingCheckedOut, BookingCancelled},
	BookingConfirmed:  {BookingCheckedIn, BookingCheckedOut, BookingCancelled},
	BookingCheckedIn:  {BookingCheckedOut, BookingCancelled},
	BookingCheckedOut: {},
	BookingCancelled:  {},
}

// AllBookingStatuses returns statuses in lifecycle order.
func AllBookingStatuses() []BookingStatus {
	return []BookingStatus{BookingPending, BookingConfirmed, BookingCheckedIn, BookingCheckedOut, BookingCancelled}
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// IsTerminal reports whether no guarded transition leaves s.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// HoldsRoom reports whether a booking in this status blocks its room's dates.
func (s BookingStatus) HoldsRoom() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCheckedIn:
		return true
	default:
		return false
	}
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus normalizes casing and separator drift
// ("Checked-In", "checked in", "CHECKED_IN") into the enumeration.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	if norm == "canceled" {
		norm = string(BookingCancelled)
	}
	s := BookingStatus(norm)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid booking status: %q", raw)
	}
	return s, nil
}

// PaymentStatus mirrors the ledger state of a booking's payment.
type PaymentStatus string

const (
	PaymentPaid      PaymentStatus = "paid"
	PaymentPending   PaymentStatus = "pending"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPaid, PaymentPending, PaymentRefunded, PaymentCancelled:
		return true
	}
	return false
}

// Refund label values shown to customers.
const (
	RefundLabelPending  = "Pending"
	RefundLabelApproved = "Approved"
	RefundLabelDeclined = "Declined"
)

// RefundLabel maps the tri-state refund decision to its customer-facing label.
func RefundLabel(approved *bool) string {
	switch {
	case approved == nil:
		return RefundLabelPending
	case *approved:
		return RefundLabelApproved
	default:
		return RefundLabelDeclined
	}
}

// RefundState groups the refund workflow columns shared by room and travel bookings.
type RefundState struct {
	RefundRequested    bool       `json:"refund_requested"`
	RefundRequestedAt  *time.Time `json:"refund_requested_at,omitempty"`
	RefundApproved     *bool      `json:"refund_approved"`
	RefundProcessedAt  *time.Time `json:"refund_processed_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

// RefundStatus returns the customer label, or empty when no refund was ever requested or decided.
func (r RefundState) RefundStatus() string {
	if !r.RefundRequested && r.RefundApproved == nil {
		return ""
	}
	return RefundLabel(r.RefundApproved)
}

type Booking struct {
	ID                int64         `json:"id"`
	CustomerID        int64         `json:"customer_id"`
	RoomID            *int64        `json:"room_id"`
	RoomNumber        string        `json:"room_number,omitempty"`
	CheckIn           time.Time     `json:"check_in"`
	CheckOut          time.Time     `json:"check_out"`
	Guests            int           `json:"guests"`
	Nights            int           `json:"nights"`
	NightlyRate       float64       `json:"nightly_rate"`
	TotalPrice        float64       `json:"total_price"`
	AdditionalCharges float64       `json:"additional_charges"`
	Status            BookingStatus `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	PaymentMethod     string        `json:"payment_method"`
	ConfirmationCode  string        `json:"confirmation_code"`
	SpecialRequests   string        `json:"special_requests,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	RefundState
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Version      int64      `json:"version"`
}

// Overlaps applies the half-open interval test against [checkIn, checkOut).
func (b *Booking) Overlaps(checkIn, checkOut time.Time) bool {
	return b.CheckOut.After(checkIn) && b.CheckIn.Before(checkOut)
}

// BookingFilter narrows receptionist and customer listings. Zero values are ignored.
type BookingFilter struct {
	CustomerID      int64
	RoomID          int64
	Statuses        []BookingStatus
	From            time.Time
	To              time.Time
	CheckInOn       time.Time
	CheckOutOn      time.Time
	RefundRequested *bool
	Limit           uint64
}
