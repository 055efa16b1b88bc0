package models

import "time"

const (
	AuditCheckIn        = "check_in"
	AuditCheckOut       = "check_out"
	AuditCancel         = "cancel"
	AuditStatusOverride = "status_override"
	AuditOverdueClosed  = "overdue_closed"
	AuditRefundApproved = "refund_approved"
	AuditRefundDeclined = "refund_declined"
)

type AuditEntry struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is a staff-facing message handed to the notification sink.
type Notification struct {
	BookingID int64  `json:"booking_id,omitempty"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
}
