package models

const (
	// CheckOutActionCheckout closes a stay normally.
	CheckOutActionCheckout = "checkout"
	// CheckOutActionCancel closes a booking as cancelled.
	CheckOutActionCancel = "cancel"
)

const (
	RefundTypeBooking = "booking"
	RefundTypeTravel  = "travel"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

const (
	// DefaultConfirmationPrefix starts every confirmation code.
	DefaultConfirmationPrefix = "HTL"

	// DefaultMaxStayNights caps a single booking.
	DefaultMaxStayNights = 30

	// DefaultTravelRefundMinDays is the minimum notice for an excursion refund.
	DefaultTravelRefundMinDays = 2

	// DefaultBookingRateLimit bookings per customer per window.
	DefaultBookingRateLimit = 10

	// DefaultBookingRateWindow in seconds.
	DefaultBookingRateWindow = 60

	// WorkerQueueSize in-memory outbox buffer.
	WorkerQueueSize = 128

	// DefaultListLimit for receptionist listings.
	DefaultListLimit = 200

	// DefaultExportRangeDays when no window is given to the exporter.
	DefaultExportRangeDays = 30
)
