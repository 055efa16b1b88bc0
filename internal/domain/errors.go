package domain

import "errors"

// Validation errors, rejected before any write.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidDateRange  = errors.New("check-out date must be after check-in date")
	ErrInvalidStayLength = errors.New("invalid stay length")
	ErrInvalidType       = errors.New("invalid refund type")
)

// Not-found errors.
var (
	ErrNotFound         = errors.New("booking not found")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomTypeNotFound = errors.New("room type not found")
)

// Conflict errors, detected inside the transaction that would otherwise commit.
var (
	ErrRoomUnavailable        = errors.New("room is not available for the requested dates")
	ErrAlreadyCheckedIn       = errors.New("booking is already checked in")
	ErrRoomOccupied           = errors.New("room is occupied")
	ErrRoomRequired           = errors.New("a room must be assigned before check-in")
	ErrNotOwner               = errors.New("booking belongs to another customer")
	ErrAlreadyCancelled       = errors.New("booking is already cancelled")
	ErrAlreadyRefunded        = errors.New("refund already approved")
	ErrTooCloseToTravelDate   = errors.New("too close to travel date")
	ErrInvalidTransition      = errors.New("status transition not allowed")
	ErrRoomTypeInUse          = errors.New("room type is referenced by rooms")
	ErrRoomInUse              = errors.New("room is referenced by bookings")
	ErrDuplicate              = errors.New("duplicate record")
	ErrRateLimited            = errors.New("too many booking requests")
	ErrConcurrentModification = errors.New("record was modified concurrently")
)

// Store-level signals used by narrow retries inside the engine.
var (
	// ErrStatusRejected means a constraint in the store refused the status value itself.
	ErrStatusRejected = errors.New("status value rejected by store constraint")
	// ErrDuplicateConfirmationCode means the generated code collided with an existing booking.
	ErrDuplicateConfirmationCode = errors.New("confirmation code already exists")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrValidation, "validation"},
	{ErrInvalidDateRange, "invalid_date_range"},
	{ErrInvalidStayLength, "invalid_stay_length"},
	{ErrInvalidType, "invalid_type"},
	{ErrNotFound, "not_found"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrRoomTypeNotFound, "room_type_not_found"},
	{ErrRoomUnavailable, "room_unavailable"},
	{ErrAlreadyCheckedIn, "already_checked_in"},
	{ErrRoomOccupied, "room_occupied"},
	{ErrRoomRequired, "room_required"},
	{ErrNotOwner, "not_owner"},
	{ErrAlreadyCancelled, "already_cancelled"},
	{ErrAlreadyRefunded, "already_refunded"},
	{ErrTooCloseToTravelDate, "too_close_to_travel_date"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrRoomTypeInUse, "room_type_in_use"},
	{ErrRoomInUse, "room_in_use"},
	{ErrDuplicate, "duplicate"},
	{ErrRateLimited, "rate_limited"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrStatusRejected, "status_rejected"},
	{ErrDuplicateConfirmationCode, "duplicate_confirmation_code"},
}

// Kind returns a stable label for err, "internal" for anything unknown.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
