package api

import (
	"errors"
	"net/http"

	"innkeeper/internal/domain"

	"google.golang.org/grpc/codes"
)

var errorClasses = []struct {
	errs   []error
	status int
	code   codes.Code
}{
	{
		errs:   []error{domain.ErrValidation, domain.ErrInvalidDateRange, domain.ErrInvalidStayLength, domain.ErrInvalidType},
		status: http.StatusBadRequest,
		code:   codes.InvalidArgument,
	},
	{
		errs:   []error{domain.ErrNotFound, domain.ErrRoomNotFound, domain.ErrRoomTypeNotFound},
		status: http.StatusNotFound,
		code:   codes.NotFound,
	},
	{
		errs:   []error{domain.ErrNotOwner},
		status: http.StatusForbidden,
		code:   codes.PermissionDenied,
	},
	{
		errs: []error{
			domain.ErrRoomUnavailable, domain.ErrAlreadyCheckedIn, domain.ErrRoomOccupied, domain.ErrRoomRequired,
			domain.ErrAlreadyCancelled, domain.ErrAlreadyRefunded, domain.ErrInvalidTransition,
			domain.ErrTooCloseToTravelDate, domain.ErrRoomTypeInUse, domain.ErrRoomInUse, domain.ErrDuplicate,
			domain.ErrConcurrentModification, domain.ErrStatusRejected,
		},
		status: http.StatusConflict,
		code:   codes.FailedPrecondition,
	},
	{
		errs:   []error{domain.ErrRateLimited},
		status: http.StatusTooManyRequests,
		code:   codes.ResourceExhausted,
	},
}

// classify maps a domain error to its HTTP status and gRPC code. Unknown
// errors are internal.
func classify(err error) (int, codes.Code) {
	for _, class := range errorClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.status, class.code
			}
		}
	}
	return http.StatusInternalServerError, codes.Internal
}
