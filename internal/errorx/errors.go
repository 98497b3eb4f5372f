// README: Shared error taxonomy; every caller-visible failure maps to one of these kinds.
package errorx

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrGone               = errors.New("gone")
	ErrLocked             = errors.New("locked")
	ErrPaymentDeclined    = errors.New("payment declined")
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Kind returns the stable machine-checkable name for a taxonomy error,
// or "internal" for anything outside the taxonomy.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrGone):
		return "gone"
	case errors.Is(err, ErrLocked):
		return "locked"
	case errors.Is(err, ErrPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrGone):
		return http.StatusGone
	case errors.Is(err, ErrLocked):
		return http.StatusLocked
	case errors.Is(err, ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
