package domain

import "errors"

// Domain errors. Request-level pick errors carry their wire code as message.
var (
	ErrNoPicks          = errors.New("no_picks")
	ErrBadPick          = errors.New("bad_pick")
	ErrInvalidBody      = errors.New("invalid_body")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUserNotRanked    = errors.New("user not ranked")
	ErrMissingAPIKey    = errors.New("odds api key is not configured")
	ErrInvalidRequest   = errors.New("invalid request")
)

// IsClientError checks if an error is a request-shape error
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoPicks) || errors.Is(err, ErrBadPick) || errors.Is(err, ErrInvalidBody)
}
