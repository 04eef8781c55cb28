package odds

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pickforge/internal/domain"
)

// UpstreamError captures a failed call to the odds provider, with whatever
// status, detail and quota hints were available.
type UpstreamError struct {
	Status  int
	Detail  string
	Quota   domain.Quota
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = "odds provider request failed"
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s (status=%d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// AsUpstreamError attempts to unwrap an error into an UpstreamError
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr, true
	}
	return nil, false
}

func transportError(err error) *UpstreamError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &UpstreamError{Timeout: true, Detail: "odds provider timed out", Err: err}
	}
	return &UpstreamError{Detail: "odds provider unreachable", Err: err}
}
