package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected means the service answered with success=false.
	ErrRejected = errors.New("request rejected by service")
	// ErrMalformed means a success response lacked required fields.
	ErrMalformed = errors.New("malformed service response")
	// ErrStatus is wrapped by every StatusError.
	ErrStatus = errors.New("unexpected service status")
)

// StatusError is a non-2xx HTTP answer from the service.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "service status error"
	}
	return fmt.Sprintf("%s status %d: %s", e.Path, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrStatus
}
