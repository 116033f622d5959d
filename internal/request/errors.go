package request

import (
	"errors"
	"fmt"
)

var ErrStatus = errors.New("request: unexpected status")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request: %s %s: status %d", e.Method, e.URL, e.Code)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }
