package api

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks request-shape problems that map to HTTP 400.
var ErrInvalidRequest = errors.New("invalid encode request")

// fieldError names the request field that failed validation.
type fieldError struct {
	param string
	msg   string
}

func (e *fieldError) Error() string { return e.param + ": " + e.msg }

func (e *fieldError) Unwrap() error { return ErrInvalidRequest }

func invalidField(param, format string, args ...any) error {
	return &fieldError{param: param, msg: fmt.Sprintf(format, args...)}
}

// paramOf returns the offending field of a request error, or "".
func paramOf(err error) string {
	var fe *fieldError
	if errors.As(err, &fe) {
		return fe.param
	}
	return ""
}
