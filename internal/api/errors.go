package api

import (
	"errors"
	"fmt"
)

// NetworkError means the request never produced an HTTP response
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError means the backend answered with a non-2xx status
type StatusError struct {
	Op     string
	Status int
	Detail string // server-provided message, if any
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
}

// MalformedResponseError means a 2xx response was missing required fields or
// could not be decoded
type MalformedResponseError struct {
	Op     string
	Reason string
	Detail string // server-provided message, if any
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a NetworkError
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Detail returns the server-provided message carried by err, if any
func Detail(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Detail
	}
	var me *MalformedResponseError
	if errors.As(err, &me) {
		return me.Detail
	}
	return ""
}
