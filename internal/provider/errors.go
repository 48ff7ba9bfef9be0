package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SendError is returned by SendResponse.RaiseForStatus. It is implemented
// only by *ClientSendError and *ServerSendError.
type SendError interface {
	error
	sendError()
}

// ClientSendError reports a request the service understood and rejected,
// e.g. an invalid user key. Retrying will not help.
type ClientSendError struct {
	Status int
	Errors []string
}

func (e *ClientSendError) sendError() {}

func (e *ClientSendError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := []string{"client send error", fmt.Sprintf("status=%d", e.Status)}
	if len(e.Errors) > 0 {
		parts = append(parts, strings.Join(e.Errors, "; "))
	}
	return strings.Join(parts, ": ")
}

// ServerSendError reports that no usable status came back: a transport
// failure or a malformed service response.
type ServerSendError struct {
	Response RawResponse
}

func (e *ServerSendError) sendError() {}

func (e *ServerSendError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := []string{"server send error"}
	if e.Response.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Response.StatusCode))
	}
	if e.Response.Err != nil {
		parts = append(parts, e.Response.Err.Error())
	} else if e.Response.StatusCode == 0 {
		parts = append(parts, "no response received")
	} else {
		parts = append(parts, "unparseable response body")
	}
	return strings.Join(parts, ": ")
}

func (e *ServerSendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Response.Err
}

// IsTransient reports whether a fresh send of the same message may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var sendErr SendError
	if errors.As(err, &sendErr) {
		switch sendErr.(type) {
		case *ServerSendError:
			return true
		case *ClientSendError:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}
