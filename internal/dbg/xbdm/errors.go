package xbdm

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost is returned once the transport has failed or the
	// session was closed. The session is unusable afterwards.
	ErrConnectionLost = errors.New("xbdm: connection lost")
	// ErrProtocol covers malformed responses, unexpected status codes and
	// record field mismatches. The session stays usable.
	ErrProtocol = errors.New("xbdm: protocol error")
	// ErrAddressInvalid reports an unmapped target page.
	ErrAddressInvalid = errors.New("xbdm: address invalid")
	// ErrNotFound reports a lookup that has no result.
	ErrNotFound = errors.New("xbdm: not found")

	// ErrSessionBusy is returned when a command is sent while the previous
	// response has not been drained.
	ErrSessionBusy = fmt.Errorf("%w: previous response not drained", ErrProtocol)
)

// StatusError is returned by strict commands that got a non-success status.
type StatusError struct {
	Command  string
	Response Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("xbdm: %q failed: %d- %s", e.Command, e.Response.Code, e.Response.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrProtocol:
		return true
	case ErrNotFound:
		switch e.Response.Code {
		case CodeFileNotFound, CodeNoSuchModule, CodeNoSuchThread:
			return true
		}
	case ErrAddressInvalid:
		return e.Response.Code == CodeMemoryNotMapped
	}
	return false
}

// FieldError is returned by Record accessors when a field is missing or
// holds a different kind of value than requested.
type FieldError struct {
	Key  string
	Want Kind
	Got  Kind
}

func (e *FieldError) Error() string {
	if e.Got == KindNone {
		return fmt.Sprintf("xbdm: field %q missing", e.Key)
	}
	return fmt.Sprintf("xbdm: field %q is %s, want %s", e.Key, e.Got, e.Want)
}

func (e *FieldError) Unwrap() error {
	return ErrProtocol
}

func connLost(err error) error {
	if err == nil || errors.Is(err, ErrConnectionLost) {
		return ErrConnectionLost
	}
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}
