package xbdm

import (
	"fmt"
	"strconv"
	"strings"
)

// Status codes sent by the debug monitor.
const (
	CodeOK             = 200
	CodeConnected      = 201
	CodeMultiline      = 202
	CodeBinary         = 203
	CodeReadyForBinary = 204
	CodeDedicated      = 205

	CodeUnexpected      = 400
	CodeMaxConnections  = 401
	CodeFileNotFound    = 402
	CodeNoSuchModule    = 403
	CodeMemoryNotMapped = 404
	CodeNoSuchThread    = 405
	CodeUnknownCommand  = 407
	CodeNotStopped      = 408
)

// Status classifies a response.
type Status int

const (
	StatusConnectionLost Status = iota
	StatusSuccess
	StatusMultiline
	StatusBinary
	StatusFailed
)

var statusNames = []string{"connection lost", "success", "multiline", "binary", "error"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Response is the status line that starts every reply.
type Response struct {
	Code    int
	Message string
}

// Status returns the class of r. A zero Response means the connection
// was lost before a status line arrived.
func (r Response) Status() Status {
	switch {
	case r.Code == CodeMultiline:
		return StatusMultiline
	case r.Code == CodeBinary:
		return StatusBinary
	case r.Code >= 200 && r.Code < 300:
		return StatusSuccess
	case r.Code >= 300:
		return StatusFailed
	default:
		return StatusConnectionLost
	}
}

func (r Response) String() string {
	return fmt.Sprintf("%d- %s", r.Code, r.Message)
}

// parseResponse parses a status line such as "200- OK".
func parseResponse(line string) (Response, error) {
	if len(line) < 4 || line[3] != '-' {
		return Response{}, fmt.Errorf("%w: malformed status line %q", ErrProtocol, line)
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil || code < 100 {
		return Response{}, fmt.Errorf("%w: malformed status code %q", ErrProtocol, line)
	}
	return Response{Code: code, Message: strings.TrimSpace(line[4:])}, nil
}
