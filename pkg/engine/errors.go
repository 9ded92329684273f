package engine

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// ErrNotConnected is wrapped by ConnectivityError when no session is open.
var ErrNotConnected = errors.New("not connected to the engine")

// ConnectivityError means the engine could not be reached: no session,
// a broken connection or a transport-level timeout. The shell drops the
// session and asks the operator to reconnect.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: engine unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// APIError is a well-formed request the engine rejected. Message is the
// engine's own text and is shown to the operator unchanged.
type APIError struct {
	Op      string
	Code    codes.Code
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsConnectivity reports whether err is, or wraps, a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// Errorf builds an APIError for engine implementations.
func Errorf(code codes.Code, format string, args ...any) *APIError {
	return &APIError{Code: code, Message: fmt.Sprintf(format, args...)}
}
