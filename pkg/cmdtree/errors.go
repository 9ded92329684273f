package cmdtree

import "fmt"

// UserError is malformed input: no matching command, a missing or
// invalid argument, or trailing characters. It is reported inline and
// never has side effects.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string {
	return e.Msg
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func userErrorf(format string, args ...any) *UserError {
	return &UserError{Msg: fmt.Sprintf(format, args...)}
}

// InternalError is a contract violation inside the shell itself, such as
// a template naming an unknown placeholder. It is never caused by input.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Msg
}

func internalErrorf(format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}
