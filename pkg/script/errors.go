package script

import (
	"fmt"
	"strings"
)

// ConfigError is raised by the script itself (fail) or by a misuse of
// the script language the operator can fix. Only the message is shown.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// SyntaxError is a script that does not parse. It is reported before
// any engine call.
type SyntaxError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
}

// NameError is a reference to a script name nothing was bound to.
type NameError struct {
	Name string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("name %q is not defined", e.Name)
}

// Frame is one entry of a script trace.
type Frame struct {
	File   string
	Line   int
	Func   string
	Source string
}

// ScriptError is an unexpected failure while executing a script. Trace
// holds only frames inside the script, outermost first.
type ScriptError struct {
	Trace []Frame
	Err   error
}

func (e *ScriptError) Error() string {
	var b strings.Builder
	b.WriteString("Unhandled error in the script (most recent call last)\n")
	for _, f := range e.Trace {
		fmt.Fprintf(&b, "  %s:%d, in %s\n", f.File, f.Line, f.Func)
		if src := strings.TrimSpace(f.Source); src != "" {
			fmt.Fprintf(&b, "    %s\n", src)
		}
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// trimTrace drops frames from the front of stack until the first frame
// that belongs to file.
func trimTrace(stack []Frame, file string) []Frame {
	for i, f := range stack {
		if f.File == file {
			return append([]Frame(nil), stack[i:]...)
		}
	}
	return nil
}
