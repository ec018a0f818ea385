package failure

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the watch loop reacts to it
type Kind int

const (
	// KindConfiguration covers bad backup paths and unwatchable roots
	KindConfiguration Kind = iota + 1
	// KindIO covers copy failures and other filesystem errors
	KindIO
	// KindNotification covers transient errors from the notification subsystem
	KindNotification
	// KindCommand covers trigger command execution failures
	KindCommand
)

// String returns the kind name used in log lines
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindIO:
		return "io"
	case KindNotification:
		return "notification"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Error carries a kind, the failing operation and the underlying cause
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// Sentinels for errors.Is matching by kind
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrIO            = &Error{Kind: KindIO}
	ErrNotification  = &Error{Kind: KindNotification}
	ErrCommand       = &Error{Kind: KindCommand}
)

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		if msg != "" {
			msg += " "
		}
		msg += e.Path
	}
	if e.Err != nil {
		if msg != "" {
			return fmt.Sprintf("%s: %v", msg, e.Err)
		}
		return e.Err.Error()
	}
	if msg == "" {
		return e.Kind.String() + " error"
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// Configuration returns a configuration error
func Configuration(op, path string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Path: path, Err: err}
}

// IO returns an I/O error
func IO(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Notification returns a notification subsystem error
func Notification(op string, err error) error {
	return &Error{Kind: KindNotification, Op: op, Err: err}
}

// Command returns a command execution error
func Command(op, path string, err error) error {
	return &Error{Kind: KindCommand, Op: op, Path: path, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
