package cdptab

import (
	"errors"
	"fmt"
)

// Error types.
var (
	// ErrChannelClosed is the error returned when the session's command
	// channel closes before a command result arrives.
	ErrChannelClosed = errors.New("channel closed")

	// ErrPageClosed is the error returned when an operation is attempted
	// on, or interrupted by, a closed page.
	ErrPageClosed = errors.New("page closed")

	// ErrPageCrashed is the fatal error emitted as an EventError payload
	// when the tab's renderer crashes. The page is unusable afterwards.
	ErrPageCrashed = errors.New("page crashed")
)

// UsageError is the error returned for invalid caller input: a missing main
// frame, a duplicate binding name, an unknown dialog type, paper format,
// media type or unit, or an unsupported screenshot encoding. Usage errors
// are surfaced synchronously and never retried.
type UsageError struct {
	Msg string
}

// Error satisfies the error interface.
func (e *UsageError) Error() string {
	return e.Msg
}

func usagef(format string, v ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, v...)}
}

// ErrNoMainFrame is the usage error returned when an operation requires a
// main frame and the frame tree has none.
var ErrNoMainFrame error = &UsageError{Msg: "no main frame"}

// NavigationError is the error returned when a navigation fails: the
// navigate command reported an error text, the navigating frame was
// detached, or the page was torn down mid-navigation.
type NavigationError struct {
	URL    string
	Reason string
}

// Error satisfies the error interface.
func (e *NavigationError) Error() string {
	if e.URL == "" {
		return "navigation failed: " + e.Reason
	}
	return fmt.Sprintf("navigation to %q failed: %s", e.URL, e.Reason)
}
