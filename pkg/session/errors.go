package session

import (
	"fmt"
	"log/slog"
)

// FetchError is a failure acquiring a connection credential.
type FetchError struct {
	// HTTPStatus is the response status, 0 for network failures.
	HTTPStatus int

	// Message is the failure description.
	Message string
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("session: credential fetch failed (HTTP %d): %s", e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("session: credential fetch failed: %s", e.Message)
}

// ConnectError is a transport connect failure. For notification purposes
// it is treated identically to FetchError: one merged failure path.
type ConnectError struct {
	Cause error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("session: connect failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConnectError) Unwrap() error { return e.Cause }

// Notification is a user-visible fault report.
type Notification struct {
	Title       string
	Description string
}

// Notifier receives user-visible notifications. Implementations must not
// block and must not panic.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a structured logger. It is the
// default when no UI-owned notifier is configured.
type LogNotifier struct {
	Log *slog.Logger
}

// Notify implements Notifier.
func (ln LogNotifier) Notify(n Notification) {
	log := ln.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn(n.Title, "description", n.Description)
}
