package command

import "errors"

// Domain errors for the command package.
var (
	// ErrUnknownCommand is returned when a command string is not one of
	// on, off, check.
	ErrUnknownCommand = errors.New("command: unknown command")

	// ErrDisplayBusy is returned when a display already has an
	// operation in flight. Operations on one display are serialised by
	// rejection, not queueing.
	ErrDisplayBusy = errors.New("command: operation already in progress")

	// ErrNoAdapter is returned when no adapter is registered for the
	// display's protocol. Inventory validation makes this unreachable
	// in a correctly wired process.
	ErrNoAdapter = errors.New("command: no adapter for protocol")

	// ErrBatchNotFound is returned when a batch ID is not in the
	// in-memory batch history.
	ErrBatchNotFound = errors.New("command: batch not found")

	// ErrDispatcherClosed is returned when commands arrive after
	// shutdown has begun.
	ErrDispatcherClosed = errors.New("command: dispatcher closed")
)
