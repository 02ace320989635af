package display

import "errors"

// Domain errors for the display package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, display.ErrDisplayNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDisplayNotFound is returned when a display ID does not exist.
	ErrDisplayNotFound = errors.New("display: not found")

	// ErrGroupNotFound is returned when a target name is neither a
	// group nor "all".
	ErrGroupNotFound = errors.New("display: group not found")

	// ErrInvalidInventory is returned when inventory validation fails.
	// The wrapped message lists every problem found, not just the first;
	// a partially valid inventory never loads.
	ErrInvalidInventory = errors.New("display: invalid inventory")

	// ErrInventoryMissing is returned when the inventory file does not
	// exist. Load writes a commented template to the configured path
	// before returning this error.
	ErrInventoryMissing = errors.New("display: inventory file missing")
)

// Operation errors returned by protocol adapters. Adapters wrap these
// with protocol detail; the dispatcher classifies outcomes with
// errors.Is and never inspects adapter-specific text.
var (
	// ErrConnectivity is returned when a display cannot be reached:
	// dial refused, connect timeout, or the bridge reporting the
	// device gone. Recovered per-operation, never fatal.
	ErrConnectivity = errors.New("display: device unreachable")

	// ErrProtocol is returned when a display was reached but the
	// exchange failed or produced output the adapter does not
	// recognise.
	ErrProtocol = errors.New("display: protocol exchange failed")

	// ErrPairingPending is returned by the webos adapter when the TV
	// is showing its pairing prompt. The operation has not failed;
	// it cannot proceed until the prompt is accepted on screen.
	ErrPairingPending = errors.New("display: pairing approval pending")
)
