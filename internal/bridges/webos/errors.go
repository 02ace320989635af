package webos

import "errors"

// Domain errors for the webos bridge package.
//
// Operation failures surfaced to the dispatcher are classified by
// wrapping the shared display.ErrConnectivity, display.ErrProtocol and
// display.ErrPairingPending sentinels; the sentinels here carry
// webos-internal distinctions the adapter needs before classifying.
var (
	// ErrRegistrationRejected is returned when the TV answers the
	// register handshake with an error. With a stored token this
	// usually means the token has expired or the pairing was revoked
	// on the TV; the adapter retries once with a blank token.
	ErrRegistrationRejected = errors.New("webos: registration rejected")

	// ErrSessionClosed is returned when a request races the session
	// being torn down, either by Close or by the TV dropping the
	// socket.
	ErrSessionClosed = errors.New("webos: session closed")
)
