package adb

import "errors"

// Domain errors for the adb bridge package.
//
// Operation failures are not defined here: adapters classify those by
// wrapping the shared display.ErrConnectivity and display.ErrProtocol
// sentinels so the dispatcher can treat both protocols uniformly.
var (
	// ErrBinaryNotFound is returned at construction when no usable adb
	// binary exists. This is fatal at startup; the process cannot drive
	// Android displays without the external tool.
	ErrBinaryNotFound = errors.New("adb: binary not found")

	// ErrUnsupportedTarget is returned when SetPower is asked for a
	// power state the toggle cannot drive toward.
	ErrUnsupportedTarget = errors.New("adb: unsupported target power state")
)
