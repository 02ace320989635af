// Package adb implements the Android TV protocol bridge for VenueCast.
//
// This package drives Android-based displays through the adb command-line
// tool over TCP. Unlike a persistent network client, the bridge holds no
// connection of its own: every operation is one or more short-lived adb
// subprocess invocations, and the adb server daemon owns the actual TCP
// sessions.
//
// # Architecture
//
//	┌─────────────────┐            ┌─────────────────┐
//	│    VenueCast    │  exec.Cmd  │   adb binary    │   TCP :5555
//	│   Dispatcher    │───────────►│  (one per call) │◄────────────► Android TV
//	└─────────────────┘            └─────────────────┘
//
// # Key Responsibilities
//
//   - Register a display with the adb server (adb connect ip:port)
//   - Read panel wakefulness from dumpsys power output
//   - Drive power through the KEYCODE_POWER input event
//   - Tear down registrations on shutdown (adb disconnect)
//
// # The Toggle Problem
//
// KEYCODE_POWER is a toggle, not an absolute set. Sending it to a display
// that is already in the requested state would flip it the wrong way, so
// SetPower always queries current state first and skips the key event when
// the display is already where it should be.
//
// # External Contract
//
// adb guarantees nothing beyond exit codes and loosely formatted text.
// The bridge pattern-matches stdout (falling back to stderr) and treats
// anything it does not recognise as an unknown power state rather than
// an error.
//
// # Thread Safety
//
// The adapter is stateless between calls and safe for concurrent use;
// per-display serialisation is the dispatcher's job, not this package's.
package adb
