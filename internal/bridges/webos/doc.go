// Package webos implements the LG TV protocol bridge for VenueCast.
//
// This package drives LG displays through their native websocket service
// (SSAP) on port 3000. Unlike the adb bridge, webos holds state: a paired
// session per display, authenticated by a client token the TV hands out
// after one-time on-screen approval.
//
// # Architecture
//
//	┌─────────────────┐   websocket    ┌─────────────────┐
//	│    VenueCast    │  ssap://  :3000│     LG TV       │
//	│   Dispatcher    │◄──────────────►│  (per-display   │
//	└─────────────────┘    session     │    session)     │
//	        │                          └─────────────────┘
//	        │ UDP broadcast :9 (wake-on-LAN, power-on only)
//	        ▼
//	   whole subnet
//
// # Pairing
//
// The first registration for an unpaired TV makes it show an on-screen
// prompt. That state is PairingPending, not failure: the operation
// reports it distinctly and the session keeps listening in the
// background, so an acceptance within the pairing window completes the
// handshake without another prompt. The token from a successful
// registration is written back to the display inventory, making the
// next run silent.
//
// A stored token the TV no longer honours triggers exactly one fresh
// handshake (which will prompt) before the operation gives up.
//
// # Power Semantics
//
// A fully powered-off TV does not listen on its websocket port, so
// power-on cannot travel over SSAP. The adapter instead broadcasts a
// wake-on-LAN magic packet using the display's MAC address; an
// established session is itself proof the TV is already on. Power-off
// is an SSAP request on the live session, after which the session is
// dropped because the TV is about to tear it down anyway.
//
// # Session Lifetime
//
// Sessions are cached per display and reused while the socket stays
// healthy. A dead session is discarded and redialed on next use; there
// is no background reconnect loop, because an unreachable TV is an
// expected rest state, not a fault to recover from.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. The dispatcher
// serialises operations per display, but the adapter does not rely on
// that: session state transitions are atomic and socket writes are
// mutex-guarded.
package webos
