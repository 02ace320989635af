// Package command runs display power operations and tracks their
// status for VenueCast.
//
// This package sits between the presentation surfaces (REST, websocket,
// MQTT) and the protocol adapters. It accepts commands, executes them
// concurrently with bounded parallelism, and turns every outcome into a
// status transition other parts of the system can watch.
//
// # Architecture
//
//	┌──────────────┐  Dispatch   ┌──────────────┐  Connect/Query/Set  ┌──────────┐
//	│  API / MQTT  │────────────►│  Dispatcher  │────────────────────►│ Adapters │
//	└──────────────┘             │ (≤6 workers) │                     └──────────┘
//	        ▲                    └──────┬───────┘
//	        │                           │ transitions
//	        │     events          ┌─────▼────────┐
//	        └─────────────────────│ Status Board │
//	                              └──────────────┘
//
// # Dispatch Guarantees
//
//   - Accepting a command moves the display to Connecting before the
//     dispatch call returns; callers observe the transition immediately.
//   - At most one operation is in flight per display. A second command
//     for a busy display is rejected outright (single dispatch) or
//     recorded as skipped (batch member).
//   - Every accepted operation terminates in Success, Failure or
//     PairingPending within the operation timeout. A display is never
//     left in Connecting.
//   - Batch members run independently; one display's failure never
//     aborts the others, and partial success is a normal recorded
//     outcome, not an error.
//
// # Status Model
//
// Per-display finite state machine:
//
//	idle ──► connecting ──► success | failure | pairing_pending
//	  ▲                           │
//	  └────────── 60s ────────────┘
//
// Terminal phases decay back to idle after a quiescent interval. The
// decay timer is rearmed by every new transition, and stale fires are
// detected by a per-entry generation counter, so the last transition
// always wins. The last known power state survives decay; only the
// operation outcome fades.
//
// Transitions are published on a buffered event channel consumed by a
// single forwarder goroutine in the composition root. The board never
// blocks on a slow consumer: when the buffer is full, events are
// dropped and counted rather than stalling an operation.
package command
