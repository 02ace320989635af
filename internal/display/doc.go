// Package display provides the Device Registry for VenueCast Core.
//
// The registry is the catalogue of every display the system controls.
// Unlike a discovered fleet, the inventory is static: the operator
// declares displays in a YAML file, the whole file validates as a
// unit at startup, and nothing appears or vanishes while the process
// runs. The one mutable field is the webOS pairing token, which the
// registry writes back into the inventory file after pairing.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                          Device Registry                            │
//	│                                                                     │
//	│  ┌────────────────┐    ┌────────────────┐    ┌──────────────────┐   │
//	│  │    Registry    │    │    Inventory   │    │    Validation    │   │
//	│  │  (registry.go) │───▶│ (inventory.go) │    │  (validation.go) │   │
//	│  │                │    │                │    │                  │   │
//	│  │ • Lookups      │    │ • YAML load    │    │ • Collect-all    │   │
//	│  │ • Group expand │    │ • Template     │    │ • IP/MAC checks  │   │
//	│  │ • Token cache  │    │ • Atomic save  │    │ • ID derivation  │   │
//	│  └────────────────┘    └────────────────┘    └──────────────────┘   │
//	│          │                                                          │
//	└──────────│──────────────────────────────────────────────────────────┘
//	           │
//	           ▼
//	┌──────────────────────┐   ┌──────────────────────────┐
//	│  Command Dispatcher  │   │      SQLite Database     │
//	│  • resolve targets   │   │ (operation_history table)│
//	│  • adapter routing   │   └──────────────────────────┘
//	└──────────────────────┘
//
// # Key Types
//
//   - Display: One declared display device (ID, name, IP, protocol, MAC, token, group)
//   - Protocol: Control protocol (adb for Android TVs, webos for LG TVs)
//   - Group: Static venue zone (inside, outside)
//   - PowerState: Last observed power condition (unknown, awake, asleep, unreachable)
//   - HistoryEntry: One completed power operation, persisted to SQLite
//
// # Usage
//
//	// Load and validate the inventory at startup
//	inv := display.NewInventory("displays.yaml")
//	registry := display.NewRegistry(inv)
//	registry.SetLogger(log)
//	if err := registry.Load(); err != nil {
//	    return err // invalid inventory is fatal; the error names every problem
//	}
//
//	// Look up displays
//	d, _ := registry.Get("inside-bar-left")
//	members, _ := registry.ResolveTarget("outside")
//
//	// Persist a webOS pairing token (from the webos adapter)
//	registry.SaveToken(d.ID, clientKey)
//
// # Validation
//
// Inventory validation is atomic and exhaustive: every problem in the
// file is collected into a single ErrInvalidInventory error, and a
// partially valid inventory never loads. A missing file is replaced
// with a commented template and reported via ErrInventoryMissing.
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Lookups hand out copies of
// cached displays, never internal pointers. Token write-backs serialise
// on the Inventory's mutex and replace the file atomically.
package display
