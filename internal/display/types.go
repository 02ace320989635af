package display

// Display represents one controllable display device in the venue.
//
// Displays are declared in the inventory file and fixed for the life
// of the process. The only field that changes at runtime is Token,
// written back after a successful webOS pairing.
type Display struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Network
	IP  string `json:"ip"`
	MAC string `json:"mac,omitempty"`

	// Protocol selects the adapter used to drive the device.
	Protocol Protocol `json:"protocol"`

	// Token is the webOS pairing token. It is a credential: excluded
	// from JSON responses and never logged.
	Token string `json:"-"`

	// Group is derived from which inventory list the display sits in.
	Group Group `json:"group"`
}

// DeepCopy creates an independent copy of the Display.
// Every field is a value type, so a shallow copy is a complete copy;
// the method exists so cache isolation is explicit at call sites.
func (d *Display) DeepCopy() *Display {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// HasToken reports whether a pairing token is stored for the display.
// Use this when logging: the token's presence is loggable, its value is not.
func (d *Display) HasToken() bool {
	return d.Token != ""
}

// Protocol identifies which adapter drives a display.
type Protocol string

// Protocol constants.
const (
	// ProtocolADB drives Android TVs through the adb command-line tool.
	ProtocolADB Protocol = "adb"

	// ProtocolWebOS drives LG TVs through their websocket service.
	ProtocolWebOS Protocol = "webos"
)

// AllProtocols returns all valid protocol values.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolADB, ProtocolWebOS}
}

// Group is the venue zone a display belongs to. Membership comes from
// which inventory list an entry sits in; there is no per-entry field.
type Group string

// Group constants.
const (
	GroupInside  Group = "inside"
	GroupOutside Group = "outside"
)

// TargetAll is the pseudo-group accepted by target resolution. It is
// not a Group: no display belongs to it, every display resolves from it.
const TargetAll = "all"

// AllGroups returns all valid group values.
func AllGroups() []Group {
	return []Group{GroupInside, GroupOutside}
}

// PowerState describes the last observed power condition of a display.
type PowerState string

// PowerState constants.
const (
	// PowerStateUnknown means no query has succeeded yet, or the device
	// answered with something unparseable.
	PowerStateUnknown PowerState = "unknown"

	// PowerStateAwake means the panel is on.
	PowerStateAwake PowerState = "awake"

	// PowerStateAsleep means the device is reachable but the panel is
	// off or dozing.
	PowerStateAsleep PowerState = "asleep"

	// PowerStateUnreachable means the device did not answer at all.
	PowerStateUnreachable PowerState = "unreachable"
)

// AllPowerStates returns all valid power state values.
func AllPowerStates() []PowerState {
	return []PowerState{
		PowerStateUnknown, PowerStateAwake, PowerStateAsleep, PowerStateUnreachable,
	}
}

// SetPowerResult is the outcome of a power command that completed
// without error.
//
// Power commands are idempotent at the adapter level: asking an awake
// display to turn on does nothing and reports Skipped rather than
// failing. Skipped outcomes still carry the observed state so status
// displays stay accurate.
type SetPowerResult struct {
	// State is the power state the display is in (or assumed to be
	// heading into) after the command.
	State PowerState `json:"state"`

	// Skipped is true when the display was already at the target state
	// and no command was sent.
	Skipped bool `json:"skipped"`

	// Message is a short human-readable account of what happened,
	// suitable for status displays and the operation log.
	Message string `json:"message"`
}
