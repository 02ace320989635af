package command

import (
	"fmt"
	"time"

	"github.com/venuecast/venuecast-core/internal/display"
)

// Command is a display operation requested by an operator.
type Command string

// Command constants.
const (
	// CommandOn drives a display toward awake.
	CommandOn Command = "on"

	// CommandOff drives a display toward asleep.
	CommandOff Command = "off"

	// CommandCheck queries power state without side effects.
	CommandCheck Command = "check"
)

// AllCommands returns all valid command values.
func AllCommands() []Command {
	return []Command{CommandOn, CommandOff, CommandCheck}
}

// ParseCommand validates a command string from an external surface
// (REST body, MQTT payload).
func ParseCommand(s string) (Command, error) {
	switch Command(s) {
	case CommandOn, CommandOff, CommandCheck:
		return Command(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Result is the recorded outcome of one operation on one display.
type Result string

// Result constants.
const (
	// ResultSuccess means the operation did what was asked.
	ResultSuccess Result = "success"

	// ResultFailed means the operation could not be completed.
	ResultFailed Result = "failed"

	// ResultSkipped means nothing needed doing: the display was
	// already at the target state, or a batch member was busy.
	ResultSkipped Result = "skipped"

	// ResultPairingPending means the operation is blocked on the
	// operator accepting the webOS pairing prompt. Not a failure.
	ResultPairingPending Result = "pairing_pending"
)

// Phase is one state of the per-display status machine.
type Phase string

// Phase constants.
const (
	PhaseIdle           Phase = "idle"
	PhaseConnecting     Phase = "connecting"
	PhaseSuccess        Phase = "success"
	PhaseFailure        Phase = "failure"
	PhasePairingPending Phase = "pairing_pending"
)

// terminal reports whether a phase is an operation outcome, i.e. a
// phase the decay timer may return to idle.
func (p Phase) terminal() bool {
	switch p {
	case PhaseSuccess, PhaseFailure, PhasePairingPending:
		return true
	}
	return false
}

// StatusEntry is the board's view of one display: the phase of its
// most recent operation plus the last known power state.
type StatusEntry struct {
	DisplayID string `json:"display_id"`
	Phase     Phase  `json:"phase"`

	// PowerState is the last observed state. It survives phase decay:
	// an idle display still shows what the last check learned.
	PowerState display.PowerState `json:"power_state"`

	// Operation detail, empty while idle.
	Command     Command `json:"command,omitempty"`
	Result      Result  `json:"result,omitempty"`
	Message     string  `json:"message,omitempty"`
	OperationID string  `json:"operation_id,omitempty"`
	BatchID     string  `json:"batch_id,omitempty"`
	DurationMS  int64   `json:"duration_ms,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// BatchStatus summarises a batch's overall progress.
type BatchStatus string

// BatchStatus constants.
const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed" // every member succeeded or was skipped
	BatchPartial   BatchStatus = "partial"   // mixed outcomes
	BatchFailed    BatchStatus = "failed"    // every member failed
)

// Batch records one group dispatch: which displays were targeted and
// how each of them fared. Partial success is an expected outcome, so
// the batch never rolls anything back; it only counts.
type Batch struct {
	ID      string      `json:"id"`
	Target  string      `json:"target"`
	Command Command     `json:"command"`
	Status  BatchStatus `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  *int64     `json:"duration_ms,omitempty"`

	// Counts, maintained as members finish.
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"` // pairing approvals outstanding

	Members []BatchMember `json:"members"`
}

// BatchMember is one display's slot in a batch.
type BatchMember struct {
	DisplayID  string             `json:"display_id"`
	Result     Result             `json:"result,omitempty"` // empty while running
	PowerState display.PowerState `json:"power_state,omitempty"`
	Message    string             `json:"message,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// DeepCopy creates an independent copy of the Batch so callers can
// hold results without racing the dispatcher's updates.
func (b *Batch) DeepCopy() *Batch {
	if b == nil {
		return nil
	}

	cpy := *b

	if b.CompletedAt != nil {
		at := *b.CompletedAt
		cpy.CompletedAt = &at
	}
	if b.DurationMS != nil {
		ms := *b.DurationMS
		cpy.DurationMS = &ms
	}
	if b.Members != nil {
		cpy.Members = make([]BatchMember, len(b.Members))
		copy(cpy.Members, b.Members)
	}

	return &cpy
}
