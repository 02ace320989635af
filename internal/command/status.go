package command

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/venuecast/venuecast-core/internal/display"
)

// Defaults applied by NewStatusBoard.
const (
	// DefaultDecay is the quiescent interval after which a terminal
	// phase reverts to idle.
	DefaultDecay = 60 * time.Second

	// defaultEventBuffer absorbs bursts (a whole-venue batch finishing
	// at once) without the board ever blocking an operation.
	defaultEventBuffer = 256
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// boardEntry pairs a StatusEntry with the bookkeeping that keeps decay
// honest: a generation counter to detect stale timer fires and the
// armed timer itself.
type boardEntry struct {
	entry      StatusEntry
	generation uint64
	timer      *time.Timer
}

// StatusBoard holds the per-display status machine.
//
// All mutation goes through SetConnecting and SetTerminal; the decay
// back to idle is the board's own doing. Every transition is published
// on the Events channel for the composition root's forwarder to fan
// out. The board itself performs no I/O and never blocks: a full event
// buffer drops the event and counts it.
//
// Thread Safety: all methods are safe for concurrent use.
type StatusBoard struct {
	mu      sync.Mutex
	entries map[string]*boardEntry
	closed  bool

	events chan StatusEntry
	decay  time.Duration

	eventsDropped atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewStatusBoard creates a status board.
//
// Parameters:
//   - decay: Quiescent interval before terminal phases revert to idle;
//     zero or negative takes DefaultDecay
func NewStatusBoard(decay time.Duration) *StatusBoard {
	if decay <= 0 {
		decay = DefaultDecay
	}

	return &StatusBoard{
		entries: make(map[string]*boardEntry),
		events:  make(chan StatusEntry, defaultEventBuffer),
		decay:   decay,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the status board.
func (b *StatusBoard) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// Seed creates idle entries for the given displays so consumers see
// the whole fleet before any operation has run. Existing entries are
// left alone.
func (b *StatusBoard) Seed(displays []display.Display) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	for _, d := range displays {
		if _, exists := b.entries[d.ID]; exists {
			continue
		}
		b.entries[d.ID] = &boardEntry{
			entry: StatusEntry{
				DisplayID:  d.ID,
				Phase:      PhaseIdle,
				PowerState: display.PowerStateUnknown,
				UpdatedAt:  now,
			},
		}
	}
}

// SetConnecting marks a display as having an operation in flight. The
// previous power state is kept so consumers do not see the reading
// blank out mid-operation, and any armed decay timer is disarmed: the
// new activity owns the entry now.
func (b *StatusBoard) SetConnecting(displayID string, cmd Command, operationID, batchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	e := b.take(displayID)
	e.entry = StatusEntry{
		DisplayID:   displayID,
		Phase:       PhaseConnecting,
		PowerState:  e.entry.PowerState,
		Command:     cmd,
		OperationID: operationID,
		BatchID:     batchID,
		UpdatedAt:   time.Now().UTC(),
	}
	b.publish(e.entry)
}

// SetTerminal records an operation outcome and arms the decay timer.
// The phase must be terminal; anything else would wedge the machine,
// so it is refused and logged.
func (b *StatusBoard) SetTerminal(displayID string, cmd Command, operationID, batchID string, phase Phase, result Result, state display.PowerState, message string, durationMS int64) {
	if !phase.terminal() {
		b.logError("non-terminal phase passed to SetTerminal", "display_id", displayID, "phase", phase)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	e := b.take(displayID)
	e.entry = StatusEntry{
		DisplayID:   displayID,
		Phase:       phase,
		PowerState:  state,
		Command:     cmd,
		Result:      result,
		Message:     message,
		OperationID: operationID,
		BatchID:     batchID,
		DurationMS:  durationMS,
		UpdatedAt:   time.Now().UTC(),
	}

	generation := e.generation
	e.timer = time.AfterFunc(b.decay, func() {
		b.decayToIdle(displayID, generation)
	})

	b.publish(e.entry)
}

// take fetches or creates the display's entry, bumps its generation
// and disarms any pending decay. Callers hold b.mu.
func (b *StatusBoard) take(displayID string) *boardEntry {
	e := b.entries[displayID]
	if e == nil {
		e = &boardEntry{}
		b.entries[displayID] = e
	}
	e.generation++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	return e
}

// decayToIdle is the timer callback. A generation mismatch means some
// transition beat the timer; the fire is stale and ignored.
func (b *StatusBoard) decayToIdle(displayID string, generation uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	e := b.entries[displayID]
	if e == nil || e.generation != generation || !e.entry.Phase.terminal() {
		return
	}

	e.generation++
	e.timer = nil
	e.entry = StatusEntry{
		DisplayID:  displayID,
		Phase:      PhaseIdle,
		PowerState: e.entry.PowerState,
		UpdatedAt:  time.Now().UTC(),
	}
	b.publish(e.entry)
}

// publish sends an event without ever blocking. Callers hold b.mu.
func (b *StatusBoard) publish(entry StatusEntry) {
	if b.closed {
		return
	}
	select {
	case b.events <- entry:
	default:
		dropped := b.eventsDropped.Add(1)
		b.logWarn("status event dropped, forwarder not draining",
			"display_id", entry.DisplayID, "dropped_total", dropped)
	}
}

// Events returns the transition stream. A single forwarder goroutine
// should consume it; the channel closes when the board closes.
func (b *StatusBoard) Events() <-chan StatusEntry {
	return b.events
}

// EventsDropped reports how many transitions were lost to a full
// buffer since start.
func (b *StatusBoard) EventsDropped() uint64 {
	return b.eventsDropped.Load()
}

// Get returns the display's current status.
func (b *StatusBoard) Get(displayID string) (StatusEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entries[displayID]
	if e == nil {
		return StatusEntry{}, false
	}
	return e.entry, true
}

// Snapshot returns every display's current status, keyed by ID.
func (b *StatusBoard) Snapshot() map[string]StatusEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]StatusEntry, len(b.entries))
	for id, e := range b.entries {
		out[id] = e.entry
	}
	return out
}

// Close disarms every timer and closes the event channel. Transitions
// arriving after Close are ignored.
func (b *StatusBoard) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, e := range b.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	close(b.events)
}

func (b *StatusBoard) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	b.logger.Warn(msg, keysAndValues...)
}

func (b *StatusBoard) logError(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	b.logger.Error(msg, keysAndValues...)
}
