package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/venuecast/venuecast-core/internal/display"
)

// Defaults applied by NewDispatcher.
const (
	// DefaultMaxWorkers bounds concurrent adapter work. Six keeps a
	// whole-venue batch moving without stampeding the network.
	DefaultMaxWorkers = 6

	// DefaultOperationTimeout caps a single operation end to end,
	// measured from the moment a worker picks it up.
	DefaultOperationTimeout = 10 * time.Second

	// DefaultBatchHistory is how many finished batches stay queryable.
	DefaultBatchHistory = 32

	// historyWriteTimeout bounds the audit write so a slow database
	// never holds a worker slot.
	historyWriteTimeout = 5 * time.Second
)

// Adapter is the per-protocol capability set the dispatcher drives.
//
// Connect and QueryPower together answer a check. SetPower is
// self-contained: it performs its own connect because the meaning of
// an unreachable display differs per protocol (a webOS power-on wakes
// it, a webOS power-off skips, an Android one fails). Disconnect is
// best-effort teardown used only at shutdown; adapters swallow its
// errors.
//
// Implemented by the adb and webos bridge adapters.
type Adapter interface {
	Connect(ctx context.Context, d display.Display) error
	QueryPower(ctx context.Context, d display.Display) (display.PowerState, error)
	SetPower(ctx context.Context, d display.Display, target display.PowerState) (display.SetPowerResult, error)
	Disconnect(ctx context.Context, d display.Display)
}

// Registry resolves display IDs and group targets. Implemented by the
// display registry.
type Registry interface {
	Get(id string) (*display.Display, error)
	List() []display.Display
	ResolveTarget(target string) ([]display.Display, error)
}

// HistoryRecorder persists completed operations. Implemented by the
// display history repository.
type HistoryRecorder interface {
	Record(ctx context.Context, entry display.HistoryEntry) error
}

// Config holds dispatcher configuration.
type Config struct {
	// MaxWorkers is the concurrent operation ceiling (default 6).
	MaxWorkers int

	// OperationTimeout caps one operation from worker pickup to
	// outcome (default 10s).
	OperationTimeout time.Duration

	// BatchHistory is the finished-batch ring size (default 32).
	BatchHistory int
}

// outcome is the normalised end state of one executed operation.
type outcome struct {
	result  Result
	phase   Phase
	state   display.PowerState
	message string
}

// Dispatcher owns all power operations: it serialises per display,
// bounds concurrency, drives adapters under a deadline and reports
// every transition through the status board.
//
// Thread Safety: all methods are safe for concurrent use.
type Dispatcher struct {
	registry Registry
	adapters map[display.Protocol]Adapter
	board    *StatusBoard
	history  HistoryRecorder
	cfg      Config

	// sem is the worker pool: holding a slot is being a worker.
	sem chan struct{}

	busyMu sync.Mutex
	busy   map[string]struct{}

	batchesMu sync.Mutex
	batches   map[string]*Batch
	batchIDs  []string

	closed atomic.Bool
	wg     sync.WaitGroup

	onBatchFinished func(Batch)
	callbackMu      sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// NewDispatcher creates a dispatcher.
//
// Parameters:
//   - cfg: Dispatcher configuration (zero fields take defaults)
//   - registry: Display lookup and target resolution
//   - adapters: Protocol adapters keyed by display protocol
//   - board: Status board receiving every transition
//   - history: Operation audit sink (nil disables recording)
func NewDispatcher(cfg Config, registry Registry, adapters map[display.Protocol]Adapter, board *StatusBoard, history HistoryRecorder) *Dispatcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}
	if cfg.BatchHistory <= 0 {
		cfg.BatchHistory = DefaultBatchHistory
	}

	return &Dispatcher{
		registry: registry,
		adapters: adapters,
		board:    board,
		history:  history,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxWorkers),
		busy:     make(map[string]struct{}),
		batches:  make(map[string]*Batch),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

// SetOnBatchFinished registers a callback invoked with a snapshot of
// every batch that reaches a terminal status. The callback runs on its
// own goroutine so batch bookkeeping never waits on a consumer.
func (d *Dispatcher) SetOnBatchFinished(fn func(Batch)) {
	d.callbackMu.Lock()
	d.onBatchFinished = fn
	d.callbackMu.Unlock()
}

// Dispatch starts one operation against one display and returns its
// operation ID. The display is in phase connecting before this
// returns; the outcome arrives later through the status board.
//
// Returns:
//   - string: Operation ID for correlating the eventual outcome
//   - error: ErrDispatcherClosed, ErrUnknownCommand,
//     display.ErrDisplayNotFound, ErrNoAdapter or ErrDisplayBusy
func (d *Dispatcher) Dispatch(displayID string, cmd Command) (string, error) {
	if d.closed.Load() {
		return "", ErrDispatcherClosed
	}
	if err := validCommand(cmd); err != nil {
		return "", err
	}

	disp, err := d.registry.Get(displayID)
	if err != nil {
		return "", err
	}
	adapter, ok := d.adapters[disp.Protocol]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoAdapter, disp.Protocol)
	}
	if !d.claim(disp.ID) {
		return "", fmt.Errorf("%w: %s", ErrDisplayBusy, disp.ID)
	}

	operationID := uuid.New().String()
	d.board.SetConnecting(disp.ID, cmd, operationID, "")
	d.logDebug("operation dispatched", "display_id", disp.ID, "command", cmd, "operation_id", operationID)

	d.wg.Add(1)
	go d.run(*disp, adapter, cmd, operationID, "", nil)

	return operationID, nil
}

// DispatchGroup starts one operation per member of a group target and
// returns a snapshot of the new batch. Members already busy with
// another operation are skipped on the spot; the rest run under the
// worker pool. Batches never wait on each other.
//
// Parameters:
//   - target: Group name or "all"
//   - cmd: Command to run against every member
//
// Returns:
//   - *Batch: Snapshot of the batch at dispatch time
//   - error: ErrDispatcherClosed, ErrUnknownCommand or
//     display.ErrGroupNotFound
func (d *Dispatcher) DispatchGroup(target string, cmd Command) (*Batch, error) {
	if d.closed.Load() {
		return nil, ErrDispatcherClosed
	}
	if err := validCommand(cmd); err != nil {
		return nil, err
	}

	displays, err := d.registry.ResolveTarget(target)
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:        uuid.New().String(),
		Target:    target,
		Command:   cmd,
		Status:    BatchRunning,
		StartedAt: time.Now().UTC(),
		Total:     len(displays),
		Members:   make([]BatchMember, len(displays)),
	}
	for i, disp := range displays {
		batch.Members[i] = BatchMember{DisplayID: disp.ID}
	}
	d.storeBatch(batch)
	d.logInfo("batch dispatched", "batch_id", batch.ID, "target", target, "command", cmd, "total", batch.Total)

	if batch.Total == 0 {
		d.batchesMu.Lock()
		d.finalizeLocked(batch)
		snap := batch.DeepCopy()
		d.batchesMu.Unlock()
		return snap, nil
	}

	for i := range displays {
		disp := displays[i]

		adapter, ok := d.adapters[disp.Protocol]
		if !ok {
			out := outcome{
				result:  ResultFailed,
				phase:   PhaseFailure,
				state:   display.PowerStateUnknown,
				message: fmt.Sprintf("no adapter registered for protocol %s", disp.Protocol),
			}
			d.record(disp, cmd, batch.ID, out, 0)
			d.finishMember(batch.ID, disp.ID, out, 0)
			continue
		}
		if !d.claim(disp.ID) {
			out := outcome{
				result:  ResultSkipped,
				phase:   PhaseSuccess,
				state:   display.PowerStateUnknown,
				message: "operation already in progress",
			}
			d.record(disp, cmd, batch.ID, out, 0)
			d.finishMember(batch.ID, disp.ID, out, 0)
			continue
		}

		operationID := uuid.New().String()
		d.board.SetConnecting(disp.ID, cmd, operationID, batch.ID)
		d.wg.Add(1)
		go d.run(disp, adapter, cmd, operationID, batch.ID, d.finishMember)
	}

	return d.GetBatch(batch.ID)
}

// run is the per-operation goroutine. It waits for a worker slot,
// executes under the operation deadline and reports the outcome. The
// deadline starts at pickup, not dispatch, so members queued behind a
// full pool do not time out while waiting.
func (d *Dispatcher) run(disp display.Display, adapter Adapter, cmd Command, operationID, batchID string, done func(batchID, displayID string, out outcome, elapsed time.Duration)) {
	defer d.wg.Done()
	defer d.release(disp.ID)

	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.OperationTimeout)
	out := d.execute(ctx, adapter, disp, cmd)
	cancel()
	elapsed := time.Since(start)

	d.board.SetTerminal(disp.ID, cmd, operationID, batchID, out.phase, out.result, out.state, out.message, elapsed.Milliseconds())
	d.record(disp, cmd, batchID, out, elapsed)
	if done != nil {
		done(batchID, disp.ID, out, elapsed)
	}

	d.logDebug("operation finished",
		"display_id", disp.ID, "command", cmd, "operation_id", operationID,
		"result", out.result, "power_state", out.state, "duration_ms", elapsed.Milliseconds())
}

// execute drives the adapter for one command. A panicking adapter is
// contained here: the operation fails, the worker survives.
func (d *Dispatcher) execute(ctx context.Context, adapter Adapter, disp display.Display, cmd Command) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logError("adapter panic recovered", "display_id", disp.ID, "command", cmd, "panic", r)
			out = outcome{
				result:  ResultFailed,
				phase:   PhaseFailure,
				state:   display.PowerStateUnknown,
				message: "internal adapter failure",
			}
		}
	}()

	if cmd == CommandCheck {
		return d.check(ctx, adapter, disp)
	}
	return d.power(ctx, adapter, disp, cmd)
}

// check connects and reads the power state. An unreadable state is a
// failed check, matching how power operations treat it.
func (d *Dispatcher) check(ctx context.Context, adapter Adapter, disp display.Display) outcome {
	if err := adapter.Connect(ctx, disp); err != nil {
		return classify(err, display.PowerStateUnreachable)
	}

	state, err := adapter.QueryPower(ctx, disp)
	if err != nil {
		return classify(err, state)
	}
	if state == display.PowerStateUnreachable {
		return outcome{
			result:  ResultFailed,
			phase:   PhaseFailure,
			state:   state,
			message: "could not read power state",
		}
	}
	return outcome{
		result:  ResultSuccess,
		phase:   PhaseSuccess,
		state:   state,
		message: fmt.Sprintf("power state %s", state),
	}
}

// power runs a self-contained on or off through the adapter.
func (d *Dispatcher) power(ctx context.Context, adapter Adapter, disp display.Display, cmd Command) outcome {
	target := display.PowerStateAwake
	if cmd == CommandOff {
		target = display.PowerStateAsleep
	}

	res, err := adapter.SetPower(ctx, disp, target)
	if err != nil {
		return classify(err, res.State)
	}
	result := ResultSuccess
	if res.Skipped {
		result = ResultSkipped
	}
	return outcome{
		result:  result,
		phase:   PhaseSuccess,
		state:   res.State,
		message: res.Message,
	}
}

// classify maps an adapter error to a terminal outcome using the
// shared error taxonomy. fallback is the power state the adapter
// reported alongside the error, when it reported one.
func classify(err error, fallback display.PowerState) outcome {
	switch {
	case errors.Is(err, display.ErrPairingPending):
		return outcome{
			result:  ResultPairingPending,
			phase:   PhasePairingPending,
			state:   display.PowerStateUnknown,
			message: "awaiting pairing approval on the TV",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return outcome{
			result:  ResultFailed,
			phase:   PhaseFailure,
			state:   fallback,
			message: "operation timed out",
		}
	case errors.Is(err, display.ErrConnectivity):
		return outcome{
			result:  ResultFailed,
			phase:   PhaseFailure,
			state:   display.PowerStateUnreachable,
			message: err.Error(),
		}
	default:
		return outcome{
			result:  ResultFailed,
			phase:   PhaseFailure,
			state:   fallback,
			message: err.Error(),
		}
	}
}

// record persists one finished operation. Audit writes are best
// effort: a failed write is logged and the operation outcome stands.
func (d *Dispatcher) record(disp display.Display, cmd Command, batchID string, out outcome, elapsed time.Duration) {
	if d.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	entry := display.HistoryEntry{
		DisplayID:  disp.ID,
		Command:    string(cmd),
		Result:     string(out.result),
		PowerState: string(out.state),
		Message:    out.message,
		BatchID:    batchID,
		DurationMS: elapsed.Milliseconds(),
	}
	if err := d.history.Record(ctx, entry); err != nil {
		d.logWarn("history record failed", "display_id", disp.ID, "error", err)
	}
}

// finishMember fills in one member outcome and finalises the batch
// when it was the last one outstanding.
func (d *Dispatcher) finishMember(batchID, displayID string, out outcome, elapsed time.Duration) {
	d.batchesMu.Lock()
	defer d.batchesMu.Unlock()

	b := d.batches[batchID]
	if b == nil {
		// Evicted from the ring while still running.
		return
	}

	for i := range b.Members {
		m := &b.Members[i]
		if m.DisplayID != displayID || m.Result != "" {
			continue
		}
		m.Result = out.result
		m.PowerState = out.state
		m.Message = out.message
		m.DurationMS = elapsed.Milliseconds()
		break
	}

	switch out.result {
	case ResultSuccess:
		b.Succeeded++
	case ResultSkipped:
		b.Skipped++
	case ResultPairingPending:
		b.Pending++
	default:
		b.Failed++
	}

	if b.Succeeded+b.Failed+b.Skipped+b.Pending >= b.Total {
		d.finalizeLocked(b)
	}
}

// finalizeLocked stamps the batch terminal. Callers hold d.batchesMu.
func (d *Dispatcher) finalizeLocked(b *Batch) {
	now := time.Now().UTC()
	b.CompletedAt = &now
	duration := now.Sub(b.StartedAt).Milliseconds()
	b.DurationMS = &duration

	switch {
	case b.Total == 0:
		b.Status = BatchCompleted
	case b.Failed == b.Total:
		b.Status = BatchFailed
	case b.Failed > 0 || b.Pending > 0:
		b.Status = BatchPartial
	default:
		b.Status = BatchCompleted
	}

	d.logInfo("batch finished",
		"batch_id", b.ID, "status", b.Status,
		"succeeded", b.Succeeded, "failed", b.Failed,
		"skipped", b.Skipped, "pending", b.Pending,
		"duration_ms", *b.DurationMS)

	d.callbackMu.RLock()
	fn := d.onBatchFinished
	d.callbackMu.RUnlock()
	if fn != nil {
		snap := b.DeepCopy()
		go fn(*snap)
	}
}

// storeBatch adds a batch to the ring, evicting the oldest beyond the
// configured history size.
func (d *Dispatcher) storeBatch(b *Batch) {
	d.batchesMu.Lock()
	defer d.batchesMu.Unlock()

	d.batches[b.ID] = b
	d.batchIDs = append(d.batchIDs, b.ID)
	for len(d.batchIDs) > d.cfg.BatchHistory {
		evicted := d.batchIDs[0]
		d.batchIDs = d.batchIDs[1:]
		delete(d.batches, evicted)
	}
}

// GetBatch returns a copy of the batch with the given ID.
//
// Returns:
//   - *Batch: Deep copy safe to hand to encoders
//   - error: ErrBatchNotFound when unknown or already evicted
func (d *Dispatcher) GetBatch(id string) (*Batch, error) {
	d.batchesMu.Lock()
	defer d.batchesMu.Unlock()

	b := d.batches[id]
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return b.DeepCopy(), nil
}

// ListBatches returns copies of known batches, most recent first.
//
// Parameters:
//   - limit: Maximum batches to return; zero or negative returns all
func (d *Dispatcher) ListBatches(limit int) []*Batch {
	d.batchesMu.Lock()
	defer d.batchesMu.Unlock()

	if limit <= 0 || limit > len(d.batchIDs) {
		limit = len(d.batchIDs)
	}

	out := make([]*Batch, 0, limit)
	for i := len(d.batchIDs) - 1; i >= 0 && len(out) < limit; i-- {
		if b := d.batches[d.batchIDs[i]]; b != nil {
			out = append(out, b.DeepCopy())
		}
	}
	return out
}

// Busy reports whether the display has an operation in flight.
func (d *Dispatcher) Busy(displayID string) bool {
	d.busyMu.Lock()
	defer d.busyMu.Unlock()
	_, inFlight := d.busy[displayID]
	return inFlight
}

// claim marks a display busy. It returns false when an operation is
// already in flight; callers must not start another.
func (d *Dispatcher) claim(id string) bool {
	d.busyMu.Lock()
	defer d.busyMu.Unlock()

	if _, inFlight := d.busy[id]; inFlight {
		return false
	}
	d.busy[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.busyMu.Lock()
	delete(d.busy, id)
	d.busyMu.Unlock()
}

// Close stops accepting operations, waits for in-flight ones to
// finish and tears down every adapter session. Waiting is bounded by
// ctx; teardown is skipped if the wait is abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("dispatcher close: %w", ctx.Err())
	}

	for _, disp := range d.registry.List() {
		adapter, ok := d.adapters[disp.Protocol]
		if !ok {
			continue
		}
		adapter.Disconnect(ctx, disp)
	}

	d.logInfo("dispatcher closed")
	return nil
}

// validCommand rejects commands outside the fixed set. External
// surfaces parse with ParseCommand first; this guards direct callers.
func validCommand(cmd Command) error {
	switch cmd {
	case CommandOn, CommandOff, CommandCheck:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

func (d *Dispatcher) logDebug(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	d.logger.Debug(msg, keysAndValues...)
}

func (d *Dispatcher) logInfo(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	d.logger.Info(msg, keysAndValues...)
}

func (d *Dispatcher) logWarn(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	d.logger.Warn(msg, keysAndValues...)
}

func (d *Dispatcher) logError(msg string, keysAndValues ...any) {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	d.logger.Error(msg, keysAndValues...)
}
