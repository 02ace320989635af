package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/venuecast/venuecast-core/internal/display"
)

// fakeAdapter scripts adapter behaviour per test and records every
// call it receives.
type fakeAdapter struct {
	mu    sync.Mutex
	calls []string

	connectFn func(ctx context.Context, d display.Display) error
	queryFn   func(ctx context.Context, d display.Display) (display.PowerState, error)
	setFn     func(ctx context.Context, d display.Display, target display.PowerState) (display.SetPowerResult, error)
}

func (f *fakeAdapter) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAdapter) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAdapter) Connect(ctx context.Context, d display.Display) error {
	f.record("connect:" + d.ID)
	if f.connectFn != nil {
		return f.connectFn(ctx, d)
	}
	return nil
}

func (f *fakeAdapter) QueryPower(ctx context.Context, d display.Display) (display.PowerState, error) {
	f.record("query:" + d.ID)
	if f.queryFn != nil {
		return f.queryFn(ctx, d)
	}
	return display.PowerStateAwake, nil
}

func (f *fakeAdapter) SetPower(ctx context.Context, d display.Display, target display.PowerState) (display.SetPowerResult, error) {
	f.record("set:" + d.ID + ":" + string(target))
	if f.setFn != nil {
		return f.setFn(ctx, d, target)
	}
	return display.SetPowerResult{State: target, Message: "ok"}, nil
}

func (f *fakeAdapter) Disconnect(_ context.Context, d display.Display) {
	f.record("disconnect:" + d.ID)
}

type fakeRegistry struct {
	displays []display.Display
}

func (f *fakeRegistry) Get(id string) (*display.Display, error) {
	for i := range f.displays {
		if f.displays[i].ID == id {
			d := f.displays[i]
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", display.ErrDisplayNotFound, id)
}

func (f *fakeRegistry) List() []display.Display {
	return append([]display.Display(nil), f.displays...)
}

func (f *fakeRegistry) ResolveTarget(target string) ([]display.Display, error) {
	if target == "all" {
		return f.List(), nil
	}
	var out []display.Display
	for _, d := range f.displays {
		if string(d.Group) == target {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", display.ErrGroupNotFound, target)
	}
	return out, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []display.HistoryEntry
	err     error
}

func (f *fakeHistory) Record(_ context.Context, entry display.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistory) recorded() []display.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]display.HistoryEntry(nil), f.entries...)
}

func testDisplays() []display.Display {
	return []display.Display{
		{ID: "bar-left", Name: "Bar Left", IP: "10.0.0.2", Protocol: display.ProtocolADB, Group: "bar"},
		{ID: "bar-right", Name: "Bar Right", IP: "10.0.0.3", Protocol: display.ProtocolADB, Group: "bar"},
		{ID: "terrace", Name: "Terrace", IP: "10.0.0.4", MAC: "aa:bb:cc:dd:ee:ff", Protocol: display.ProtocolWebOS, Group: "terrace"},
	}
}

func newTestDispatcher(t *testing.T, cfg Config, adapter *fakeAdapter, displays []display.Display) (*Dispatcher, *StatusBoard, *fakeHistory) {
	t.Helper()

	board := NewStatusBoard(time.Hour)
	history := &fakeHistory{}
	registry := &fakeRegistry{displays: displays}
	adapters := map[display.Protocol]Adapter{
		display.ProtocolADB:   adapter,
		display.ProtocolWebOS: adapter,
	}
	d := NewDispatcher(cfg, registry, adapters, board, history)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
		board.Close()
	})

	return d, board, history
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitTerminal(t *testing.T, board *StatusBoard, displayID string) StatusEntry {
	t.Helper()
	var entry StatusEntry
	waitFor(t, "terminal phase on "+displayID, func() bool {
		e, ok := board.Get(displayID)
		if !ok || !e.Phase.terminal() {
			return false
		}
		entry = e
		return true
	})
	return entry
}

func waitBatchDone(t *testing.T, d *Dispatcher, batchID string) *Batch {
	t.Helper()
	var b *Batch
	waitFor(t, "batch "+batchID, func() bool {
		got, err := d.GetBatch(batchID)
		if err != nil || got.Status == BatchRunning {
			return false
		}
		b = got
		return true
	})
	return b
}

func TestParseCommand(t *testing.T) {
	valid := map[string]Command{
		"on":    CommandOn,
		"off":   CommandOff,
		"check": CommandCheck,
	}
	for input, want := range valid {
		got, err := ParseCommand(input)
		if err != nil {
			t.Errorf("ParseCommand(%q) error: %v", input, err)
		}
		if got != want {
			t.Errorf("ParseCommand(%q) = %q, want %q", input, got, want)
		}
	}

	for _, input := range []string{"", "ON", "reboot", "power_on"} {
		if _, err := ParseCommand(input); !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("ParseCommand(%q) error = %v, want ErrUnknownCommand", input, err)
		}
	}
}

func TestDispatchSetsConnectingBeforeReturn(t *testing.T) {
	gate := make(chan struct{})
	adapter := &fakeAdapter{
		connectFn: func(ctx context.Context, _ display.Display) error {
			select {
			case <-gate:
			case <-ctx.Done():
			}
			return nil
		},
	}
	d, board, _ := newTestDispatcher(t, Config{}, adapter, testDisplays())

	operationID, err := d.Dispatch("bar-left", CommandCheck)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if operationID == "" {
		t.Fatal("expected non-empty operation id")
	}

	entry, ok := board.Get("bar-left")
	if !ok || entry.Phase != PhaseConnecting {
		t.Errorf("phase immediately after dispatch = %+v, want connecting", entry)
	}
	if entry.OperationID != operationID {
		t.Errorf("board operation id = %s, want %s", entry.OperationID, operationID)
	}

	close(gate)
	final := waitTerminal(t, board, "bar-left")
	if final.Result != ResultSuccess {
		t.Errorf("result = %s, want success", final.Result)
	}
}

func TestDispatchRejectsBusyDisplay(t *testing.T) {
	gate := make(chan struct{})
	adapter := &fakeAdapter{
		connectFn: func(ctx context.Context, _ display.Display) error {
			select {
			case <-gate:
			case <-ctx.Done():
			}
			return nil
		},
	}
	d, board, _ := newTestDispatcher(t, Config{}, adapter, testDisplays())

	if _, err := d.Dispatch("bar-left", CommandCheck); err != nil {
		t.Fatalf("first Dispatch() error: %v", err)
	}
	if _, err := d.Dispatch("bar-left", CommandOn); !errors.Is(err, ErrDisplayBusy) {
		t.Fatalf("second Dispatch() error = %v, want ErrDisplayBusy", err)
	}

	// A different display is not affected.
	if _, err := d.Dispatch("bar-right", CommandCheck); err != nil {
		t.Fatalf("Dispatch() on idle display error: %v", err)
	}

	close(gate)
	waitTerminal(t, board, "bar-left")
	waitFor(t, "busy flag released", func() bool { return !d.Busy("bar-left") })

	if _, err := d.Dispatch("bar-left", CommandCheck); err != nil {
		t.Errorf("Dispatch() after release error: %v", err)
	}
}

func TestDispatchErrors(t *testing.T) {
	adapter := &fakeAdapter{}
	d, _, _ := newTestDispatcher(t, Config{}, adapter, testDisplays())

	if _, err := d.Dispatch("cellar-1", CommandOn); !errors.Is(err, display.ErrDisplayNotFound) {
		t.Errorf("unknown display error = %v, want ErrDisplayNotFound", err)
	}
	if _, err := d.Dispatch("bar-left", Command("reboot")); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown command error = %v, want ErrUnknownCommand", err)
	}
}

func TestDispatchWithoutAdapter(t *testing.T) {
	board := NewStatusBoard(time.Hour)
	defer board.Close()
	registry := &fakeRegistry{displays: testDisplays()}
	adapter := &fakeAdapter{}

	// Only the ADB adapter is registered; terrace is webOS.
	d := NewDispatcher(Config{}, registry, map[display.Protocol]Adapter{
		display.ProtocolADB: adapter,
	}, board, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})

	if _, err := d.Dispatch("terrace", CommandOn); !errors.Is(err, ErrNoAdapter) {
		t.Errorf("Dispatch() error = %v, want ErrNoAdapter", err)
	}

	// In a batch the member fails instead of sinking the whole dispatch.
	batch, err := d.DispatchGroup("all", CommandCheck)
	if err != nil {
		t.Fatalf("DispatchGroup() error: %v", err)
	}
	done := waitBatchDone(t, d, batch.ID)
	if done.Failed != 1 || done.Succeeded != 2 {
		t.Errorf("counts = %d succeeded %d failed, want 2/1", done.Succeeded, done.Failed)
	}
	for _, m := range done.Members {
		if m.DisplayID == "terrace" && m.Result != ResultFailed {
			t.Errorf("terrace member result = %s, want failed", m.Result)
		}
	}
}

func TestCheckOutcomeMapping(t *testing.T) {
	tests := []struct {
		name        string
		adapter     *fakeAdapter
		wantResult  Result
		wantPhase   Phase
		wantState   display.PowerState
		wantMessage string
	}{
		{
			name:        "awake display",
			adapter:     &fakeAdapter{},
			wantResult:  ResultSuccess,
			wantPhase:   PhaseSuccess,
			wantState:   display.PowerStateAwake,
			wantMessage: "power state awake",
		},
		{
			name: "asleep display",
			adapter: &fakeAdapter{
				queryFn: func(context.Context, display.Display) (display.PowerState, error) {
					return display.PowerStateAsleep, nil
				},
			},
			wantResult:  ResultSuccess,
			wantPhase:   PhaseSuccess,
			wantState:   display.PowerStateAsleep,
			wantMessage: "power state asleep",
		},
		{
			name: "unreachable on connect",
			adapter: &fakeAdapter{
				connectFn: func(context.Context, display.Display) error {
					return fmt.Errorf("%w: could not connect: refused", display.ErrConnectivity)
				},
			},
			wantResult:  ResultFailed,
			wantPhase:   PhaseFailure,
			wantState:   display.PowerStateUnreachable,
			wantMessage: "display: device unreachable: could not connect: refused",
		},
		{
			name: "unreadable power state",
			adapter: &fakeAdapter{
				queryFn: func(context.Context, display.Display) (display.PowerState, error) {
					return display.PowerStateUnreachable, nil
				},
			},
			wantResult:  ResultFailed,
			wantPhase:   PhaseFailure,
			wantState:   display.PowerStateUnreachable,
			wantMessage: "could not read power state",
		},
		{
			name: "pairing prompt outstanding",
			adapter: &fakeAdapter{
				connectFn: func(context.Context, display.Display) error {
					return fmt.Errorf("%w: accept the pairing prompt on the TV", display.ErrPairingPending)
				},
			},
			wantResult:  ResultPairingPending,
			wantPhase:   PhasePairingPending,
			wantState:   display.PowerStateUnknown,
			wantMessage: "awaiting pairing approval on the TV",
		},
		{
			name: "protocol failure mid-query",
			adapter: &fakeAdapter{
				queryFn: func(context.Context, display.Display) (display.PowerState, error) {
					return display.PowerStateUnknown, fmt.Errorf("%w: garbled reply", display.ErrProtocol)
				},
			},
			wantResult:  ResultFailed,
			wantPhase:   PhaseFailure,
			wantState:   display.PowerStateUnknown,
			wantMessage: "display: protocol exchange failed: garbled reply",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, board, _ := newTestDispatcher(t, Config{}, tt.adapter, testDisplays())

			if _, err := d.Dispatch("bar-left", CommandCheck); err != nil {
				t.Fatalf("Dispatch() error: %v", err)
			}
			entry := waitTerminal(t, board, "bar-left")

			if entry.Result != tt.wantResult {
				t.Errorf("result = %s, want %s", entry.Result, tt.wantResult)
			}
			if entry.Phase != tt.wantPhase {
				t.Errorf("phase = %s, want %s", entry.Phase, tt.wantPhase)
			}
			if entry.PowerState != tt.wantState {
				t.Errorf("power state = %s, want %s", entry.PowerState, tt.wantState)
			}
			if entry.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", entry.Message, tt.wantMessage)
			}
		})
	}
}

func TestPowerOutcomeMapping(t *testing.T) {
	tests := []struct {
		name       string
		cmd        Command
		adapter    *fakeAdapter
		wantResult Result
		wantState  display.PowerState
	}{
		{
			name: "turned on",
			cmd:  CommandOn,
			adapter: &fakeAdapter{
				setFn: func(_ context.Context, _ display.Display, target display.PowerState) (display.SetPowerResult, error) {
					return display.SetPowerResult{State: target, Message: "turned on"}, nil
				},
			},
			wantResult: ResultSuccess,
			wantState:  display.PowerStateAwake,
		},
		{
			name: "already off",
			cmd:  CommandOff,
			adapter: &fakeAdapter{
				setFn: func(context.Context, display.Display, display.PowerState) (display.SetPowerResult, error) {
					return display.SetPowerResult{State: display.PowerStateAsleep, Skipped: true, Message: "already off"}, nil
				},
			},
			wantResult: ResultSkipped,
			wantState:  display.PowerStateAsleep,
		},
		{
			name: "unreachable",
			cmd:  CommandOn,
			adapter: &fakeAdapter{
				setFn: func(context.Context, display.Display, display.PowerState) (display.SetPowerResult, error) {
					return display.SetPowerResult{State: display.PowerStateUnreachable},
						fmt.Errorf("%w: could not connect", display.ErrConnectivity)
				},
			},
			wantResult: ResultFailed,
			wantState:  display.PowerStateUnreachable,
		},
		{
			name: "toggle refused",
			cmd:  CommandOn,
			adapter: &fakeAdapter{
				setFn: func(context.Context, display.Display, display.PowerState) (display.SetPowerResult, error) {
					return display.SetPowerResult{State: display.PowerStateAsleep},
						fmt.Errorf("%w: power toggle failed", display.ErrProtocol)
				},
			},
			wantResult: ResultFailed,
			wantState:  display.PowerStateAsleep,
		},
		{
			name: "pairing pending",
			cmd:  CommandOff,
			adapter: &fakeAdapter{
				setFn: func(context.Context, display.Display, display.PowerState) (display.SetPowerResult, error) {
					return display.SetPowerResult{State: display.PowerStateUnknown},
						fmt.Errorf("%w: accept the pairing prompt on the TV", display.ErrPairingPending)
				},
			},
			wantResult: ResultPairingPending,
			wantState:  display.PowerStateUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, board, history := newTestDispatcher(t, Config{}, tt.adapter, testDisplays())

			if _, err := d.Dispatch("bar-left", tt.cmd); err != nil {
				t.Fatalf("Dispatch() error: %v", err)
			}
			entry := waitTerminal(t, board, "bar-left")

			if entry.Result != tt.wantResult {
				t.Errorf("result = %s, want %s", entry.Result, tt.wantResult)
			}
			if entry.PowerState != tt.wantState {
				t.Errorf("power state = %s, want %s", entry.PowerState, tt.wantState)
			}

			waitFor(t, "history entry", func() bool { return len(history.recorded()) == 1 })
			rec := history.recorded()[0]
			if rec.Result != string(tt.wantResult) || rec.Command != string(tt.cmd) {
				t.Errorf("history = %s/%s, want %s/%s", rec.Command, rec.Result, tt.cmd, tt.wantResult)
			}
		})
	}
}

func TestPowerTargetMapping(t *testing.T) {
	adapter := &fakeAdapter{}
	d, board, _ := newTestDispatcher(t, Config{}, adapter, testDisplays())

	if _, err := d.Dispatch("bar-left", CommandOn); err != nil {
		t.Fatalf("Dispatch(on) error: %v", err)
	}
	waitTerminal(t, board, "bar-left")

	waitFor(t, "busy released", func() bool { return !d.Busy("bar-left") })
	if _, err := d.Dispatch("bar-left", CommandOff); err != nil {
		t.Fatalf("Dispatch(off) error: %v", err)
	}
	waitFor(t, "second terminal", func() bool {
		e, ok := board.Get("bar-left")
		return ok && e.Phase.terminal() && e.Command == CommandOff
	})

	calls := adapter.recorded()
	var sets []string
	for _, c := range calls {
		if strings.HasPrefix(c, "set:") {
			sets = append(sets, c)
		}
	}
	want := []string{"set:bar-left:awake", "set:bar-left:asleep"}
	if len(sets) != len(want) || sets[0] != want[0] || sets[1] != want[1] {
		t.Errorf("SetPower calls = %v, want %v", sets, want)
	}
}

func TestOperationTimeout(t *testing.T) {
	adapter := &fakeAdapter{
		setFn: func(ctx context.Context, _ display.Display, _ display.PowerState) (display.SetPowerResult, error) {
			<-ctx.Done()
			return display.SetPowerResult{State: display.PowerStateUnknown}, ctx.Err()
		},
	}
	d, board, _ := newTestDispatcher(t, Config{OperationTimeout: 40 * time.Millisecond}, adapter, testDisplays())

	if _, err := d.Dispatch("bar-left", CommandOn); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	entry := waitTerminal(t, board, "bar-left")
	if entry.Result != ResultFailed {
		t.Errorf("result = %s, want failed", entry.Result)
	}
	if entry.Message != "operation timed out" {
		t.Errorf("message = %q, want operation timed out", entry.Message)
	}
}

func TestAdapterPanicContained(t *testing.T) {
	adapter := &fakeAdapter{
		queryFn: func(context.Context, display.Display) (display.PowerState, error) {
			panic("adapter bug")
		},
	}
	d, board, _ := newTestDispatcher(t, Config{}, adapter, testDisplays())

	if _, err := d.Dispatch("bar-left", CommandCheck); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	entry := waitTerminal(t, board, "bar-left")
	if entry.Result != ResultFailed || entry.Message != "internal adapter failure" {
		t.Errorf("panicked operation = %+v, want failed/internal adapter failure", entry)
	}

	// The worker pool survives a panicking adapter.
	if _, err := d.Dispatch("bar-right", CommandOn); err != nil {
		t.Fatalf("Dispatch() after panic error: %v", err)
	}
	if got := waitTerminal(t, board, "bar-right"); got.Result != ResultSuccess {
		t.Errorf("follow-up result = %s, want success", got.Result)
	}
}

func TestDispatchGroupPartialSuccess(t *testing.T) {
	adapter := &fakeAdapter{
		connectFn: func(_ context.Context, d display.Display) error {
			if d.ID == "bar-right" {
				return fmt.Errorf("%w: could not connect: refused", display.ErrConnectivity)
			}
			return nil
		},
	}
	d, _, history := newTestDispatcher(t, Config{}, adapter, testDisplays())

	batch, err := d.DispatchGroup("all", CommandCheck)
	if err != nil {
		t.Fatalf("DispatchGroup() error: %v", err)
	}
	if batch.Total != 3 {
		t.Fatalf("total = %d, want 3", batch.Total)
	}

	done := waitBatchDone(t, d, batch.ID)
	if done.Status != BatchPartial {
		t.Errorf("status = %s, want partial", done.Status)
	}
	if done.Succeeded != 2 || done.Failed != 1 {
		t.Errorf("counts = %d succeeded %d failed, want 2/1", done.Succeeded, done.Failed)
	}
	if done.CompletedAt == nil || done.DurationMS == nil {
		t.Error("expected completion stamps on finished batch")
	}

	// Members keep inventory order.
	wantOrder := []string{"bar-left", "bar-right", "terrace"}
	for i, m := range done.Members {
		if m.DisplayID != wantOrder[i] {
			t.Errorf("member %d = %s, want %s", i, m.DisplayID, wantOrder[i])
		}
		if m.Result == "" {
			t.Errorf("member %s has no result", m.DisplayID)
		}
	}

	waitFor(t, "history entries", func() bool { return len(history.recorded()) == 3 })
	for _, rec := range history.recorded() {
		if rec.BatchID != batch.ID {
			t.Errorf("history batch id = %s, want %s", rec.BatchID, batch.ID)
		}
	}
}

func TestBatchFinishedCallback(t *testing.T) {
	adapter := &fakeAdapter{}
	d, _, _ := newTestDispatcher(t, Config{}, adapter, testDisplays())

	var mu sync.Mutex
	var finished []Batch
	d.SetOnBatchFinished(func(b Batch) {
		mu.Lock()
		finished = append(finished, b)
		mu.Unlock()
	})

	batch, err := d.DispatchGroup("all", CommandCheck)
	if err != nil {
		t.Fatalf("DispatchGroup() error: %v", err)
	}
	waitBatchDone(t, d, batch.ID)

	waitFor(t, "batch callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) == 1
	})

	mu.Lock()
	got := finished[0]
	mu.Unlock()
	if got.ID != batch.ID {
		t.Errorf("callback batch id = %s, want %s", got.ID, batch.ID)
	}
	if got.Status == BatchRunning {
		t.Error("callback fired with a running batch")
	}
	if got.CompletedAt == nil {
		t.Error("callback batch has no completion stamp")
	}
}

func TestDispatchGroupSkipsBusyMember(t *testing.T) {
	gate := make(chan struct{})
	adapter := &fakeAdapter{
		connectFn: func(ctx context.Context, d display.Display) error {
			if d.ID == "bar-left" {
				select {
				case <-gate:
				case <-ctx.Done():
				}
			}
			return nil
		},
	}
	d, board, history := newTestDispatcher(t, Config{}, adapter, testDisplays())

	if _, err := d.Dispatch("bar-left", CommandCheck); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	batch, err := d.DispatchGroup("all", CommandCheck)
	if err != nil {
		t.Fatalf("DispatchGroup() error: %v", err)
	}

	done := waitBatchDone(t, d, batch.ID)
	if done.Status != BatchCompleted {
		t.Errorf("status = %s, want completed (skips count as success)", done.Status)
	}
	if done.Skipped != 1 || done.Succeeded != 2 {
		t.Errorf("counts = %d succeeded %d skipped, want 2/1", done.Succeeded, done.Skipped)
	}
	for _, m := range done.Members {
		if m.DisplayID != "bar-left" {
			continue
		}
		if m.Result != ResultSkipped || m.Message != "operation already in progress" {
			t.Errorf("busy member = %+v, want skipped", m)
		}
	}

	var foundSkip bool
	for _, rec := range history.recorded() {
		if rec.DisplayID == "bar-left" && rec.Result == string(ResultSkipped) && rec.BatchID == batch.ID {
			foundSkip = true
			if rec.DurationMS != 0 {
				t.Errorf("skipped member duration = %d, want 0", rec.DurationMS)
			}
		}
	}
	if !foundSkip {
		t.Error("busy skip was not recorded in history")
	}

	close(gate)
	waitTerminal(t, board, "bar-left")
}

func TestDispatchGroupAllMembersFail(t *testing.T) {
	adapter := &fakeAdapter{
		connectFn: func(context.Context, display.Display) error {
			return fmt.Errorf("%w: could not connect", display.ErrConnectivity)
		},
	}
	d, _, _ := newTestDispatcher(t, Config{}, adapter, testDisplays())

	batch, err := d.DispatchGroup("bar", CommandCheck)
	if err != nil {
		t.Fatalf("DispatchGroup() error: %v", err)
	}

	done := waitBatchDone(t, d, batch.ID)
	if done.Status != BatchFailed {
		t.Errorf("status = %s, want failed", done.Status)
	}
	if done.Failed != 2 || done.Total != 2 {
		t.Errorf("counts = %d/%d failed, want 2/2", done.Failed, done.Total)
	}
}

func TestDispatchGroupUnknownTarget(t *testing.T) {
	d, _, _ := newTestDispatcher(t, Config{}, &fakeAdapter{}, testDisplays())

	if _, err := d.DispatchGroup("cellar", CommandOn); !errors.Is(err, display.ErrGroupNotFound) {
		t.Errorf("DispatchGroup() error = %v, want ErrGroupNotFound", err)
	}
}

func TestDispatchGroupEmptyInventory(t *testing.T) {
	d, _, _ := newTestDispatcher(t, Config{}, &fakeAdapter{}, nil)

	batch, err := d.DispatchGroup("all", CommandOn)
	if err != nil {
		t.Fatalf("DispatchGroup() error: %v", err)
	}
	if batch.Total != 0 || batch.Status != BatchCompleted {
		t.Errorf("empty batch = %s total %d, want completed/0", batch.Status, batch.Total)
	}
	if batch.CompletedAt == nil {
		t.Error("empty batch missing completion stamp")
	}
}

func TestBatchRingEviction(t *testing.T) {
	d, _, _ := newTestDispatcher(t, Config{BatchHistory: 2}, &fakeAdapter{}, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		batch, err := d.DispatchGroup("all", CommandCheck)
		if err != nil {
			t.Fatalf("DispatchGroup() error: %v", err)
		}
		ids = append(ids, batch.ID)
	}

	if _, err := d.GetBatch(ids[0]); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("evicted batch error = %v, want ErrBatchNotFound", err)
	}
	if _, err := d.GetBatch(ids[2]); err != nil {
		t.Errorf("recent batch error: %v", err)
	}

	listed := d.ListBatches(0)
	if len(listed) != 2 {
		t.Fatalf("listed = %d batches, want 2", len(listed))
	}
	if listed[0].ID != ids[2] || listed[1].ID != ids[1] {
		t.Errorf("list order = %s,%s, want most recent first", listed[0].ID, listed[1].ID)
	}

	if got := d.ListBatches(1); len(got) != 1 || got[0].ID != ids[2] {
		t.Errorf("ListBatches(1) wrong slice")
	}
}

func TestWorkerPoolCeiling(t *testing.T) {
	var mu sync.Mutex
	current, peak := 0, 0

	adapter := &fakeAdapter{
		setFn: func(_ context.Context, _ display.Display, target display.PowerState) (display.SetPowerResult, error) {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(30 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			return display.SetPowerResult{State: target, Message: "turned on"}, nil
		},
	}

	displays := []display.Display{
		{ID: "d1", IP: "10.0.0.1", Protocol: display.ProtocolADB, Group: "bar"},
		{ID: "d2", IP: "10.0.0.2", Protocol: display.ProtocolADB, Group: "bar"},
		{ID: "d3", IP: "10.0.0.3", Protocol: display.ProtocolADB, Group: "bar"},
		{ID: "d4", IP: "10.0.0.4", Protocol: display.ProtocolADB, Group: "bar"},
		{ID: "d5", IP: "10.0.0.5", Protocol: display.ProtocolADB, Group: "bar"},
	}
	d, _, _ := newTestDispatcher(t, Config{MaxWorkers: 2}, adapter, displays)

	batch, err := d.DispatchGroup("all", CommandOn)
	if err != nil {
		t.Fatalf("DispatchGroup() error: %v", err)
	}
	done := waitBatchDone(t, d, batch.ID)
	if done.Succeeded != 5 {
		t.Fatalf("succeeded = %d, want 5", done.Succeeded)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak)
	}
}

func TestHistoryWriteFailureDoesNotAffectOutcome(t *testing.T) {
	adapter := &fakeAdapter{}
	d, board, history := newTestDispatcher(t, Config{}, adapter, testDisplays())
	history.err = errors.New("database is locked")

	if _, err := d.Dispatch("bar-left", CommandCheck); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	entry := waitTerminal(t, board, "bar-left")
	if entry.Result != ResultSuccess {
		t.Errorf("result = %s, want success despite audit failure", entry.Result)
	}
	if len(history.recorded()) != 0 {
		t.Errorf("recorded %d entries, want none", len(history.recorded()))
	}
}

func TestCloseWaitsAndDisconnects(t *testing.T) {
	adapter := &fakeAdapter{}
	d, board, _ := newTestDispatcher(t, Config{}, adapter, testDisplays())

	if _, err := d.Dispatch("bar-left", CommandCheck); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	waitTerminal(t, board, "bar-left")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	var disconnects int
	for _, c := range adapter.recorded() {
		if strings.HasPrefix(c, "disconnect:") {
			disconnects++
		}
	}
	if disconnects != 3 {
		t.Errorf("disconnects = %d, want one per display", disconnects)
	}

	if _, err := d.Dispatch("bar-left", CommandOn); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("Dispatch() after close error = %v, want ErrDispatcherClosed", err)
	}
	if _, err := d.DispatchGroup("all", CommandOn); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("DispatchGroup() after close error = %v, want ErrDispatcherClosed", err)
	}
}

func TestCloseTimesOutOnStuckOperation(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)

	adapter := &fakeAdapter{
		connectFn: func(_ context.Context, _ display.Display) error {
			<-gate
			return nil
		},
	}
	d, _, _ := newTestDispatcher(t, Config{}, adapter, testDisplays())

	if _, err := d.Dispatch("bar-left", CommandCheck); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want DeadlineExceeded", err)
	}
}
