package adb

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/venuecast/venuecast-core/internal/display"
)

// DefaultPort is the TCP port Android TVs listen on for network adb.
const DefaultPort = 5555

// Default per-invocation timeouts. A TV that takes longer than this is
// not going to answer; the dispatcher's operation timeout sits above
// these.
const (
	defaultConnectTimeout    = 5 * time.Second
	defaultQueryTimeout      = 5 * time.Second
	defaultToggleTimeout     = 5 * time.Second
	defaultDisconnectTimeout = 3 * time.Second
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

// Config holds ADB adapter configuration.
type Config struct {
	// BinaryPath is an explicit path to the adb binary. When empty or
	// missing on disk, the adapter falls back to finding adb on PATH.
	BinaryPath string

	// Port is the TCP-ADB port displays listen on. Defaults to 5555.
	Port int

	// Timeouts override the per-invocation subprocess deadlines.
	Timeouts TimeoutConfig
}

// TimeoutConfig holds per-invocation subprocess deadlines. Zero fields
// take the package defaults.
type TimeoutConfig struct {
	Connect    time.Duration
	Query      time.Duration
	Toggle     time.Duration
	Disconnect time.Duration
}

// withDefaults fills zero fields with the package defaults.
func (t TimeoutConfig) withDefaults() TimeoutConfig {
	if t.Connect <= 0 {
		t.Connect = defaultConnectTimeout
	}
	if t.Query <= 0 {
		t.Query = defaultQueryTimeout
	}
	if t.Toggle <= 0 {
		t.Toggle = defaultToggleTimeout
	}
	if t.Disconnect <= 0 {
		t.Disconnect = defaultDisconnectTimeout
	}
	return t
}

// Adapter drives Android TVs through the adb command-line tool.
//
// The adapter holds no per-display state: each method call is one or
// more subprocess invocations and the adb server daemon owns the TCP
// sessions. All methods are safe for concurrent use.
type Adapter struct {
	runner   Runner
	port     int
	timeouts TimeoutConfig

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// NewAdapter creates an ADB adapter, resolving the adb binary it will
// drive at construction time.
//
// Parameters:
//   - cfg: Adapter configuration; zero values take defaults
//
// Returns:
//   - *Adapter: Ready adapter
//   - error: ErrBinaryNotFound when neither the configured path nor
//     PATH yields an adb binary; fatal at startup since the process
//     cannot drive Android displays without it
func NewAdapter(cfg Config) (*Adapter, error) {
	path, err := resolveBinary(cfg.BinaryPath)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port <= 0 {
		port = DefaultPort
	}

	return &Adapter{
		runner:   &execRunner{path: path},
		port:     port,
		timeouts: cfg.Timeouts.withDefaults(),
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger Logger) {
	a.loggerMu.Lock()
	a.logger = logger
	a.loggerMu.Unlock()
}

// resolveBinary picks the adb binary to run: the configured path when
// it exists, otherwise whatever PATH offers.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
	}

	path, err := exec.LookPath("adb")
	if err != nil {
		if configured != "" {
			return "", fmt.Errorf("%w: %q does not exist and adb is not on PATH", ErrBinaryNotFound, configured)
		}
		return "", fmt.Errorf("%w: adb is not on PATH", ErrBinaryNotFound)
	}
	return path, nil
}

// address formats the display's TCP-ADB endpoint.
func (a *Adapter) address(d display.Display) string {
	return net.JoinHostPort(d.IP, strconv.Itoa(a.port))
}

// Connect registers the display with the adb server.
//
// adb is loose about failure: a refused connection can still exit 0
// with "failed to connect" on stdout, so reachability requires both a
// zero exit and a "connected" marker in the output.
//
// Parameters:
//   - ctx: Context for cancellation
//   - d: Display to reach
//
// Returns:
//   - error: display.ErrConnectivity when the display cannot be reached
func (a *Adapter) Connect(ctx context.Context, d display.Display) error {
	addr := a.address(d)

	out, ok, err := a.runner.Run(ctx, a.timeouts.Connect, "connect", addr)
	if err != nil {
		return fmt.Errorf("%w: could not connect: %v", display.ErrConnectivity, err)
	}
	if !ok || !strings.Contains(strings.ToLower(out), "connected") {
		return fmt.Errorf("%w: could not connect: %s", display.ErrConnectivity, out)
	}

	a.logDebug("adb connect ok", "display_id", d.ID, "output", out)
	return nil
}

// QueryPower reads the display's wakefulness from dumpsys output.
//
// The parse is deliberately forgiving: dumpsys formatting differs
// across Android versions, so the adapter looks for marker words
// rather than exact lines. Output with no recognised marker reports
// unknown; a failed invocation reports unreachable. Neither is an
// error, matching the external tool's exit-code-and-text contract.
//
// Parameters:
//   - ctx: Context for cancellation
//   - d: Display to query
//
// Returns:
//   - display.PowerState: awake, asleep, unknown, or unreachable
//   - error: Always nil for this adapter; the interface carries errors
//     for protocols that can fail mid-session
func (a *Adapter) QueryPower(ctx context.Context, d display.Display) (display.PowerState, error) {
	addr := a.address(d)

	out, ok, err := a.runner.Run(ctx, a.timeouts.Query,
		"-s", addr, "shell", "dumpsys power | grep 'mWakefulness='")
	if err != nil || !ok {
		a.logDebug("power query failed", "display_id", d.ID, "output", out, "error", err)
		return display.PowerStateUnreachable, nil
	}

	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "awake"):
		return display.PowerStateAwake, nil
	case strings.Contains(lower, "asleep"), strings.Contains(lower, "dozing"):
		return display.PowerStateAsleep, nil
	}

	a.logDebug("unrecognised wakefulness output", "display_id", d.ID, "output", out)
	return display.PowerStateUnknown, nil
}

// SetPower drives the display toward the target state.
//
// KEYCODE_POWER is a toggle, so the adapter queries current state
// first: a display already at the target is reported Skipped with no
// key event sent, otherwise the two states would alias. A display
// whose state cannot be read is not toggled either; blind toggling
// could power it the wrong way.
//
// Parameters:
//   - ctx: Context for cancellation
//   - d: Display to drive
//   - target: display.PowerStateAwake or display.PowerStateAsleep
//
// Returns:
//   - display.SetPowerResult: Resulting state, with Skipped set when
//     the display was already at the target
//   - error: display.ErrConnectivity or display.ErrProtocol, classified
//     for the dispatcher
func (a *Adapter) SetPower(ctx context.Context, d display.Display, target display.PowerState) (display.SetPowerResult, error) {
	if target != display.PowerStateAwake && target != display.PowerStateAsleep {
		return display.SetPowerResult{}, fmt.Errorf("%w: %s", ErrUnsupportedTarget, target)
	}

	if err := a.Connect(ctx, d); err != nil {
		return display.SetPowerResult{State: display.PowerStateUnreachable}, err
	}

	current, _ := a.QueryPower(ctx, d)

	if current == target {
		return display.SetPowerResult{
			State:   current,
			Skipped: true,
			Message: skippedMessage(target),
		}, nil
	}

	if current == display.PowerStateUnreachable {
		return display.SetPowerResult{State: current},
			fmt.Errorf("%w: could not read power state", display.ErrConnectivity)
	}

	out, ok, err := a.runner.Run(ctx, a.timeouts.Toggle,
		"-s", a.address(d), "shell", "input keyevent 26")
	if err != nil {
		return display.SetPowerResult{State: current},
			fmt.Errorf("%w: power toggle: %v", display.ErrConnectivity, err)
	}
	if !ok {
		return display.SetPowerResult{State: current},
			fmt.Errorf("%w: power toggle failed: %s", display.ErrProtocol, out)
	}

	a.logInfo("power toggled", "display_id", d.ID, "from", current, "to", target)

	return display.SetPowerResult{
		State:   target,
		Message: doneMessage(target),
	}, nil
}

// Disconnect removes the display's registration from the adb server.
// Best-effort: failures are logged and swallowed since a stale
// registration does not affect the next operation's correctness.
func (a *Adapter) Disconnect(ctx context.Context, d display.Display) {
	addr := a.address(d)

	out, ok, err := a.runner.Run(ctx, a.timeouts.Disconnect, "disconnect", addr)
	if err != nil || !ok {
		a.logDebug("adb disconnect failed", "display_id", d.ID, "output", out, "error", err)
	}
}

func skippedMessage(target display.PowerState) string {
	if target == display.PowerStateAwake {
		return "already on"
	}
	return "already off"
}

func doneMessage(target display.PowerState) string {
	if target == display.PowerStateAwake {
		return "turned on"
	}
	return "turned off"
}

// logDebug logs a debug message if logger is set.
func (a *Adapter) logDebug(msg string, keysAndValues ...any) {
	a.loggerMu.RLock()
	defer a.loggerMu.RUnlock()
	a.logger.Debug(msg, keysAndValues...)
}

// logInfo logs an info message if logger is set.
func (a *Adapter) logInfo(msg string, keysAndValues ...any) {
	a.loggerMu.RLock()
	defer a.loggerMu.RUnlock()
	a.logger.Info(msg, keysAndValues...)
}
