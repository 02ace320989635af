package webos

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/venuecast/venuecast-core/internal/display"
)

// DefaultPort is the TV's plain-websocket SSAP port.
const DefaultPort = 3000

// Defaults applied by NewAdapter.
const (
	defaultDialTimeout    = 5 * time.Second
	defaultPairingTimeout = 60 * time.Second
)

// uriTurnOff is the SSAP endpoint for power-off. There is no power-on
// counterpart; a TV that could receive one would already be on.
const uriTurnOff = "ssap://system/turnOff"

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

// TokenStore persists pairing tokens handed out by TVs. Implemented by
// the display registry, which writes them back into the inventory file.
type TokenStore interface {
	SaveToken(id, token string) error
}

// Config holds webOS adapter configuration.
type Config struct {
	// Port is the TV websocket port. Defaults to 3000.
	Port int

	// DialTimeout bounds the websocket handshake. Defaults to 5s.
	DialTimeout time.Duration

	// PairingTimeout is how long a session keeps listening for the
	// user to accept the on-screen prompt after an operation has
	// already reported PairingPending. Defaults to 60s, roughly the
	// prompt's own lifetime on the TV.
	PairingTimeout time.Duration

	// BroadcastAddr overrides the wake-on-LAN broadcast target.
	BroadcastAddr string
}

// Adapter drives LG TVs over SSAP websocket sessions, with wake-on-LAN
// for power-on. One paired session is cached per display; all methods
// are safe for concurrent use.
type Adapter struct {
	cfg    Config
	tokens TokenStore
	waker  Waker

	// Session cache
	mu       sync.Mutex
	sessions map[string]*session

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// NewAdapter creates a webOS adapter.
//
// Parameters:
//   - cfg: Adapter configuration; zero values take defaults
//   - tokens: Destination for pairing tokens; nil disables write-back
//     (pairings then last only for the process lifetime)
//
// Returns:
//   - *Adapter: Ready adapter; it dials nothing until first use
func NewAdapter(cfg Config, tokens TokenStore) *Adapter {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.PairingTimeout <= 0 {
		cfg.PairingTimeout = defaultPairingTimeout
	}

	return &Adapter{
		cfg:      cfg,
		tokens:   tokens,
		waker:    &UDPWaker{BroadcastAddr: cfg.BroadcastAddr},
		sessions: make(map[string]*session),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the adapter.
func (a *Adapter) SetLogger(logger Logger) {
	a.loggerMu.Lock()
	a.logger = logger
	a.loggerMu.Unlock()
}

// Connect establishes (or resumes) the display's paired session.
//
// Returns:
//   - error: display.ErrConnectivity when the TV is unreachable,
//     display.ErrPairingPending while the on-screen prompt is up,
//     display.ErrProtocol when registration is rejected outright
func (a *Adapter) Connect(ctx context.Context, d display.Display) error {
	_, err := a.ensureSession(ctx, d)
	return err
}

// QueryPower reports the display's power state.
//
// SSAP has no reliable wakefulness endpoint across webOS versions, but
// it does not need one: the service only listens while the TV is on,
// so an established session is the answer. Dial failure reports
// unreachable rather than an error, mirroring the adb adapter.
func (a *Adapter) QueryPower(ctx context.Context, d display.Display) (display.PowerState, error) {
	_, err := a.ensureSession(ctx, d)
	switch {
	case err == nil:
		return display.PowerStateAwake, nil
	case errors.Is(err, display.ErrPairingPending):
		return display.PowerStateUnknown, err
	case errors.Is(err, display.ErrConnectivity):
		return display.PowerStateUnreachable, nil
	default:
		return display.PowerStateUnknown, err
	}
}

// SetPower drives the display toward the target state.
//
// Power-on and power-off travel different roads:
//
//   - on: an establishable session means the TV is already on
//     (Skipped); otherwise a wake-on-LAN magic packet goes out and the
//     TV is assumed to be waking. Best-effort by nature.
//   - off: an SSAP turnOff on the live session; no session at all is
//     reported Skipped, since the TV is already off or beyond reach
//     either way.
//
// A pairing prompt blocks both directions with ErrPairingPending.
func (a *Adapter) SetPower(ctx context.Context, d display.Display, target display.PowerState) (display.SetPowerResult, error) {
	switch target {
	case display.PowerStateAwake:
		return a.powerOn(ctx, d)
	case display.PowerStateAsleep:
		return a.powerOff(ctx, d)
	default:
		return display.SetPowerResult{}, fmt.Errorf("%w: unsupported target power state %s", display.ErrProtocol, target)
	}
}

func (a *Adapter) powerOn(ctx context.Context, d display.Display) (display.SetPowerResult, error) {
	_, err := a.ensureSession(ctx, d)
	if err == nil {
		return display.SetPowerResult{
			State:   display.PowerStateAwake,
			Skipped: true,
			Message: "already on",
		}, nil
	}
	if errors.Is(err, display.ErrPairingPending) {
		return display.SetPowerResult{State: display.PowerStateUnknown}, err
	}

	// No session, no prompt: the TV is asleep or hard-off, and only a
	// wake-on-LAN packet can reach it.
	if d.MAC == "" {
		return display.SetPowerResult{State: display.PowerStateUnknown},
			fmt.Errorf("%w: no mac address configured for wake-on-lan", display.ErrProtocol)
	}

	if err := a.waker.Wake(d.MAC); err != nil {
		return display.SetPowerResult{State: display.PowerStateAsleep},
			fmt.Errorf("%w: wake-on-lan send failed: %v", display.ErrConnectivity, err)
	}

	a.logInfo("wake-on-lan packet sent", "display_id", d.ID)

	return display.SetPowerResult{
		State:   display.PowerStateAwake,
		Message: "wake-on-lan packet sent",
	}, nil
}

func (a *Adapter) powerOff(ctx context.Context, d display.Display) (display.SetPowerResult, error) {
	sess, err := a.ensureSession(ctx, d)
	if errors.Is(err, display.ErrPairingPending) {
		return display.SetPowerResult{State: display.PowerStateUnknown}, err
	}
	if err != nil {
		// Unreachable and already-off are indistinguishable from here,
		// and both mean there is nothing to do.
		return display.SetPowerResult{
			State:   display.PowerStateAsleep,
			Skipped: true,
			Message: "already off or unreachable",
		}, nil
	}

	resp, err := sess.request(ctx, uriTurnOff)
	if err != nil {
		a.dropSession(d.ID)
		return display.SetPowerResult{State: display.PowerStateAwake},
			fmt.Errorf("%w: power off failed: %v", display.ErrProtocol, err)
	}
	if !parsePayload(resp.Payload).ReturnValue {
		a.dropSession(d.ID)
		return display.SetPowerResult{State: display.PowerStateAwake},
			fmt.Errorf("%w: power off refused by TV", display.ErrProtocol)
	}

	// The TV tears the socket down as it powers off; drop the session
	// now rather than discovering the corpse on the next operation.
	a.dropSession(d.ID)
	a.logInfo("display powered off", "display_id", d.ID)

	return display.SetPowerResult{
		State:   display.PowerStateAsleep,
		Message: "turned off",
	}, nil
}

// Disconnect drops the display's cached session. Best-effort teardown;
// a missing session is not an error.
func (a *Adapter) Disconnect(_ context.Context, d display.Display) {
	if a.dropSession(d.ID) {
		a.logDebug("webos session dropped", "display_id", d.ID)
	}
}

// Close drops every cached session. Called on shutdown.
func (a *Adapter) Close() error {
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = make(map[string]*session)
	a.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	return nil
}

// ensureSession returns a ready session for the display, reusing the
// cached one when healthy and dialing otherwise.
func (a *Adapter) ensureSession(ctx context.Context, d display.Display) (*session, error) {
	a.mu.Lock()
	if sess := a.sessions[d.ID]; sess != nil {
		switch sess.currentState() {
		case stateReady:
			a.mu.Unlock()
			return sess, nil
		case stateRegistering, statePairing:
			a.mu.Unlock()
			return nil, fmt.Errorf("%w: accept the pairing prompt on the TV", display.ErrPairingPending)
		default:
			delete(a.sessions, d.ID)
		}
	}
	a.mu.Unlock()

	return a.dialAndRegister(ctx, d, d.Token, true)
}

// dialAndRegister opens a fresh session and drives the handshake.
// allowRepair permits one recursive retry with a blank token when the
// TV rejects a stored one.
func (a *Adapter) dialAndRegister(ctx context.Context, d display.Display, token string, allowRepair bool) (*session, error) {
	addr := net.JoinHostPort(d.IP, strconv.Itoa(a.cfg.Port))

	sess, err := dialSession(ctx, addr, a.cfg.DialTimeout, a.currentLogger())
	if err != nil {
		return nil, err
	}

	onPaired := func(key string) { a.storeToken(d, key) }

	key, err := sess.register(ctx, token, a.cfg.PairingTimeout, onPaired)
	if err != nil {
		switch {
		case errors.Is(err, display.ErrPairingPending):
			// The prompt is up; cache the session so the background
			// acceptance can promote it and follow-up operations
			// report pending instead of re-prompting.
			a.putSession(d.ID, sess)
			a.logInfo("pairing prompt shown", "display_id", d.ID)
			return nil, err

		case errors.Is(err, ErrRegistrationRejected) && token != "" && allowRepair:
			a.logWarn("stored pairing token rejected, attempting fresh pairing", "display_id", d.ID)
			return a.dialAndRegister(ctx, d, "", false)

		case errors.Is(err, ErrRegistrationRejected):
			return nil, fmt.Errorf("%w: %v", display.ErrProtocol, err)

		default:
			return nil, err
		}
	}

	if key != "" && key != token {
		a.storeToken(d, key)
	}

	a.putSession(d.ID, sess)
	a.logInfo("webos session established", "display_id", d.ID, "has_token", key != "")
	return sess, nil
}

// storeToken persists a granted pairing token. The token value itself
// is never logged.
func (a *Adapter) storeToken(d display.Display, key string) {
	if a.tokens == nil || key == "" {
		return
	}
	if err := a.tokens.SaveToken(d.ID, key); err != nil {
		a.logError("pairing token save failed", "display_id", d.ID, "error", err)
		return
	}
	a.logInfo("pairing token stored", "display_id", d.ID)
}

func (a *Adapter) putSession(id string, sess *session) {
	a.mu.Lock()
	if old := a.sessions[id]; old != nil && old != sess {
		old.close()
	}
	a.sessions[id] = sess
	a.mu.Unlock()
}

// dropSession closes and forgets a cached session, reporting whether
// one existed.
func (a *Adapter) dropSession(id string) bool {
	a.mu.Lock()
	sess := a.sessions[id]
	delete(a.sessions, id)
	a.mu.Unlock()

	if sess == nil {
		return false
	}
	sess.close()
	return true
}

func (a *Adapter) currentLogger() Logger {
	a.loggerMu.RLock()
	defer a.loggerMu.RUnlock()
	return a.logger
}

// logDebug logs a debug message if logger is set.
func (a *Adapter) logDebug(msg string, keysAndValues ...any) {
	a.currentLogger().Debug(msg, keysAndValues...)
}

// logInfo logs an info message if logger is set.
func (a *Adapter) logInfo(msg string, keysAndValues ...any) {
	a.currentLogger().Info(msg, keysAndValues...)
}

// logWarn logs a warning message if logger is set.
func (a *Adapter) logWarn(msg string, keysAndValues ...any) {
	a.currentLogger().Warn(msg, keysAndValues...)
}

// logError logs an error message if logger is set.
func (a *Adapter) logError(msg string, keysAndValues ...any) {
	a.currentLogger().Error(msg, keysAndValues...)
}
