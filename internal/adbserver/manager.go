package adbserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/venuecast/venuecast-core/internal/infrastructure/config"
	"github.com/venuecast/venuecast-core/internal/process"
)

// Timeouts and intervals for adb server management.
const (
	// readyTimeout is how long to wait for the daemon to accept TCP
	// connections after starting.
	readyTimeout = 30 * time.Second

	// readyPollInterval is how often to try connecting during the
	// readiness check.
	readyPollInterval = 100 * time.Millisecond

	// dialTimeout is the timeout for individual TCP connection attempts.
	dialTimeout = 500 * time.Millisecond

	// healthProbeTimeout bounds one full health probe (dial, write, read).
	healthProbeTimeout = 3 * time.Second

	// versionService is the smart-socket service queried by health
	// probes. The daemon answers it without touching any device.
	versionService = "host:version"
)

// maxPort is the highest valid TCP port.
const maxPort = 65535

// Logger defines the logging interface for the adb server manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager manages the adb host daemon process.
type Manager struct {
	cfg     config.ADBConfig
	process *process.Manager
	logger  Logger
}

// NewManager creates a new adb server manager.
func NewManager(cfg config.ADBConfig) (*Manager, error) {
	// Apply defaults for zero values
	if cfg.Binary == "" {
		cfg.Binary = "adb"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5037
	}
	if cfg.Server.RestartDelaySeconds == 0 {
		cfg.Server.RestartDelaySeconds = 5
	}
	if cfg.Server.MaxRestartAttempts == 0 {
		cfg.Server.MaxRestartAttempts = 10
	}
	if cfg.Server.HealthCheckIntervalSeconds == 0 {
		cfg.Server.HealthCheckIntervalSeconds = 30
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > maxPort {
		return nil, fmt.Errorf("invalid adb server port %d", cfg.Server.Port)
	}

	return &Manager{
		cfg:    cfg,
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Addr returns the daemon's listen address.
func (m *Manager) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", m.cfg.Server.Port)
}

// BuildArgs returns the command-line arguments for the daemon.
// nodaemon keeps it in the foreground so the process manager owns it.
func (m *Manager) BuildArgs() []string {
	return []string{"-P", strconv.Itoa(m.cfg.Server.Port), "server", "nodaemon"}
}

// Start launches the adb server daemon.
// It blocks until the daemon is ready to accept connections.
func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Server.Enabled {
		m.logger.Info("adb server management disabled, expecting external server", "addr", m.Addr())
		return nil
	}

	args := m.BuildArgs()

	m.logger.Info("starting adb server",
		"binary", m.cfg.Binary,
		"args", args,
	)

	// Create the process manager
	procConfig := process.Config{
		Name:               "adb-server",
		Binary:             m.cfg.Binary,
		Args:               args,
		RestartOnFailure:   m.cfg.Server.RestartOnFailure,
		RestartDelay:       m.cfg.Server.GetRestartDelay(),
		MaxRestartAttempts: m.cfg.Server.MaxRestartAttempts,
		OnStart: func() {
			m.logger.Info("adb server process started", "pid", m.process.PID())
		},
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("adb server process stopped", "error", err)
			} else {
				m.logger.Info("adb server process stopped")
			}
		},
		OnRestart: func(attempt int) {
			m.logger.Info("adb server restarting", "attempt", attempt)
		},
		// Watchdog: periodic health check to detect a hung daemon
		HealthCheckInterval: m.cfg.Server.GetHealthCheckInterval(),
		HealthCheckFunc: func(ctx context.Context) error {
			return m.HealthCheck(ctx)
		},
	}

	m.process = process.NewManager(procConfig)
	m.process.SetLogger(m.logger)

	// Start the process
	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting adb server: %w", err)
	}

	// Wait for the daemon to be ready (TCP port accepting connections)
	if err := m.waitForReady(ctx); err != nil {
		// Stop the process if it didn't become ready
		if stopErr := m.process.Stop(); stopErr != nil {
			m.logger.Warn("error stopping adb server after failed readiness check", "error", stopErr)
		}
		return fmt.Errorf("adb server failed to become ready: %w", err)
	}

	m.logger.Info("adb server ready", "addr", m.Addr())

	return nil
}

// waitForReady waits for the daemon to accept connections.
func (m *Manager) waitForReady(ctx context.Context) error {
	addr := m.Addr()
	deadline := time.Now().Add(readyTimeout)

	m.logger.Debug("waiting for adb server to be ready", "address", addr)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for adb server: %w", ctx.Err())
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for adb server on %s after %v", addr, readyTimeout)
		}

		// Check if process is still running
		if !m.process.IsRunning() {
			lastErr := m.process.LastError()
			if lastErr != nil {
				return fmt.Errorf("adb server process exited: %w", lastErr)
			}
			return errors.New("adb server process exited unexpectedly")
		}

		// Try to connect
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			conn.Close()
			return nil
		}

		time.Sleep(readyPollInterval)
	}
}

// Stop gracefully stops the adb server daemon.
func (m *Manager) Stop() error {
	if !m.cfg.Server.Enabled || m.process == nil {
		return nil
	}

	m.logger.Info("stopping adb server")

	return m.process.Stop()
}

// IsRunning returns true if the daemon is currently running.
func (m *Manager) IsRunning() bool {
	if !m.cfg.Server.Enabled {
		// If not managed, assume the external daemon is running.
		// HealthCheck can verify for real.
		return true
	}
	if m.process == nil {
		return false
	}
	return m.process.IsRunning()
}

// IsManaged returns true if this manager is controlling the daemon.
func (m *Manager) IsManaged() bool {
	return m.cfg.Server.Enabled
}

// Stats holds statistics about the adb server daemon.
type Stats struct {
	Managed      bool          `json:"managed"`
	Status       string        `json:"status"`
	Addr         string        `json:"addr"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the daemon.
func (m *Manager) Stats() Stats {
	stats := Stats{
		Managed: m.cfg.Server.Enabled,
		Addr:    m.Addr(),
	}

	if m.process != nil {
		procStats := m.process.Stats()
		stats.Status = string(procStats.Status)
		stats.PID = procStats.PID
		stats.Uptime = procStats.Uptime
		stats.RestartCount = procStats.RestartCount
		stats.LastError = procStats.LastError
	} else if !m.cfg.Server.Enabled {
		stats.Status = "external"
	} else {
		stats.Status = "stopped"
	}

	return stats
}

// HealthCheck verifies the daemon answers its own wire protocol.
//
// The probe speaks the smart-socket framing directly: a four-hex-digit
// length prefix followed by the service name, answered by a four-byte
// OKAY or FAIL status. host:version is served by the daemon itself
// without touching any device, so the probe is cheap and does not
// depend on display availability. Works for managed and external
// daemons alike.
func (m *Manager) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(checkCtx, "tcp", m.Addr())
	if err != nil {
		return fmt.Errorf("adb server health check failed (connect): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(healthProbeTimeout)); err != nil {
		return fmt.Errorf("adb server health check failed (set deadline): %w", err)
	}

	request := fmt.Sprintf("%04x%s", len(versionService), versionService)
	if _, err := conn.Write([]byte(request)); err != nil {
		return fmt.Errorf("adb server health check failed (write): %w", err)
	}

	status := make([]byte, 4)
	if _, err := io.ReadFull(conn, status); err != nil {
		return fmt.Errorf("adb server health check failed (read status): %w", err)
	}

	switch string(status) {
	case "OKAY":
		return nil
	case "FAIL":
		return fmt.Errorf("adb server health check failed: %s", readFailMessage(conn))
	default:
		return fmt.Errorf("adb server health check failed: unexpected status %q", status)
	}
}

// readFailMessage reads the hex-length-prefixed error that follows a
// FAIL status. Best effort: a malformed trailer falls back to a
// generic message.
func readFailMessage(conn net.Conn) string {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return "server reported failure"
	}

	n, err := strconv.ParseUint(string(lenBuf), 16, 16)
	if err != nil || n == 0 {
		return "server reported failure"
	}

	msg := make([]byte, n)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return "server reported failure"
	}

	return string(msg)
}
