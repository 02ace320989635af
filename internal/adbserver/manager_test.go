package adbserver

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/venuecast/venuecast-core/internal/infrastructure/config"
)

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(config.ADBConfig{})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	// Verify defaults are applied
	if m.cfg.Binary != "adb" {
		t.Errorf("Binary = %q, want %q", m.cfg.Binary, "adb")
	}
	if m.cfg.Server.Port != 5037 {
		t.Errorf("Server.Port = %d, want 5037", m.cfg.Server.Port)
	}
	if m.cfg.Server.RestartDelaySeconds != 5 {
		t.Errorf("RestartDelaySeconds = %d, want 5", m.cfg.Server.RestartDelaySeconds)
	}
	if m.cfg.Server.MaxRestartAttempts != 10 {
		t.Errorf("MaxRestartAttempts = %d, want 10", m.cfg.Server.MaxRestartAttempts)
	}
	if m.cfg.Server.HealthCheckIntervalSeconds != 30 {
		t.Errorf("HealthCheckIntervalSeconds = %d, want 30", m.cfg.Server.HealthCheckIntervalSeconds)
	}
}

func TestNewManager_CustomConfig(t *testing.T) {
	cfg := config.ADBConfig{
		Binary: "/opt/platform-tools/adb",
		Server: config.ADBServerConfig{
			Enabled:                    true,
			Port:                       5038,
			RestartDelaySeconds:        10,
			MaxRestartAttempts:         3,
			HealthCheckIntervalSeconds: 60,
		},
	}

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if m.cfg.Binary != "/opt/platform-tools/adb" {
		t.Errorf("Binary = %q, want %q", m.cfg.Binary, "/opt/platform-tools/adb")
	}
	if m.cfg.Server.Port != 5038 {
		t.Errorf("Server.Port = %d, want 5038", m.cfg.Server.Port)
	}
	if m.cfg.Server.MaxRestartAttempts != 3 {
		t.Errorf("MaxRestartAttempts = %d, want 3", m.cfg.Server.MaxRestartAttempts)
	}
}

func TestNewManager_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"negative port", -1},
		{"port too large", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(config.ADBConfig{
				Server: config.ADBServerConfig{Port: tt.port},
			})
			if err == nil {
				t.Error("NewManager() expected error, got nil")
			}
		})
	}
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		port int
		want []string
	}{
		{"default port", 5037, []string{"-P", "5037", "server", "nodaemon"}},
		{"custom port", 5038, []string{"-P", "5038", "server", "nodaemon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(config.ADBConfig{
				Server: config.ADBServerConfig{Port: tt.port},
			})
			if err != nil {
				t.Fatalf("NewManager() error: %v", err)
			}

			got := m.BuildArgs()
			if len(got) != len(tt.want) {
				t.Fatalf("BuildArgs() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("BuildArgs()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAddr(t *testing.T) {
	m, err := NewManager(config.ADBConfig{
		Server: config.ADBServerConfig{Port: 5037},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if got := m.Addr(); got != "127.0.0.1:5037" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:5037")
	}
}

func TestIsManaged(t *testing.T) {
	managed, err := NewManager(config.ADBConfig{
		Server: config.ADBServerConfig{Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if !managed.IsManaged() {
		t.Error("IsManaged() = false, want true")
	}

	external, err := NewManager(config.ADBConfig{})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if external.IsManaged() {
		t.Error("IsManaged() = true, want false")
	}
}

func TestIsRunning_Unmanaged(t *testing.T) {
	m, err := NewManager(config.ADBConfig{})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	// Unmanaged servers are assumed running; HealthCheck verifies for real.
	if !m.IsRunning() {
		t.Error("IsRunning() = false, want true for unmanaged server")
	}
}

func TestIsRunning_NotStarted(t *testing.T) {
	m, err := NewManager(config.ADBConfig{
		Server: config.ADBServerConfig{Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if m.IsRunning() {
		t.Error("IsRunning() = true, want false before Start()")
	}
}

func TestStart_Disabled(t *testing.T) {
	m, err := NewManager(config.ADBConfig{})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if m.process != nil {
		t.Error("Start() created a process manager for an unmanaged server")
	}

	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestStart_BinaryExitsBeforeReady(t *testing.T) {
	m, err := NewManager(config.ADBConfig{
		Binary: "/bin/true",
		Server: config.ADBServerConfig{
			Enabled: true,
			Port:    unusedPort(t),
		},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	err = m.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error for binary that exits immediately")
	}
	if !strings.Contains(err.Error(), "failed to become ready") {
		t.Errorf("Start() error = %v, want readiness failure", err)
	}
}

func TestStop_NotStarted(t *testing.T) {
	m, err := NewManager(config.ADBConfig{
		Server: config.ADBServerConfig{Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestStats_Unmanaged(t *testing.T) {
	m, err := NewManager(config.ADBConfig{})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	stats := m.Stats()
	if stats.Status != "external" {
		t.Errorf("Status = %q, want %q", stats.Status, "external")
	}
	if stats.Managed {
		t.Error("Stats.Managed = true, want false")
	}
	if stats.Addr != "127.0.0.1:5037" {
		t.Errorf("Addr = %q, want %q", stats.Addr, "127.0.0.1:5037")
	}
}

func TestStats_NotStarted(t *testing.T) {
	m, err := NewManager(config.ADBConfig{
		Server: config.ADBServerConfig{Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	stats := m.Stats()
	if stats.Status != "stopped" {
		t.Errorf("Status = %q, want %q", stats.Status, "stopped")
	}
	if !stats.Managed {
		t.Error("Stats.Managed = false, want true")
	}
}

func TestHealthCheck_OK(t *testing.T) {
	port, requests := fakeDaemon(t, "OKAY0004001d")

	m, err := NewManager(config.ADBConfig{
		Server: config.ADBServerConfig{Port: port},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	if err := m.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}

	select {
	case got := <-requests:
		if got != "host:version" {
			t.Errorf("requested service = %q, want %q", got, "host:version")
		}
	case <-time.After(time.Second):
		t.Fatal("daemon never received a request")
	}
}

func TestHealthCheck_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string // substring of the returned error
	}{
		{"fail with message", "FAIL000edevice offline", "device offline"},
		{"fail truncated", "FAIL", "server reported failure"},
		{"fail zero length", "FAIL0000", "server reported failure"},
		{"fail bad length", "FAILzzzz", "server reported failure"},
		{"unexpected status", "WHAT", "unexpected status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, _ := fakeDaemon(t, tt.reply)

			m, err := NewManager(config.ADBConfig{
				Server: config.ADBServerConfig{Port: port},
			})
			if err != nil {
				t.Fatalf("NewManager() error: %v", err)
			}

			err = m.HealthCheck(context.Background())
			if err == nil {
				t.Fatal("HealthCheck() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("HealthCheck() error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestHealthCheck_ConnectionRefused(t *testing.T) {
	m, err := NewManager(config.ADBConfig{
		Server: config.ADBServerConfig{Port: unusedPort(t)},
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	err = m.HealthCheck(context.Background())
	if err == nil {
		t.Fatal("HealthCheck() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "connect") {
		t.Errorf("HealthCheck() error = %v, want connect failure", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	m, err := NewManager(config.ADBConfig{})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error with cancelled context")
	}
}

// fakeDaemon listens on an ephemeral port and answers one smart-socket
// request with a canned reply. The requested service name is delivered
// on the returned channel.
func fakeDaemon(t *testing.T, reply string) (int, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	requests := make(chan string, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, 4)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		n, err := strconv.ParseUint(string(header), 16, 16)
		if err != nil {
			return
		}
		service := make([]byte, n)
		if _, err := io.ReadFull(conn, service); err != nil {
			return
		}
		requests <- string(service)

		conn.Write([]byte(reply))
	}()

	return ln.Addr().(*net.TCPAddr).Port, requests
}

// unusedPort returns a port with nothing listening on it.
func unusedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	return port
}
