// VenueCast Core - Venue Display Power Control
//
// This is the main entry point for the VenueCast Core application.
// VenueCast powers on, powers off, and health-checks a fixed fleet of
// venue displays (Android TVs over ADB, LG TVs over webOS) and serves
// live per-display status to the operator UI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/venuecast/venuecast-core/migrations"

	"github.com/venuecast/venuecast-core/internal/adbserver"
	"github.com/venuecast/venuecast-core/internal/api"
	"github.com/venuecast/venuecast-core/internal/bridges/adb"
	"github.com/venuecast/venuecast-core/internal/bridges/webos"
	"github.com/venuecast/venuecast-core/internal/command"
	"github.com/venuecast/venuecast-core/internal/display"
	"github.com/venuecast/venuecast-core/internal/infrastructure/config"
	"github.com/venuecast/venuecast-core/internal/infrastructure/database"
	"github.com/venuecast/venuecast-core/internal/infrastructure/influxdb"
	"github.com/venuecast/venuecast-core/internal/infrastructure/logging"
	"github.com/venuecast/venuecast-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds how long shutdown waits for in-flight display
// operations to reach a terminal status.
const shutdownTimeout = 15 * time.Second

// prunePeriod is how often old operation history rows are deleted.
const prunePeriod = 24 * time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting VenueCast Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Load the display inventory. A missing file writes a template and
	// fails with an instruction to edit it; an invalid file rejects the
	// whole fleet with every problem named.
	inventory := display.NewInventory(cfg.Inventory.Path)
	registry := display.NewRegistry(inventory)
	registry.SetLogger(log)
	if loadErr := registry.Load(); loadErr != nil {
		return fmt.Errorf("loading display inventory: %w", loadErr)
	}
	log.Info("display inventory loaded",
		"path", cfg.Inventory.Path,
		"displays", registry.Count(),
	)

	history := display.NewSQLiteHistoryRepository(db.DB)

	// Start the managed adb server before the adapter needs it
	var adbServer *adbserver.Manager
	if cfg.ADB.Server.Enabled {
		adbServer, err = adbserver.NewManager(cfg.ADB)
		if err != nil {
			return fmt.Errorf("creating adb server manager: %w", err)
		}
		adbServer.SetLogger(log)
		if startErr := adbServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting adb server: %w", startErr)
		}
		defer func() {
			log.Info("stopping adb server")
			if stopErr := adbServer.Stop(); stopErr != nil {
				log.Error("error stopping adb server", "error", stopErr)
			}
		}()
		log.Info("adb server started", "addr", adbServer.Addr())
	} else {
		log.Info("adb server unmanaged, relying on external daemon")
	}

	// Protocol adapters
	adbAdapter, err := adb.NewAdapter(adb.Config{
		BinaryPath: cfg.ADB.Binary,
		Port:       cfg.ADB.Port,
		Timeouts: adb.TimeoutConfig{
			Connect:    cfg.ADB.GetConnectTimeout(),
			Query:      cfg.ADB.GetQueryTimeout(),
			Toggle:     cfg.ADB.GetToggleTimeout(),
			Disconnect: cfg.ADB.GetDisconnectTimeout(),
		},
	})
	if err != nil {
		return fmt.Errorf("creating adb adapter: %w", err)
	}
	adbAdapter.SetLogger(log)

	webosAdapter := webos.NewAdapter(webos.Config{
		Port:           cfg.WebOS.Port,
		DialTimeout:    cfg.WebOS.GetHandshakeTimeout(),
		PairingTimeout: cfg.WebOS.GetPairingTimeout(),
		BroadcastAddr:  fmt.Sprintf("%s:%d", cfg.WOL.BroadcastAddress, cfg.WOL.Port),
	}, registry)
	webosAdapter.SetLogger(log)
	defer func() {
		log.Info("closing webOS sessions")
		if closeErr := webosAdapter.Close(); closeErr != nil {
			log.Error("error closing webOS sessions", "error", closeErr)
		}
	}()

	// Status board and dispatcher
	board := command.NewStatusBoard(cfg.Dispatcher.GetStatusDecay())
	board.SetLogger(log)
	board.Seed(registry.List())

	dispatcher := command.NewDispatcher(command.Config{
		MaxWorkers:       cfg.Dispatcher.MaxConcurrent,
		OperationTimeout: cfg.Dispatcher.GetOperationTimeout(),
	}, registry, map[display.Protocol]command.Adapter{
		display.ProtocolADB:   adbAdapter,
		display.ProtocolWebOS: webosAdapter,
	}, board, history)
	dispatcher.SetLogger(log)
	log.Info("dispatcher ready",
		"max_concurrent", cfg.Dispatcher.MaxConcurrent,
		"operation_timeout_seconds", cfg.Dispatcher.OperationTimeoutSeconds,
		"status_decay_seconds", cfg.Dispatcher.StatusDecaySeconds,
	)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		if subErr := subscribeCommands(mqttClient, byte(cfg.MQTT.QoS), dispatcher, log); subErr != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", subErr)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub, created here so the event forwarder and the API
	// server share it.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Single forwarder goroutine: the status board never blocks on
	// I/O, so every consumer (websocket, MQTT, InfluxDB) hangs off
	// this loop instead. It exits when the board closes its channel.
	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		forwardStatusEvents(board, registry, hub, mqttClient, influxClient, byte(cfg.MQTT.QoS), log)
	}()
	// The forwarder exits once the board closes its channel; waiting
	// here keeps the MQTT and InfluxDB clients open until the last
	// event has been delivered (defers run in reverse order).
	defer func() { <-forwarderDone }()

	defer func() {
		log.Info("closing dispatcher")
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		if closeErr := dispatcher.Close(closeCtx); closeErr != nil {
			log.Error("error closing dispatcher", "error", closeErr)
		}
		board.Close()
	}()

	// Batch completions ride the same consumers.
	dispatcher.SetOnBatchFinished(func(b command.Batch) {
		hub.Broadcast(api.ChannelOperations, b)
		if mqttClient != nil {
			publishJSON(mqttClient, mqtt.Topics{}.OperationEvent(), byte(cfg.MQTT.QoS), false, b, log)
		}
		if influxClient != nil {
			var durationMS int64
			if b.DurationMS != nil {
				durationMS = *b.DurationMS
			}
			influxClient.WriteBatchSummary(b.ID, b.Target, string(b.Command), string(b.Status),
				b.Total, b.Succeeded, b.Failed, b.Skipped, durationMS)
		}
	})

	// API server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Registry:    registry,
		Dispatcher:  dispatcher,
		Board:       board,
		History:     history,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	server.AddComponentCheck("database", db.HealthCheck)
	if mqttClient != nil {
		server.AddComponentCheck("mqtt", mqttClient.HealthCheck)
	}
	if influxClient != nil {
		server.AddComponentCheck("influxdb", influxClient.HealthCheck)
	}
	if adbServer != nil {
		server.AddComponentCheck("adb_server", adbServer.HealthCheck)
	}

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
	)

	// Background history pruning
	go pruneLoop(ctx, history, cfg.History.GetRetention(), log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, forwarder, InfluxDB, MQTT, dispatcher + board,
	// webOS sessions, adb server, database.

	log.Info("VenueCast Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VENUECAST_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VENUECAST_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// forwardStatusEvents drains the status board's transition stream and
// fans each entry out: websocket broadcast, retained MQTT status, and
// an InfluxDB point for terminal transitions. Runs until the board
// closes the channel.
func forwardStatusEvents(board *command.StatusBoard, registry *display.Registry, hub *api.Hub, mqttClient *mqtt.Client, influxClient *influxdb.Client, qos byte, log *logging.Logger) {
	for entry := range board.Events() {
		hub.Broadcast(api.ChannelStatus, entry)

		if mqttClient != nil {
			topic := mqtt.Topics{}.DisplayStatus(entry.DisplayID)
			publishJSON(mqttClient, topic, qos, true, entry, log)
		}

		if influxClient != nil && entry.Phase != command.PhaseConnecting && entry.Phase != command.PhaseIdle {
			group, protocol := "", ""
			if d, err := registry.Get(entry.DisplayID); err == nil {
				group, protocol = string(d.Group), string(d.Protocol)
			}
			influxClient.WritePowerStatus(entry.DisplayID, group, protocol,
				string(entry.Phase), string(entry.PowerState), string(entry.Result), entry.DurationMS)
		}
	}
}

// subscribeCommands routes inbound MQTT command topics to the
// dispatcher. Payloads are either the bare command ("on", "off",
// "check") or a JSON object {"command": "..."} matching the REST body.
func subscribeCommands(client *mqtt.Client, qos byte, dispatcher *command.Dispatcher, log *logging.Logger) error {
	topics := mqtt.Topics{}

	if err := client.Subscribe(topics.AllDisplayCommands(), qos, func(topic string, payload []byte) error {
		displayID, ok := mqtt.ParseDisplayCommand(topic)
		if !ok {
			return nil
		}
		cmd, err := parseCommandPayload(payload)
		if err != nil {
			log.Warn("invalid MQTT command payload", "topic", topic, "error", err)
			return nil
		}
		if _, err := dispatcher.Dispatch(displayID, cmd); err != nil {
			log.Warn("MQTT display command rejected", "display_id", displayID, "command", cmd, "error", err)
		}
		return nil
	}); err != nil {
		return err
	}

	return client.Subscribe(topics.AllGroupCommands(), qos, func(topic string, payload []byte) error {
		group, ok := mqtt.ParseGroupCommand(topic)
		if !ok {
			return nil
		}
		cmd, err := parseCommandPayload(payload)
		if err != nil {
			log.Warn("invalid MQTT command payload", "topic", topic, "error", err)
			return nil
		}
		if _, err := dispatcher.DispatchGroup(group, cmd); err != nil {
			log.Warn("MQTT group command rejected", "group", group, "command", cmd, "error", err)
		}
		return nil
	})
}

// parseCommandPayload accepts {"command": "on"} or a bare "on".
func parseCommandPayload(payload []byte) (command.Command, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var body struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return "", fmt.Errorf("parsing command payload: %w", err)
		}
		trimmed = body.Command
	}
	return command.ParseCommand(trimmed)
}

// publishJSON marshals and publishes a payload, logging failures
// rather than surfacing them: a broken broker never fails an operation.
func publishJSON(client *mqtt.Client, topic string, qos byte, retained bool, payload any, log *logging.Logger) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("marshalling MQTT payload", "topic", topic, "error", err)
		return
	}
	if err := client.Publish(topic, data, qos, retained); err != nil {
		log.Warn("MQTT publish failed", "topic", topic, "error", err)
	}
}

// pruneLoop deletes operation history older than the retention window,
// once at startup and then daily.
func pruneLoop(ctx context.Context, history *display.SQLiteHistoryRepository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(prunePeriod)
	defer ticker.Stop()

	for {
		pruneCtx, cancel := context.WithTimeout(ctx, time.Minute)
		pruned, err := history.PruneHistory(pruneCtx, retention)
		cancel()
		if err != nil {
			log.Warn("history prune failed", "error", err)
		} else if pruned > 0 {
			log.Info("history pruned", "rows", pruned, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
