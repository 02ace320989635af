// Package mqtt provides MQTT client connectivity for VenueCast Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is VenueCast's optional integration surface for venue automation.
// Building control systems and dashboards subscribe to retained display
// status and publish power commands without touching the HTTP API.
//
//	Venue Automation ↔ MQTT Broker ↔ VenueCast Core ↔ Displays
//
// The entire surface is optional: when mqtt.enabled is false, Core runs
// without a broker and only the HTTP/WebSocket API is available.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to inbound display commands
//	err = client.Subscribe(mqtt.Topics{}.AllDisplayCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish retained status
//	topic := mqtt.Topics{}.DisplayStatus("bar-left")
//	client.PublishRetained(topic, []byte(`{"phase":"success","power_state":"awake"}`))
//
// # Related Documents
//
//   - docs/protocols/mqtt.md — Topic structure and message formats
package mqtt
