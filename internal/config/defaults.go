package config

import "time"

// Central place for all application-wide timing constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/jkaberg/iotkit-logger/internal/config.

const (
	// Link management
	ReconnectDelay = 2 * time.Second  // Pause after the BLE link drops
	ConnectTimeout = 20 * time.Second // Scan + connect + subscribe

	// Transmission intervals
	MQTTTransmitInterval  = 10 * time.Second // Publish latest report to MQTT
	KafkaTransmitInterval = 0                // Every report

	// Operation time-outs (to avoid blocking goroutines)
	MQTTTimeout  = 5 * time.Second // MQTT publish
	KafkaTimeout = 5 * time.Second // Kafka write

	DefaultLogFile = "dialog-data.log"
)
