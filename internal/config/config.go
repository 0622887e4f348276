package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the iotkit-logger application
type Config struct {
	// Device Configuration
	DeviceAddress string `yaml:"device_address"` // BLE MAC address of the multi sensor kit
	DeviceID      string `yaml:"device_id"`      // Identifier used in MQTT topics and Kafka keys

	// Data log
	LogFile           string `yaml:"log_file"`           // Decoded lines are appended here
	UnsupportedPolicy string `yaml:"unsupported_policy"` // "stop" (legacy) or "skip"

	// Application Configuration
	Verbose        bool          `yaml:"verbose"`         // Enable verbose logging
	ReconnectDelay time.Duration `yaml:"reconnect_delay"` // Pause between BLE reconnect attempts

	// MQTT Configuration
	MQTTUrl         string        `yaml:"mqtt_url"`         // MQTT URL (supports both WebSocket and standard MQTT)
	DiscoveryPrefix string        `yaml:"discovery_prefix"` // Home Assistant discovery prefix
	MQTTInterval    time.Duration `yaml:"mqtt_interval"`

	// Kafka Configuration
	KafkaBrokers  []string      `yaml:"kafka_brokers"`
	KafkaTopic    string        `yaml:"kafka_topic"`
	KafkaInterval time.Duration `yaml:"kafka_interval"`

	// HTTP status endpoint; empty disables it
	HTTPAddr string `yaml:"http_addr"`
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		DeviceID:          "iotkit",
		LogFile:           DefaultLogFile,
		UnsupportedPolicy: "stop",
		Verbose:           false,
		ReconnectDelay:    ReconnectDelay,
		DiscoveryPrefix:   "homeassistant",
		MQTTInterval:      MQTTTransmitInterval,
		KafkaTopic:        "iotkit.readings",
		KafkaInterval:     KafkaTransmitInterval,
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the file
// keep their current value.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DeviceAddress != "" {
		if _, err := net.ParseMAC(c.DeviceAddress); err != nil {
			return fmt.Errorf("device address %q is not a MAC address", c.DeviceAddress)
		}
	}

	if c.LogFile == "" {
		return fmt.Errorf("log file is required")
	}

	if _, err := sensors.ParseUnsupportedPolicy(c.UnsupportedPolicy); err != nil {
		return err
	}

	// MQTT validation - support both WebSocket and standard MQTT protocols
	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
		if c.DeviceID == "" {
			return fmt.Errorf("device ID is required when MQTT is enabled")
		}
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka topic is required when brokers are provided")
	}

	// Set defaults for invalid values
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = ReconnectDelay
	}
	if c.MQTTInterval <= 0 {
		c.MQTTInterval = MQTTTransmitInterval
	}
	if c.KafkaInterval < 0 {
		c.KafkaInterval = 0
	}

	return nil
}

// Policy returns the parsed unsupported-sensor policy.
func (c *Config) Policy() sensors.UnsupportedPolicy {
	p, _ := sensors.ParseUnsupportedPolicy(c.UnsupportedPolicy)
	return p
}

// HasMQTT returns true if MQTT is configured
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}

// HasKafka returns true if Kafka is configured
func (c *Config) HasKafka() bool {
	return len(c.KafkaBrokers) > 0
}
