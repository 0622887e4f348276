package transmission

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jkaberg/iotkit-logger/internal/mqtt"
	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"github.com/sirupsen/logrus"
)

// Publisher is the subset of *mqtt.Client the transmitter needs.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	IsConnected() bool
}

// MQTTTransmitter publishes the merged state of all sensors to one retained
// state topic and announces every decodable reading to Home Assistant.
type MQTTTransmitter struct {
	client          Publisher
	registry        *sensors.Registry
	deviceID        string
	discoveryPrefix string
	version         string
	logger          *logrus.Logger

	mu               sync.Mutex
	state            map[string]any  // last known value per entity id
	publishedConfigs map[string]bool // Tracks published discovery configs
}

// HADiscoveryConfig represents Home Assistant MQTT discovery configuration
type HADiscoveryConfig struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	Device            HADevice `json:"device"`
	AvailabilityTopic string   `json:"availability_topic"`
	Icon              string   `json:"icon,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
}

// HADevice represents the device information for Home Assistant
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// EntityConfig describes one Home Assistant entity derived from a reading key.
type EntityConfig struct {
	Name        string
	EntityID    string
	EntityType  string // "sensor" or "binary_sensor"
	DeviceClass string
	Unit        string
	Icon        string
}

// NewMQTTTransmitter creates a new MQTT transmitter
func NewMQTTTransmitter(client Publisher, registry *sensors.Registry, deviceID, discoveryPrefix, version string, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:           client,
		registry:         registry,
		deviceID:         deviceID,
		discoveryPrefix:  discoveryPrefix,
		version:          version,
		logger:           logger,
		state:            make(map[string]any),
		publishedConfigs: make(map[string]bool),
	}
}

// Name implements Transmitter.
func (t *MQTTTransmitter) Name() string { return "MQTT" }

// entityConfigs builds the discovery entities from the registry so adding a
// decoder automatically exposes its readings.
func (t *MQTTTransmitter) entityConfigs() []EntityConfig {
	var out []EntityConfig
	for _, def := range t.registry.SupportedDefinitions() {
		for _, key := range def.ReadingKeys() {
			cfg := EntityConfig{
				Name:        readingName(def, key),
				EntityID:    strings.ToLower(key),
				EntityType:  "sensor",
				DeviceClass: def.DeviceClass,
				Unit:        def.Unit,
			}
			if def.Label == "PROXIMITY" {
				cfg.EntityType = "binary_sensor"
				cfg.DeviceClass = "occupancy"
			}
			out = append(out, cfg)
		}
	}
	for _, axis := range []string{"roll", "pitch", "yaw"} {
		out = append(out, EntityConfig{
			Name:       "Orientation " + strings.ToUpper(axis[:1]) + axis[1:],
			EntityID:   "orientation_" + axis,
			EntityType: "sensor",
			Unit:       "°",
			Icon:       "mdi:rotate-3d-variant",
		})
	}
	return out
}

func readingName(def sensors.SensorDefinition, key string) string {
	if suffix, ok := strings.CutPrefix(key, def.Label+"_"); ok {
		return def.EnglishName + " " + suffix
	}
	if suffix, ok := strings.CutPrefix(key, "FUSION_"); ok {
		return "Fusion " + suffix
	}
	return def.EnglishName
}

func (t *MQTTTransmitter) device() HADevice {
	return HADevice{
		Identifiers:  []string{fmt.Sprintf("iotkit_%s", t.deviceID)},
		Name:         "IoT Multi Sensor Kit",
		Model:        "DA14585 IoT MSK",
		Manufacturer: "Dialog Semiconductor",
		SWVersion:    t.version,
	}
}

func (t *MQTTTransmitter) discoveryConfig(e EntityConfig) HADiscoveryConfig {
	cfg := HADiscoveryConfig{
		Name:              e.Name,
		UniqueID:          fmt.Sprintf("%s_%s", t.deviceID, e.EntityID),
		StateTopic:        mqtt.StateTopic(t.deviceID),
		ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", e.EntityID),
		AvailabilityTopic: mqtt.AvailabilityTopic(t.deviceID),
		DeviceClass:       e.DeviceClass,
		UnitOfMeasurement: e.Unit,
		Icon:              e.Icon,
		Device:            t.device(),
	}
	if e.EntityType == "binary_sensor" {
		cfg.PayloadOn, cfg.PayloadOff = "ON", "OFF"
	} else {
		cfg.StateClass = "measurement"
	}
	return cfg
}

// publishDiscoveryConfigs publishes every entity once per process.
func (t *MQTTTransmitter) publishDiscoveryConfigs() {
	for _, e := range t.entityConfigs() {
		if t.publishedConfigs[e.EntityID] {
			continue
		}
		topic := mqtt.DiscoveryTopic(t.discoveryPrefix, e.EntityType, t.deviceID, e.EntityID)
		if err := t.publishJSON(topic, t.discoveryConfig(e), true); err != nil {
			t.logger.WithError(err).WithField("entity", e.EntityID).Error("Failed to publish discovery config")
			continue
		}
		t.publishedConfigs[e.EntityID] = true
		t.logger.WithFields(logrus.Fields{
			"entity_id": e.EntityID,
			"topic":     topic,
		}).Debug("Published sensor discovery config")
	}
}

// Observe merges r into the state published on the next Transmit.
func (t *MQTTTransmitter) Observe(r *sensors.Report) {
	if r == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mergeLocked(r)
}

func (t *MQTTTransmitter) mergeLocked(r *sensors.Report) {
	for k, v := range r.Flatten() {
		if k == sensors.UnknownLabel {
			continue
		}
		t.state[strings.ToLower(k)] = v
	}
	if o, ok := sensors.DeriveOrientation(r); ok {
		t.state["orientation_roll"] = o.Roll
		t.state["orientation_pitch"] = o.Pitch
		t.state["orientation_yaw"] = o.Yaw
	}
	t.state["captured_at"] = r.Epoch()
}

// buildStatePayload renders the merged state as JSON.
func (t *MQTTTransmitter) buildStatePayload() ([]byte, error) {
	return json.Marshal(t.state)
}

// Transmit merges r and publishes discovery, state and availability.
func (t *MQTTTransmitter) Transmit(_ context.Context, r *sensors.Report) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.publishDiscoveryConfigs()
	if r != nil {
		t.mergeLocked(r)
	}

	payload, err := t.buildStatePayload()
	if err != nil {
		return fmt.Errorf("failed to build state payload: %w", err)
	}
	topic := mqtt.StateTopic(t.deviceID)
	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish sensor data to %s: %w", topic, err)
	}
	if err := t.client.Publish(mqtt.AvailabilityTopic(t.deviceID), []byte("online"), true); err != nil {
		return fmt.Errorf("failed to publish availability: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"topic": topic,
		"size":  len(payload),
	}).Debug("Published sensor state")
	return nil
}

func (t *MQTTTransmitter) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	return t.client.Publish(topic, payload, retained)
}

// IsConnected checks if the MQTT client is connected
func (t *MQTTTransmitter) IsConnected() bool {
	return t.client.IsConnected()
}
