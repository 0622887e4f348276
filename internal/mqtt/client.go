package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaberg/iotkit-logger/internal/config"
	"github.com/sirupsen/logrus"
)

// Client wraps the MQTT client with device scoped topics.
type Client struct {
	client   mqtt.Client
	deviceID string
	logger   *logrus.Logger
}

// NewClient connects to the broker at mqttURL. Both WebSocket (ws, wss) and
// plain MQTT (mqtt, mqtts) schemes are accepted.
func NewClient(mqttURL, deviceID string, logger *logrus.Logger) (*Client, error) {
	opts, err := newOptions(mqttURL, deviceID, logger)
	if err != nil {
		return nil, err
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.WithFields(logrus.Fields{
		"broker":    cleanURL(mqttURL),
		"client_id": opts.ClientID,
	}).Info("MQTT client connected")

	return &Client{
		client:   client,
		deviceID: deviceID,
		logger:   logger,
	}, nil
}

// brokerSchemes maps accepted URL schemes to paho's transport schemes.
var brokerSchemes = map[string]struct {
	transport string
	tls       bool
}{
	"mqtt":  {"tcp", false},
	"mqtts": {"ssl", true},
	"ws":    {"ws", false},
	"wss":   {"wss", true},
}

func newOptions(mqttURL, deviceID string, logger *logrus.Logger) (*mqtt.ClientOptions, error) {
	u, err := url.Parse(mqttURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	scheme, ok := brokerSchemes[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported protocol scheme: %s (supported: ws, wss, mqtt, mqtts)", u.Scheme)
	}

	opts := mqtt.NewClientOptions().
		SetClientID("iotkit-logger-" + deviceID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(config.MQTTTimeout).
		SetMaxReconnectInterval(15 * time.Second).
		SetWill(AvailabilityTopic(deviceID), "offline", 1, true)

	if u.User != nil {
		pass, _ := u.User.Password()
		opts.SetUsername(u.User.Username()).SetPassword(pass)
	}
	if scheme.tls {
		// self-signed brokers are the norm on home networks
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}
	broker := *u
	broker.Scheme, broker.User = scheme.transport, nil
	opts.AddBroker(broker.String())
	logger.WithField("transport", scheme.transport).Debug("Using MQTT transport")

	var connects atomic.Int32
	opts.SetOnConnectHandler(func(mqtt.Client) {
		if connects.Add(1) > 1 {
			logger.Info("MQTT reconnected")
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})
	return opts, nil
}

// Publish publishes a message to the specified topic with QoS 1.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, 1, retained, payload)
	switch {
	case !token.WaitTimeout(config.MQTTTimeout):
		return fmt.Errorf("publish %s: no ack within %s", topic, config.MQTTTimeout)
	case token.Error() != nil:
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	c.logger.WithFields(logrus.Fields{"topic": topic, "bytes": len(payload)}).Trace("MQTT publish acknowledged")
	return nil
}

func (c *Client) IsConnected() bool { return c.client.IsConnected() }

// Disconnect marks the device offline and closes the connection.
func (c *Client) Disconnect(quiesce uint) {
	if err := c.Publish(AvailabilityTopic(c.deviceID), []byte("offline"), true); err != nil {
		c.logger.WithError(err).Debug("Failed to publish offline availability")
	}
	c.client.Disconnect(quiesce)
	c.logger.Debug("MQTT client disconnected")
}

func (c *Client) DeviceID() string { return c.deviceID }

// cleanURL drops credentials so the URL can be logged.
func cleanURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	return u.String()
}

// BaseTopic returns the topic prefix for a device.
func BaseTopic(deviceID string) string {
	return fmt.Sprintf("iotkit/%s", deviceID)
}

// StateTopic carries the retained JSON state of a device.
func StateTopic(deviceID string) string {
	return BaseTopic(deviceID) + "/state"
}

// AvailabilityTopic returns the retained online/offline topic for a device.
func AvailabilityTopic(deviceID string) string {
	return BaseTopic(deviceID) + "/availability"
}

// DiscoveryTopic returns the Home Assistant discovery topic for one entity.
func DiscoveryTopic(prefix, entityType, deviceID, entityID string) string {
	return fmt.Sprintf("%s/%s/iotkit_%s/%s/config", prefix, entityType, deviceID, entityID)
}
