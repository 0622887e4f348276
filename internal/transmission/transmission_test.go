package transmission

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	failOn    string
	messages  []published
}

func (f *fakePublisher) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if topic == f.failOn {
		return errors.New("broker said no")
	}
	f.messages = append(f.messages, published{topic, payload, retained})
	return nil
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) byTopic(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func decode(t *testing.T, frame []byte) *sensors.Report {
	t.Helper()
	r, err := sensors.NewAssembler(nil).Assemble(frame, time.Unix(1700000000, 0))
	require.NoError(t, err)
	return r
}

func TestMQTTTransmitNotConnected(t *testing.T) {
	pub := &fakePublisher{}
	tx := NewMQTTTransmitter(pub, sensors.DefaultRegistry(), "kit1", "homeassistant", "test", quietLogger())
	assert.Error(t, tx.Transmit(context.Background(), nil))
	assert.Empty(t, pub.messages)
}

func TestMQTTTransmitDiscoveryOnce(t *testing.T) {
	pub := &fakePublisher{connected: true}
	tx := NewMQTTTransmitter(pub, sensors.DefaultRegistry(), "kit1", "homeassistant", "test", quietLogger())

	temp := decode(t, []byte{0xAA, 0xBB, 6, 0, 0, 0xE8, 0x03, 0, 0})
	require.NoError(t, tx.Transmit(context.Background(), temp))
	require.NoError(t, tx.Transmit(context.Background(), temp))

	cfgs := pub.byTopic("homeassistant/sensor/iotkit_kit1/temperature/config")
	require.Len(t, cfgs, 1)
	var disc HADiscoveryConfig
	require.NoError(t, json.Unmarshal(cfgs[0].payload, &disc))
	assert.Equal(t, "kit1_temperature", disc.UniqueID)
	assert.Equal(t, "iotkit/kit1/state", disc.StateTopic)
	assert.Equal(t, "{{ value_json.temperature }}", disc.ValueTemplate)
	assert.Equal(t, "temperature", disc.DeviceClass)
	assert.True(t, cfgs[0].retained)

	prox := pub.byTopic("homeassistant/binary_sensor/iotkit_kit1/proximity/config")
	require.Len(t, prox, 1)

	assert.Len(t, pub.byTopic("homeassistant/sensor/iotkit_kit1/gyroscope_z/config"), 1)
	assert.Len(t, pub.byTopic("homeassistant/sensor/iotkit_kit1/orientation_yaw/config"), 1)
	assert.Empty(t, pub.byTopic("homeassistant/sensor/iotkit_kit1/button/config"))

	avail := pub.byTopic("iotkit/kit1/availability")
	require.Len(t, avail, 2)
	assert.Equal(t, "online", string(avail[0].payload))
}

func TestMQTTStateMergesObservedReports(t *testing.T) {
	pub := &fakePublisher{connected: true}
	tx := NewMQTTTransmitter(pub, sensors.DefaultRegistry(), "kit1", "homeassistant", "test", quietLogger())

	tx.Observe(decode(t, []byte{0xAA, 0xBB, 6, 0, 0, 0xE8, 0x03, 0, 0}))
	tx.Observe(decode(t, []byte{0xAA, 0xBB, 0x63, 1, 2}))
	require.NoError(t, tx.Transmit(context.Background(), decode(t, []byte{0xAA, 0xBB, 10, 0, 0, 1, 0, 0, 0})))

	states := pub.byTopic("iotkit/kit1/state")
	require.Len(t, states, 1)

	var state map[string]any
	require.NoError(t, json.Unmarshal(states[0].payload, &state))
	assert.Equal(t, 10.0, state["temperature"])
	assert.Equal(t, "ON", state["proximity"])
	assert.Equal(t, 1700000000.0, state["captured_at"])
	assert.NotContains(t, state, "unknown")
}

func TestMQTTStateOrientation(t *testing.T) {
	pub := &fakePublisher{connected: true}
	tx := NewMQTTTransmitter(pub, sensors.DefaultRegistry(), "kit1", "homeassistant", "test", quietLogger())

	// identity quaternion
	frame := []byte{0xAA, 0xBB, 7, 0, 0, 0xFF, 0x7F, 0, 0, 0, 0, 0, 0}
	require.NoError(t, tx.Transmit(context.Background(), decode(t, frame)))

	var state map[string]any
	require.NoError(t, json.Unmarshal(pub.byTopic("iotkit/kit1/state")[0].payload, &state))
	assert.InDelta(t, 0, state["orientation_yaw"], 1e-9)
	assert.Contains(t, state, "fusion_w")
}

func TestMQTTStatePublishFailure(t *testing.T) {
	pub := &fakePublisher{connected: true, failOn: "iotkit/kit1/state"}
	tx := NewMQTTTransmitter(pub, sensors.DefaultRegistry(), "kit1", "homeassistant", "test", quietLogger())
	assert.Error(t, tx.Transmit(context.Background(), nil))
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaTransmit(t *testing.T) {
	w := &fakeKafkaWriter{}
	tx := newKafkaTransmitter(w, "kit1", quietLogger())

	r := decode(t, []byte{0xAA, 0xBB, 6, 0, 0, 0xE8, 0x03, 0, 0, 5, 0, 0, 0xE8, 0x03, 0, 0})
	require.NoError(t, tx.Transmit(context.Background(), r))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "kit1", string(msg.Key))
	assert.Equal(t, r.CapturedAt, msg.Time)

	var body struct {
		ID         string             `json:"id"`
		DeviceID   string             `json:"device_id"`
		CapturedAt float64            `json:"captured_at"`
		Line       string             `json:"line"`
		Readings   map[string]float64 `json:"readings"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "kit1", body.DeviceID)
	_, err := uuid.Parse(body.ID)
	assert.NoError(t, err)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, body.ID, string(msg.Headers[0].Value))
	assert.Equal(t, " TEMPERATURE=10.0 HUMIDITY=0.98", body.Line)
	assert.Equal(t, 0.98, body.Readings["HUMIDITY"])

	assert.NoError(t, tx.Transmit(context.Background(), nil))
	assert.Len(t, w.msgs, 1)
}

func TestKafkaHealth(t *testing.T) {
	w := &fakeKafkaWriter{err: errors.New("leader not available")}
	tx := newKafkaTransmitter(w, "kit1", quietLogger())
	assert.True(t, tx.IsConnected())

	r := decode(t, []byte{0xAA, 0xBB, 6, 0, 0, 0xE8, 0x03, 0, 0})
	assert.Error(t, tx.Transmit(context.Background(), r))
	assert.False(t, tx.IsConnected())

	w.err = nil
	require.NoError(t, tx.Transmit(context.Background(), r))
	assert.True(t, tx.IsConnected())

	require.NoError(t, tx.Close())
	assert.True(t, w.closed)
}
