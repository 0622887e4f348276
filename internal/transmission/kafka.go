package transmission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jkaberg/iotkit-logger/internal/config"
	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransmitter writes one JSON message per report, keyed by device id so
// a device's reports stay ordered within one partition.
type KafkaTransmitter struct {
	writer   kafkaMessageWriter
	deviceID string
	logger   *logrus.Logger
	healthy  atomic.Bool
}

// KafkaMessage is the value written for each report.
type KafkaMessage struct {
	ID         string                   `json:"id"`
	DeviceID   string                   `json:"device_id"`
	CapturedAt float64                  `json:"captured_at"`
	Line       string                   `json:"line"`
	Readings   map[string]sensors.Value `json:"readings"`
	Truncated  bool                     `json:"truncated,omitempty"`
}

// NewKafkaTransmitter builds a synchronous writer for topic on brokers.
func NewKafkaTransmitter(brokers []string, topic, deviceID string, logger *logrus.Logger) *KafkaTransmitter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaTransmitter(w, deviceID, logger)
}

func newKafkaTransmitter(w kafkaMessageWriter, deviceID string, logger *logrus.Logger) *KafkaTransmitter {
	t := &KafkaTransmitter{writer: w, deviceID: deviceID, logger: logger}
	t.healthy.Store(true)
	return t
}

// Name implements Transmitter.
func (t *KafkaTransmitter) Name() string { return "Kafka" }

func (t *KafkaTransmitter) buildMessage(r *sensors.Report) (kafka.Message, error) {
	id := uuid.NewString()
	value, err := json.Marshal(KafkaMessage{
		ID:         id,
		DeviceID:   t.deviceID,
		CapturedAt: r.Epoch(),
		Line:       sensors.FormatLogLine(r),
		Readings:   r.Flatten(),
		Truncated:  r.Truncated,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal kafka message: %w", err)
	}
	return kafka.Message{
		Key:     []byte(t.deviceID),
		Value:   value,
		Time:    r.CapturedAt,
		Headers: []kafka.Header{{Key: "message-id", Value: []byte(id)}},
	}, nil
}

// Transmit writes r, waiting at most config.KafkaTimeout.
func (t *KafkaTransmitter) Transmit(ctx context.Context, r *sensors.Report) error {
	if r == nil {
		return nil
	}
	msg, err := t.buildMessage(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, config.KafkaTimeout)
	defer cancel()
	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		t.healthy.Store(false)
		return fmt.Errorf("kafka write: %w", err)
	}
	if !t.healthy.Swap(true) {
		t.logger.Info("Kafka writes recovered")
	}
	return nil
}

// IsConnected reports whether the last write succeeded.
func (t *KafkaTransmitter) IsConnected() bool { return t.healthy.Load() }

// Close flushes and closes the writer.
func (t *KafkaTransmitter) Close() error { return t.writer.Close() }
