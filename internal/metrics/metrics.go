package metrics

import (
	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the decoder and the link see.
type Metrics struct {
	notifications prometheus.Counter
	malformed     prometheus.Counter
	readings      *prometheus.CounterVec
	unknown       prometheus.Counter
	unsupported   *prometheus.CounterVec
	truncated     prometheus.Counter
	linesWritten  prometheus.Counter
	transmitErrs  *prometheus.CounterVec
	connected     prometheus.Gauge
	connects      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotkit_notifications_total",
			Help: "Total notifications received from the kit.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotkit_malformed_frames_total",
			Help: "Notifications that failed to decode.",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iotkit_sub_reports_total",
			Help: "Decoded sub-reports by sensor label.",
		}, []string{"sensor"}),
		unknown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotkit_unknown_sub_reports_total",
			Help: "Sub-reports whose sensor id is not in the registry.",
		}),
		unsupported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iotkit_unsupported_sub_reports_total",
			Help: "Sub-reports of known sensors without a decoder.",
		}, []string{"sensor"}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotkit_truncated_notifications_total",
			Help: "Notifications whose remaining sub-reports were abandoned.",
		}),
		linesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotkit_log_lines_total",
			Help: "Lines appended to the data log.",
		}),
		transmitErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iotkit_transmit_errors_total",
			Help: "Failed transmissions by transmitter.",
		}, []string{"transmitter"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iotkit_link_connected",
			Help: "1 while the BLE link is up.",
		}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotkit_link_connects_total",
			Help: "Successful BLE connections.",
		}),
	}

	reg.MustRegister(
		m.notifications,
		m.malformed,
		m.readings,
		m.unknown,
		m.unsupported,
		m.truncated,
		m.linesWritten,
		m.transmitErrs,
		m.connected,
		m.connects,
	)
	return m
}

// ObserveNotification counts one received notification and, on success, what
// it decoded to.
func (m *Metrics) ObserveNotification(r *sensors.Report, err error) {
	if m == nil {
		return
	}
	m.notifications.Inc()
	if err != nil {
		m.malformed.Inc()
		return
	}
	for _, e := range r.Entries() {
		if e.Label == sensors.UnknownLabel {
			m.unknown.Add(float64(len(e.Readings)))
			continue
		}
		m.readings.WithLabelValues(e.Label).Inc()
	}
	for _, u := range r.Unsupported {
		m.unsupported.WithLabelValues(u.Label).Inc()
	}
	if r.Truncated {
		m.truncated.Inc()
	}
}

// LineWritten counts one data log line.
func (m *Metrics) LineWritten() {
	if m != nil {
		m.linesWritten.Inc()
	}
}

// TransmitFailed counts a failed send by the named transmitter.
func (m *Metrics) TransmitFailed(name string) {
	if m != nil {
		m.transmitErrs.WithLabelValues(name).Inc()
	}
}

// SetConnected records link state changes.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connects.Inc()
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
