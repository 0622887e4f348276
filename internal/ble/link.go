package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jkaberg/iotkit-logger/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/walkure/gatt"
	gattlogger "github.com/walkure/gatt/logger"
)

// GATT layout of the IoT multi sensor kit firmware.
var (
	GeneralServiceUUID = gatt.MustParseUUID("2ea78970-7d44-44bb-b097-26183f402400")
	ControlCharUUID    = gatt.MustParseUUID("2ea78970-7d44-44bb-b097-26183f402409")
	ReportCharUUID     = gatt.MustParseUUID("2ea78970-7d44-44bb-b097-26183f402410")
)

// startSensors is written to the control characteristic to start streaming.
var startSensors = []byte{0x01}

// ErrDisconnected is returned by Run when the kit drops the link.
var ErrDisconnected = errors.New("ble: device disconnected")

// SetLibraryLogger routes the gatt stack's own slog output into l at debug
// level.
func SetLibraryLogger(l *logrus.Logger) {
	gattlogger.SetLogger(slog.New(slog.NewTextHandler(l.WriterLevel(logrus.DebugLevel), nil)))
}

// session is one connect → subscribe → disconnect cycle.
type session struct {
	handler func([]byte)
	done    chan error
	ready   chan struct{} // closed once notifications are enabled
	once    sync.Once
	periph  gatt.Peripheral
}

func (s *session) finish(err error) {
	s.once.Do(func() { s.done <- err })
}

// Link streams notifications from one kit, identified by its MAC address.
type Link struct {
	address string
	logger  *logrus.Logger

	initOnce sync.Once
	initErr  error
	dev      gatt.Device
	powered  chan struct{}

	mu      sync.Mutex
	current *session
}

// NewLink prepares a link to the kit at address. The HCI device is opened
// lazily on the first Run.
func NewLink(address string, logger *logrus.Logger) *Link {
	return &Link{
		address: strings.ToUpper(address),
		logger:  logger,
		powered: make(chan struct{}),
	}
}

func (l *Link) init() error {
	l.initOnce.Do(func() {
		dev, err := gatt.NewDevice()
		if err != nil {
			l.initErr = fmt.Errorf("open bluetooth adapter: %w", err)
			return
		}
		dev.Handle(
			gatt.PeripheralDiscovered(l.onDiscovered),
			gatt.PeripheralConnected(l.onConnected),
			gatt.PeripheralDisconnected(l.onDisconnected),
		)
		var poweredOnce sync.Once
		if err := dev.Init(func(d gatt.Device, s gatt.State) {
			l.logger.WithField("state", s.String()).Debug("Bluetooth adapter state changed")
			if s == gatt.StatePoweredOn {
				poweredOnce.Do(func() { close(l.powered) })
			}
		}); err != nil {
			l.initErr = fmt.Errorf("init bluetooth adapter: %w", err)
			return
		}
		l.dev = dev
	})
	return l.initErr
}

// Run connects to the kit, enables notifications and sensors, and calls
// handler with every notification payload until the link drops (returning
// ErrDisconnected) or ctx is done. handler runs on the adapter's goroutine
// and must not block for long.
func (l *Link) Run(ctx context.Context, handler func([]byte)) error {
	if err := l.init(); err != nil {
		return err
	}
	select {
	case <-l.powered:
	case <-ctx.Done():
		return ctx.Err()
	}

	s := &session{handler: handler, done: make(chan error, 1), ready: make(chan struct{})}
	l.mu.Lock()
	l.current = s
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.current = nil
		l.mu.Unlock()
	}()

	l.logger.WithField("address", l.address).Info("Scanning for sensor kit")
	l.dev.Scan([]gatt.UUID{}, false)

	timer := time.NewTimer(config.ConnectTimeout)
	defer timer.Stop()
	ready := s.ready
	for {
		select {
		case err := <-s.done:
			return err
		case <-ready:
			ready = nil
			timer.Stop()
		case <-timer.C:
			l.abort(s)
			return fmt.Errorf("no connection to %s within %s", l.address, config.ConnectTimeout)
		case <-ctx.Done():
			l.abort(s)
			return ctx.Err()
		}
	}
}

func (l *Link) abort(s *session) {
	l.dev.StopScanning()
	l.mu.Lock()
	p := s.periph
	l.mu.Unlock()
	if p != nil {
		l.dev.CancelConnection(p)
	}
}

func (l *Link) session() *session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *Link) onDiscovered(p gatt.Peripheral, _ *gatt.Advertisement, rssi int) {
	if !strings.EqualFold(p.ID(), l.address) || l.session() == nil {
		return
	}
	l.logger.WithFields(logrus.Fields{"address": p.ID(), "rssi": rssi}).Debug("Sensor kit found")
	l.dev.StopScanning()
	l.dev.Connect(p)
}

func (l *Link) onConnected(p gatt.Peripheral, err error) {
	s := l.session()
	if s == nil {
		l.dev.CancelConnection(p)
		return
	}
	if err != nil {
		s.finish(fmt.Errorf("connect %s: %w", l.address, err))
		return
	}
	l.mu.Lock()
	s.periph = p
	l.mu.Unlock()

	if err := subscribe(p, s.handler); err != nil {
		s.finish(err)
		l.dev.CancelConnection(p)
		return
	}
	close(s.ready)
	l.logger.WithField("address", p.ID()).Info("Sensor kit connected, listening to notifications")
}

func (l *Link) onDisconnected(p gatt.Peripheral, err error) {
	if s := l.session(); s != nil {
		l.logger.WithField("address", p.ID()).Warn("Sensor kit disconnected")
		s.finish(ErrDisconnected)
	}
}

// subscribe enables notifications on the report characteristic and then
// starts the sensors through the control characteristic.
func subscribe(p gatt.Peripheral, handler func([]byte)) error {
	services, err := p.DiscoverServices([]gatt.UUID{GeneralServiceUUID})
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}
	var control, report *gatt.Characteristic
	for _, svc := range services {
		if !svc.UUID().Equal(GeneralServiceUUID) {
			continue
		}
		chars, err := p.DiscoverCharacteristics(nil, svc)
		if err != nil {
			return fmt.Errorf("discover characteristics: %w", err)
		}
		for _, c := range chars {
			switch {
			case c.UUID().Equal(ControlCharUUID):
				control = c
			case c.UUID().Equal(ReportCharUUID):
				report = c
			}
		}
	}
	if control == nil || report == nil {
		return fmt.Errorf("sensor kit service %s incomplete", GeneralServiceUUID)
	}

	// SetNotifyValue writes the client configuration descriptor, which has to
	// be discovered first.
	if _, err := p.DiscoverDescriptors(nil, report); err != nil {
		return fmt.Errorf("discover descriptors: %w", err)
	}
	if err := p.SetNotifyValue(report, func(_ *gatt.Characteristic, b []byte, err error) {
		if err == nil {
			handler(b)
		}
	}); err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}
	if err := p.WriteCharacteristic(control, startSensors, false); err != nil {
		return fmt.Errorf("enable sensors: %w", err)
	}
	return nil
}
