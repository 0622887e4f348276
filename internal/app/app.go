package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/jkaberg/iotkit-logger/internal/bus"
	"github.com/jkaberg/iotkit-logger/internal/config"
	"github.com/jkaberg/iotkit-logger/internal/domain"
	"github.com/jkaberg/iotkit-logger/internal/logsink"
	"github.com/jkaberg/iotkit-logger/internal/metrics"
	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"github.com/jkaberg/iotkit-logger/internal/transmission"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source delivers raw notification payloads until it fails, the link drops,
// or ctx is done. A source that runs dry returns io.EOF.
type Source interface {
	Run(ctx context.Context, handler func([]byte)) error
}

// Scheduled pairs a transmitter with its send interval. A zero interval sends
// every report as it arrives.
type Scheduled struct {
	Transmitter transmission.Transmitter
	Interval    time.Duration
}

// Components are the collaborators Run wires together. Only Source,
// Assembler and Sink are required.
type Components struct {
	Source       Source
	Assembler    *sensors.Assembler
	Sink         *logsink.Sink
	Transmitters []Scheduled
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
}

const (
	transmitterBuffer = 64
	schedulerTick     = time.Second
	shutdownTimeout   = 5 * time.Second
)

// Run drives the pipeline and blocks until ctx is cancelled or the source
// runs dry. Every notification is decoded, appended to the data log, and fanned
// out to the transmitters.
func Run(parentCtx context.Context, cfg *config.Config, c Components, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	messageBus := bus.New()
	latest := &metrics.Latest{}
	grp, ctx := errgroup.WithContext(ctx)

	// Subscriptions must exist before the first publish.
	subs := make([]<-chan *sensors.Report, len(c.Transmitters))
	for i := range c.Transmitters {
		subs[i] = messageBus.Subscribe(transmitterBuffer)
	}

	var pipeline sync.WaitGroup
	pipeline.Add(1 + len(c.Transmitters))

	// Collector -----------------------------------------------------------
	grp.Go(func() error {
		defer pipeline.Done()
		defer messageBus.Close()
		handle := func(payload []byte) {
			r, ok := process(c, payload, time.Now(), logger)
			if !ok {
				return
			}
			latest.Store(r)
			if missed := messageBus.Publish(r); missed > 0 {
				logger.WithField("missed", missed).Debug("Transmitter busy, report skipped")
			}
		}
		err := RunSource(ctx, c.Source, handle, cfg.ReconnectDelay, c.Metrics, logger)
		if errors.Is(err, io.EOF) {
			logger.Info("Notification source exhausted")
			return nil
		}
		return err
	})

	// Transmitters --------------------------------------------------------
	for i, s := range c.Transmitters {
		sub := subs[i]
		grp.Go(func() error {
			defer pipeline.Done()
			return schedule(ctx, s, sub, c.Metrics, logger)
		})
	}

	done := make(chan struct{})
	go func() {
		pipeline.Wait()
		close(done)
	}()

	// Status endpoint -----------------------------------------------------
	if cfg.HTTPAddr != "" && c.Gatherer != nil {
		accessLog := logger.WriterLevel(logrus.DebugLevel)
		defer accessLog.Close()
		router := metrics.NewRouter(c.Gatherer, latest)
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handlers.RecoveryHandler()(handlers.LoggingHandler(accessLog, router)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		grp.Go(func() error {
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logger.WithField("addr", cfg.HTTPAddr).Info("Status endpoint listening")
			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			case <-done:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := grp.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// process decodes one notification and appends it to the data log.
func process(c Components, payload []byte, now time.Time, logger *logrus.Logger) (*sensors.Report, bool) {
	r, err := c.Assembler.Assemble(payload, now)
	c.Metrics.ObserveNotification(r, err)
	if err != nil {
		logger.WithError(err).Warn("Dropping malformed notification")
		return nil, false
	}
	for _, warning := range sensors.ValidateReport(r) {
		logger.Debug(warning)
	}
	if c.Sink.Write(r) {
		c.Metrics.LineWritten()
	}
	return r, true
}

// RunSource keeps src running, reconnecting after delay whenever it drops,
// until ctx is done or src returns io.EOF.
func RunSource(ctx context.Context, src Source, handle func([]byte), delay time.Duration, m *metrics.Metrics, logger *logrus.Logger) error {
	for {
		var once sync.Once
		err := src.Run(ctx, func(payload []byte) {
			once.Do(func() { m.SetConnected(true) })
			handle(payload)
		})
		m.SetConnected(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			return err
		}
		logger.WithError(err).WithField("retry_in", delay).Warn("Notification source stopped, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// schedule forwards reports from sub to one transmitter. With an interval it
// sends the newest report at most once per interval and only when it differs
// from the last one sent. Failed sends are retried on the next tick.
func schedule(ctx context.Context, s Scheduled, sub <-chan *sensors.Report, m *metrics.Metrics, logger *logrus.Logger) error {
	tx := s.Transmitter
	observer, _ := tx.(transmission.Observer)

	send := func(r *sensors.Report) bool {
		if err := tx.Transmit(ctx, r); err != nil {
			m.TransmitFailed(tx.Name())
			logger.WithError(err).Warn(tx.Name() + " transmit failed")
			return false
		}
		return true
	}

	if s.Interval <= 0 {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r, ok := <-sub:
				if !ok {
					return nil
				}
				send(r)
			}
		}
	}

	var (
		latest   *sensors.Report
		lastSnap *sensors.Report
		lastSent time.Time
	)
	flush := func(now time.Time) {
		if latest == nil || !domain.Changed(lastSnap, latest) {
			return
		}
		if send(latest) {
			lastSnap = latest
		} else {
			// Forces Changed on the next tick.
			lastSnap = nil
		}
		lastSent = now
	}

	ticker := time.NewTicker(min(s.Interval, schedulerTick))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-sub:
			if !ok {
				flush(time.Now())
				return nil
			}
			if observer != nil {
				observer.Observe(r)
			}
			latest = r
		case now := <-ticker.C:
			if now.Sub(lastSent) < s.Interval {
				continue
			}
			flush(now)
		}
	}
}
