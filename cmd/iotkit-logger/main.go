package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jkaberg/iotkit-logger/internal/app"
	"github.com/jkaberg/iotkit-logger/internal/ble"
	"github.com/jkaberg/iotkit-logger/internal/config"
	"github.com/jkaberg/iotkit-logger/internal/logsink"
	"github.com/jkaberg/iotkit-logger/internal/metrics"
	"github.com/jkaberg/iotkit-logger/internal/mqtt"
	"github.com/jkaberg/iotkit-logger/internal/replay"
	"github.com/jkaberg/iotkit-logger/internal/sensors"
	"github.com/jkaberg/iotkit-logger/internal/transmission"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// version is injected at build time via ldflags
var version = "dev"

type options struct {
	decodeHex  string
	replayFile string
	jsonOutput bool
}

func main() {
	cfg, opts := parseFlags()
	logger := setupLogger(cfg.Verbose)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	assembler := sensors.NewAssembler(nil, sensors.WithUnsupportedPolicy(cfg.Policy()))

	// One-shot decode -------------------------------------------------------------
	if opts.decodeHex != "" {
		if err := decodeOnce(assembler, opts.decodeHex, opts.jsonOutput); err != nil {
			logger.WithError(err).Fatal("Decode failed")
		}
		return
	}

	var source app.Source
	switch {
	case opts.replayFile != "":
		src, err := replay.OpenFile(opts.replayFile, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open replay capture")
		}
		defer src.Close()
		source = src
	case cfg.DeviceAddress != "":
		ble.SetLibraryLogger(logger)
		source = ble.NewLink(cfg.DeviceAddress, logger)
	default:
		logger.Fatal("A device address (-address) or a capture (-replay) is required")
	}

	logger.WithFields(logrus.Fields{
		"version":   version,
		"device_id": cfg.DeviceID,
		"address":   cfg.DeviceAddress,
		"log_file":  cfg.LogFile,
		"policy":    cfg.Policy().String(),
	}).Info("Starting iotkit-logger")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	sink, err := logsink.OpenFile(cfg.LogFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open data log")
	}
	defer sink.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Transmitters ---------------------------------------------------------------
	var scheduled []app.Scheduled
	if cfg.HasMQTT() {
		mqttClient, err := mqtt.NewClient(cfg.MQTTUrl, cfg.DeviceID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create MQTT client")
		}
		defer mqttClient.Disconnect(250)
		mqttTx := transmission.NewMQTTTransmitter(mqttClient, assembler.Registry(), cfg.DeviceID, cfg.DiscoveryPrefix, version, logger)
		scheduled = append(scheduled, app.Scheduled{Transmitter: mqttTx, Interval: cfg.MQTTInterval})
		logger.Info("MQTT transmitter ready")
	}
	if cfg.HasKafka() {
		kafkaTx := transmission.NewKafkaTransmitter(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.DeviceID, logger)
		defer kafkaTx.Close()
		scheduled = append(scheduled, app.Scheduled{Transmitter: kafkaTx, Interval: cfg.KafkaInterval})
		logger.WithField("topic", cfg.KafkaTopic).Info("Kafka transmitter ready")
	}
	if len(scheduled) == 0 {
		logger.Debug("No transmitters configured; data will only be logged")
	}

	// Run application ------------------------------------------------------------
	err = app.Run(ctx, cfg, app.Components{
		Source:       source,
		Assembler:    assembler,
		Sink:         sink,
		Transmitters: scheduled,
		Metrics:      metrics.NewMetrics(reg),
		Gatherer:     reg,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("iotkit-logger stopped with error")
		return
	}
	logger.Info("iotkit-logger stopped")
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags() (*config.Config, options) {
	cfg := config.GetDefaultConfig()
	var opts options

	showVersion := flag.Bool("version", false, "Show version and exit")
	configFile := flag.String("config", getEnv("IOTKIT_CONFIG", ""), "YAML config file; flags and environment override it")

	flag.StringVar(&opts.decodeHex, "decode", "", "Decode one hex encoded notification, print it and exit")
	flag.StringVar(&opts.replayFile, "replay", "", "Replay hex encoded notifications from a capture file instead of a live device")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Print -decode output as JSON")

	// The file is loaded before the remaining flags are defined so its values
	// become their defaults.
	preParse(configFile)
	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	flag.StringVar(&cfg.DeviceAddress, "address", getEnv("IOTKIT_ADDRESS", cfg.DeviceAddress), "BLE MAC address of the sensor kit")
	flag.StringVar(&cfg.DeviceID, "device-id", getEnv("IOTKIT_DEVICE_ID", cfg.DeviceID), "Device identifier")
	flag.StringVar(&cfg.LogFile, "log-file", getEnv("IOTKIT_LOG_FILE", cfg.LogFile), "Data log file")
	flag.StringVar(&cfg.UnsupportedPolicy, "policy", getEnv("IOTKIT_UNSUPPORTED_POLICY", cfg.UnsupportedPolicy), "What to do on an unsupported sensor report: stop or skip")
	flag.BoolVar(&cfg.Verbose, "verbose", getEnv("IOTKIT_VERBOSE", fmt.Sprint(cfg.Verbose)) == "true", "Verbose logging")
	flag.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", getEnvDuration("IOTKIT_RECONNECT_DELAY", cfg.ReconnectDelay), "Pause between reconnect attempts")
	flag.StringVar(&cfg.MQTTUrl, "mqtt-url", getEnv("IOTKIT_MQTT_URL", cfg.MQTTUrl), "MQTT URL")
	flag.StringVar(&cfg.DiscoveryPrefix, "discovery-prefix", getEnv("IOTKIT_DISCOVERY_PREFIX", cfg.DiscoveryPrefix), "HA discovery prefix")
	flag.DurationVar(&cfg.MQTTInterval, "mqtt-interval", getEnvDuration("IOTKIT_MQTT_INTERVAL", cfg.MQTTInterval), "MQTT interval (e.g. 10s)")
	kafkaBrokers := flag.String("kafka-brokers", getEnv("IOTKIT_KAFKA_BROKERS", strings.Join(cfg.KafkaBrokers, ",")), "Comma separated Kafka brokers")
	flag.StringVar(&cfg.KafkaTopic, "kafka-topic", getEnv("IOTKIT_KAFKA_TOPIC", cfg.KafkaTopic), "Kafka topic")
	flag.DurationVar(&cfg.KafkaInterval, "kafka-interval", getEnvDuration("IOTKIT_KAFKA_INTERVAL", cfg.KafkaInterval), "Kafka interval, 0 sends every report")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", getEnv("IOTKIT_HTTP_ADDR", cfg.HTTPAddr), "Status and metrics listen address, empty disables it")

	flag.Parse()

	if *showVersion {
		fmt.Printf("iotkit-logger %s\n", version)
		os.Exit(0)
	}

	cfg.KafkaBrokers = splitList(*kafkaBrokers)
	return cfg, opts
}

// preParse extracts -config before the full flag set exists.
func preParse(configFile *string) {
	args := os.Args[1:]
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if name != "config" || !strings.HasPrefix(a, "-") {
			continue
		}
		if hasValue {
			*configFile = value
		} else if i+1 < len(args) {
			*configFile = args[i+1]
		}
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

func decodeOnce(assembler *sensors.Assembler, hexPayload string, asJSON bool) error {
	payload, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexPayload), "0x"))
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	r, err := assembler.Assemble(payload, time.Now())
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	logsink.New(os.Stdout).Write(r)
	for _, u := range r.Unsupported {
		fmt.Fprintln(os.Stderr, u.Error())
	}
	return nil
}
