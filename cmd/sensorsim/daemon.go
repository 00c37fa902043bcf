package main

import (
	"context"
	"time"

	"codeberg.org/mutker/sensorsim/internal/config"
	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/history"
	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/publisher"
	"codeberg.org/mutker/sensorsim/internal/sensor"
	"codeberg.org/mutker/sensorsim/internal/source"
	"codeberg.org/mutker/sensorsim/internal/telemetry"
	"codeberg.org/mutker/sensorsim/internal/unit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// sink is a listener that holds resources until closed.
type sink interface {
	sensor.Listener
	Close() error
}

type daemon struct {
	cfg      *config.Config
	log      logger.Logger
	sensor   *sensor.Sensor
	sinks    []sink
	registry *prometheus.Registry
}

// run samples until ctx is done, then stops the sensor and closes every sink.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	d, err := newDaemon(cfg, log)
	if err != nil {
		return err
	}
	defer d.close()

	serveErr := make(chan error, 1)
	if cfg.Telemetry.Addr != "" {
		go func() {
			serveErr <- telemetry.Serve(ctx, cfg.Telemetry.Addr, d.registry, log)
		}()
	}

	if cfg.Monitor {
		log.Info().Msg("Monitor mode activated. Logging measurements...")
	}

	d.sensor.Start()
	defer d.sensor.Stop()

	log.Info().
		Str("sensor_id", d.sensor.ID()).
		Str("unit", d.sensor.Unit().String()).
		Dur("period", d.sensor.Period()).
		Int("capacity", d.sensor.Capacity()).
		Int("listeners", d.sensor.Listeners()).
		Msg("Sensor started")

	var status <-chan time.Time
	if cfg.StatusInterval > 0 {
		ticker := time.NewTicker(cfg.StatusInterval)
		defer ticker.Stop()
		status = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			if err != nil {
				return err
			}
		case <-status:
			d.logStatus()
		}
	}
}

func newDaemon(cfg *config.Config, log logger.Logger) (*daemon, error) {
	errFactory := errors.New()

	u, err := unit.Parse(cfg.Unit)
	if err != nil {
		return nil, err
	}

	src, err := source.FromSpec(source.Spec{
		Kind:  cfg.Source.Kind,
		Min:   cfg.Source.Min,
		Max:   cfg.Source.Max,
		Noise: cfg.Source.Noise,
		Seed:  cfg.Source.Seed,
	})
	if err != nil {
		return nil, err
	}

	d := &daemon{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
	}
	d.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []sensor.Option{sensor.WithLogger(log)}
	if cfg.SensorID != "" {
		opts = append(opts, sensor.WithID(cfg.SensorID))
	}

	// The sensor ID is needed by the sinks, so the sensor is built first
	// and the sinks are attached afterwards.
	var collector *telemetry.Collector
	opts = append(opts, sensor.WithErrorHandler(func(err error) {
		if collector != nil {
			collector.ReportError(err)
		}
	}))

	s, err := sensor.New(sensor.Config{
		Period:   cfg.SamplingPeriod,
		Unit:     u,
		Capacity: cfg.Capacity,
	}, src, opts...)
	if err != nil {
		return nil, err
	}
	d.sensor = s

	collector, err = telemetry.New(d.registry, s.ID(), u)
	if err != nil {
		return nil, err
	}
	if err := collector.WatchBuffer(s.Size); err != nil {
		return nil, err
	}
	s.AddListener(collector)

	if cfg.Monitor {
		s.AddListener(monitorListener(log))
	}

	if err := d.attachSinks(); err != nil {
		d.close()
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	return d, nil
}

func (d *daemon) attachSinks() error {
	cfg := d.cfg
	id := d.sensor.ID()

	rec, err := history.NewService(history.Config{
		Enabled:      cfg.History.Enabled,
		DBPath:       cfg.History.DB,
		BatchSize:    cfg.History.BatchSize,
		BatchTimeout: cfg.History.BatchTimeout,
		SensorID:     id,
	}, d.log.With("sink", "history"))
	if err != nil {
		return err
	}
	d.attach(rec)

	if cfg.MQTT.Broker != "" {
		p, err := publisher.NewMQTT(publisher.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    cfg.MQTT.ClientID,
			QoS:         byte(cfg.MQTT.QoS),
		}, id, d.log.With("sink", "mqtt"))
		if err != nil {
			return err
		}
		d.attach(p)
	}

	if cfg.Influx.URL != "" {
		p, err := publisher.NewInflux(publisher.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, id, d.log.With("sink", "influx"))
		if err != nil {
			return err
		}
		d.attach(p)
	}

	return nil
}

func (d *daemon) attach(s sink) {
	d.sinks = append(d.sinks, s)
	d.sensor.AddListener(s)
}

// close stops sampling and closes sinks in reverse order of attachment.
func (d *daemon) close() {
	d.sensor.Stop()

	for i := len(d.sinks) - 1; i >= 0; i-- {
		s := d.sinks[i]
		d.sensor.RemoveListener(s)
		if err := s.Close(); err != nil {
			d.log.Error().Err(err).Msg("failed to close sink")
		}
	}
	d.sinks = nil
}

func (d *daemon) logStatus() {
	summary := sensor.Summarize(d.sensor.Measurements())

	d.log.Info().
		Uint64("total", d.sensor.MeasurementCount()).
		Int("buffered", summary.Count).
		Float64("min", summary.Min).
		Float64("max", summary.Max).
		Float64("mean", summary.Mean).
		Str("unit", d.sensor.Unit().Symbol()).
		Msg("Sensor status")
}

func monitorListener(log logger.Logger) sensor.Listener {
	return sensor.ListenerFunc(func(m sensor.Measurement) error {
		log.Info().
			Float64("quantity", m.Quantity).
			Str("unit", m.Unit.Symbol()).
			Time("timestamp", m.Timestamp).
			Msg("")
		return nil
	})
}
