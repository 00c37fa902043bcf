// Package telemetry exposes sensor activity as Prometheus metrics.
//
// A Collector is attached to a sensor as a listener and as its error
// handler. All metrics carry constant sensor_id and unit labels.
package telemetry

import (
	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/sensor"
	"codeberg.org/mutker/sensorsim/internal/unit"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sensorsim"

// Collector records measurement and error counts for one sensor.
type Collector struct {
	reg         prometheus.Registerer
	constLabels prometheus.Labels

	measurements prometheus.Counter
	lastQuantity prometheus.Gauge
	errorsTotal  *prometheus.CounterVec
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer, sensorID string, u unit.Unit) (*Collector, error) {
	constLabels := prometheus.Labels{
		"sensor_id": sensorID,
		"unit":      u.String(),
	}

	c := &Collector{
		reg:         reg,
		constLabels: constLabels,
		measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "measurements_total",
			Help:        "Total number of measurements taken",
			ConstLabels: constLabels,
		}),
		lastQuantity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_quantity",
			Help:        "Quantity of the most recent measurement",
			ConstLabels: constLabels,
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "errors_total",
			Help:        "Total number of sampling and listener errors by code",
			ConstLabels: constLabels,
		}, []string{"code"}),
	}

	for _, col := range []prometheus.Collector{c.measurements, c.lastQuantity, c.errorsTotal} {
		if err := reg.Register(col); err != nil {
			return nil, errors.New().Wrap(ErrRegisterFailed, err)
		}
	}

	return c, nil
}

// OnMeasurement implements sensor.Listener.
func (c *Collector) OnMeasurement(m sensor.Measurement) error {
	c.measurements.Inc()
	c.lastQuantity.Set(m.Quantity)
	return nil
}

// ReportError counts err under its error code. It matches the signature
// expected by sensor.WithErrorHandler.
func (c *Collector) ReportError(err error) {
	if err == nil {
		return
	}
	c.errorsTotal.WithLabelValues(string(errors.CodeOf(err))).Inc()
}

// WatchBuffer registers a gauge reporting fn on every scrape.
func (c *Collector) WatchBuffer(fn func() int) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "buffered_measurements",
		Help:        "Number of measurements currently held in the buffer",
		ConstLabels: c.constLabels,
	}, func() float64 {
		return float64(fn())
	})

	if err := c.reg.Register(gauge); err != nil {
		return errors.New().Wrap(ErrRegisterFailed, err)
	}
	return nil
}
