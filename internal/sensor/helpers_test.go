package sensor_test

import (
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/sensor"
	"codeberg.org/mutker/sensorsim/internal/unit"
)

// counter yields 1, 2, 3, ... so a quantity identifies the tick that produced it.
type counter struct {
	n atomic.Int64
}

func (c *counter) Next() (float64, error) {
	return float64(c.n.Add(1)), nil
}

type recorder struct {
	mu  sync.Mutex
	got []sensor.Measurement
}

func (r *recorder) OnMeasurement(m sensor.Measurement) error {
	r.mu.Lock()
	r.got = append(r.got, m)
	r.mu.Unlock()
	return nil
}

func (r *recorder) all() []sensor.Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sensor.Measurement, len(r.got))
	copy(out, r.got)
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (e *errorSink) handle(err error) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

func (e *errorSink) all() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

func newSensor(period time.Duration, capacity int, opts ...sensor.Option) (*sensor.Sensor, *counter) {
	src := &counter{}
	opts = append([]sensor.Option{sensor.WithLogger(logger.Nop())}, opts...)
	s, err := sensor.New(sensor.Config{Period: period, Unit: unit.Celsius, Capacity: capacity}, src, opts...)
	if err != nil {
		panic(err)
	}
	return s, src
}

func quantities(ms []sensor.Measurement) []float64 {
	out := make([]float64, len(ms))
	for i, m := range ms {
		out[i] = m.Quantity
	}
	return out
}
