// Package sensor implements the sampling engine of a simulated sensor: a
// periodic loop that draws a value, stamps it, keeps a bounded history, and
// notifies listeners.
//
// Dispatch to listeners is synchronous on the sampling goroutine and happens
// after the measurement is buffered and counted. A slow listener delays the
// next tick but never the buffer. Listeners doing I/O should hand work off.
package sensor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/ring"
	"codeberg.org/mutker/sensorsim/internal/source"
	"codeberg.org/mutker/sensorsim/internal/unit"
	"github.com/google/uuid"
)

// Config holds the construction parameters of a Sensor.
type Config struct {
	Period   time.Duration
	Unit     unit.Unit
	Capacity int // 0 disables the buffer (listener-only mode)
}

// Option customizes a Sensor.
type Option func(*Sensor)

// WithID overrides the generated sensor ID.
func WithID(id string) Option {
	return func(s *Sensor) {
		if id != "" {
			s.id = id
		}
	}
}

// WithClock replaces time.Now as the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Sensor) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used to report skipped ticks and listener failures.
func WithLogger(log logger.Logger) Option {
	return func(s *Sensor) {
		if log != nil {
			s.log = log
		}
	}
}

// WithErrorHandler registers fn to receive every source and listener error.
// fn runs on the sampling goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Sensor) {
		s.onError = fn
	}
}

// WithListeners registers listeners at construction.
func WithListeners(listeners ...Listener) Option {
	return func(s *Sensor) {
		for _, l := range listeners {
			s.listeners.Add(l)
		}
	}
}

// Sensor is a periodic sampling engine.
type Sensor struct {
	id        string
	period    time.Duration
	unit      unit.Unit
	src       source.Source
	now       func() time.Time
	log       logger.Logger
	onError   func(error)
	listeners *Registry

	// guarded by mu; written only by the sampling goroutine
	mu     sync.RWMutex
	buffer *ring.Buffer[Measurement]
	count  uint64
	last   time.Time

	// lifecycle transitions are serialized by runMu; running is readable
	// without it so listeners may query it while Stop waits
	runMu   sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New validates cfg and returns a stopped Sensor.
func New(cfg Config, src source.Source, opts ...Option) (*Sensor, error) {
	errFactory := errors.New()

	if cfg.Period <= 0 {
		return nil, errFactory.WithData(ErrInvalidPeriod, cfg.Period)
	}
	if !cfg.Unit.Valid() {
		return nil, errFactory.WithData(ErrInvalidUnit, int(cfg.Unit))
	}
	if cfg.Capacity < 0 {
		return nil, errFactory.WithData(ErrInvalidCapacity, cfg.Capacity)
	}
	if src == nil {
		return nil, errFactory.New(ErrNilSource)
	}

	s := &Sensor{
		id:        uuid.NewString(),
		period:    cfg.Period,
		unit:      cfg.Unit,
		src:       src,
		now:       time.Now,
		log:       logger.Default(),
		listeners: NewRegistry(),
	}

	if cfg.Capacity > 0 {
		buffer, err := ring.New[Measurement](cfg.Capacity)
		if err != nil {
			return nil, err
		}
		s.buffer = buffer
	}

	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("sensor_id", s.id)

	return s, nil
}

// Start begins sampling: the first measurement is taken immediately, then one
// every period. Starting a running sensor does nothing.
func (s *Sensor) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.loop(ctx, s.done)

	s.log.Debug().
		Dur("period", s.period).
		Str("unit", s.unit.String()).
		Msg("Sampling started")
}

// Stop halts sampling and waits for an in-flight tick to finish, so nothing is
// buffered, counted, or dispatched after it returns. Stopping a stopped sensor
// does nothing. Stop must not be called from inside a listener.
func (s *Sensor) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running.Load() {
		return
	}

	s.running.Store(false)
	s.cancel()
	<-s.done

	s.log.Debug().
		Uint64("measurements", s.MeasurementCount()).
		Msg("Sampling stopped")
}

// IsRunning reports whether the sensor is sampling. It turns false as soon
// as Stop begins and is safe to call from a listener.
func (s *Sensor) IsRunning() bool {
	return s.running.Load()
}

func (s *Sensor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	s.tick()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Both channels may be ready; cancellation wins.
			if ctx.Err() != nil {
				return
			}
			s.tick()
		}
	}
}

func (s *Sensor) tick() {
	quantity, err := s.sample()
	if err != nil {
		s.report(err)
		return
	}

	s.mu.Lock()
	ts := s.now().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Nanosecond)
	}
	s.last = ts

	m := NewMeasurement(quantity, s.unit, ts)
	if s.buffer != nil {
		s.buffer.Add(m)
	}
	s.count++
	s.mu.Unlock()

	for _, err := range s.listeners.Dispatch(m) {
		s.report(err)
	}
}

// sample draws the next value. A failing or panicking source yields
// ErrSourceFailed and the tick is skipped.
func (s *Sensor) sample() (quantity float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrSourceFailed, struct {
				Reason string
			}{
				Reason: fmt.Sprint(r),
			})
		}
	}()

	quantity, err = s.src.Next()
	if err != nil {
		return 0, errors.New().Wrap(ErrSourceFailed, err)
	}
	return quantity, nil
}

func (s *Sensor) report(err error) {
	s.log.Warn().
		Str("error_code", string(errors.CodeOf(err))).
		Err(err).
		Msg("Sample error")

	if s.onError != nil {
		s.onError(err)
	}
}

// AddListener registers l to receive every subsequent measurement.
func (s *Sensor) AddListener(l Listener) {
	s.listeners.Add(l)
}

// RemoveListener unregisters l. Removing an unknown listener is a no-op.
func (s *Sensor) RemoveListener(l Listener) {
	s.listeners.Remove(l)
}

// Listeners returns the number of registered listeners.
func (s *Sensor) Listeners() int {
	return s.listeners.Len()
}

// MeasurementCount returns how many measurements have been taken.
func (s *Sensor) MeasurementCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Measurements returns a copy of the buffered measurements, oldest first. It
// is empty before the first tick and always in listener-only mode.
func (s *Sensor) Measurements() []Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.buffer == nil {
		return []Measurement{}
	}
	return s.buffer.Snapshot()
}

// Size returns the number of buffered measurements.
func (s *Sensor) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.buffer == nil {
		return 0
	}
	return s.buffer.Len()
}

// ID returns the sensor identifier.
func (s *Sensor) ID() string {
	return s.id
}

// Unit returns the unit every measurement is expressed in.
func (s *Sensor) Unit() unit.Unit {
	return s.unit
}

// Period returns the interval between ticks.
func (s *Sensor) Period() time.Duration {
	return s.period
}

// Capacity returns the buffer capacity, 0 in listener-only mode.
func (s *Sensor) Capacity() int {
	if s.buffer == nil {
		return 0
	}
	return s.buffer.Cap()
}
