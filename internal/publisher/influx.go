package publisher

import (
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/sensor"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	influxBatchSize = 100
	influxQueueSize = 1024
)

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func (c InfluxConfig) Validate() error {
	if c.URL == "" || c.Org == "" || c.Bucket == "" {
		return errors.New().WithMessage(ErrInvalidConfig, "InfluxDB url, org and bucket are required")
	}
	return nil
}

// pointWriter is the subset of api.WriteAPI used for publishing.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
	Errors() <-chan error
}

// Influx writes each measurement as a point. The client's WritePoint blocks
// while a batch is in flight, so points pass through a bounded queue drained
// by a forwarding goroutine; when the queue is full the point is dropped.
type Influx struct {
	writer   pointWriter
	closeFn  func()
	sensorID string
	log      logger.Logger

	// mu guards queue against sends after close
	mu      sync.RWMutex
	closed  bool
	queue   chan *write.Point
	dropped atomic.Uint64

	forwarded chan struct{}
	done      chan struct{}
	drained   chan struct{}
	closeOnce sync.Once
}

func NewInflux(cfg InfluxConfig, sensorID string, log logger.Logger) (*Influx, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := influxdb2.DefaultOptions().SetBatchSize(influxBatchSize)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	log = log.With("influx_url", cfg.URL)
	log.Info().Str("org", cfg.Org).Str("bucket", cfg.Bucket).Msg("InfluxDB publisher initialized")

	return newInflux(client.WriteAPI(cfg.Org, cfg.Bucket), client.Close, sensorID, influxQueueSize, log), nil
}

func newInflux(writer pointWriter, closeFn func(), sensorID string, queueSize int, log logger.Logger) *Influx {
	p := &Influx{
		writer:    writer,
		closeFn:   closeFn,
		sensorID:  sensorID,
		log:       log,
		queue:     make(chan *write.Point, queueSize),
		forwarded: make(chan struct{}),
		done:      make(chan struct{}),
		drained:   make(chan struct{}),
	}

	go p.forward()
	go p.drainErrors()

	return p
}

// Point builds the InfluxDB point for m.
func Point(sensorID string, m sensor.Measurement) *write.Point {
	return influxdb2.NewPoint(
		m.Unit.Quantity().String(),
		map[string]string{
			"sensor_id": sensorID,
			"unit":      m.Unit.String(),
		},
		map[string]interface{}{
			"value": m.Quantity,
		},
		m.Timestamp,
	)
}

// OnMeasurement queues a point and returns immediately. A full queue drops
// the point and returns ErrQueueFull.
func (p *Influx) OnMeasurement(m sensor.Measurement) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.New().New(ErrClosed)
	}

	select {
	case p.queue <- Point(p.sensorID, m):
		return nil
	default:
		dropped := p.dropped.Add(1)
		p.log.Warn().Uint64("dropped", dropped).Msg("InfluxDB queue full, point dropped")
		return errors.New().WithData(ErrQueueFull, struct{ Dropped uint64 }{dropped})
	}
}

// Dropped returns how many points were discarded because the queue was full.
func (p *Influx) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Influx) forward() {
	defer close(p.forwarded)

	for point := range p.queue {
		p.writer.WritePoint(point)
	}
}

func (p *Influx) drainErrors() {
	defer close(p.drained)

	errs := p.writer.Errors()
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			p.log.Warn().Err(err).Msg("InfluxDB write failed")
		case <-p.done:
			return
		}
	}
}

// Close forwards queued points, flushes them and closes the client.
func (p *Influx) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		<-p.forwarded
		p.writer.Flush()
		close(p.done)
		<-p.drained
		if p.closeFn != nil {
			p.closeFn()
		}
		p.log.Debug().Uint64("dropped", p.dropped.Load()).Msg("InfluxDB publisher closed")
	})
	return nil
}
