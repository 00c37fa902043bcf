package publisher

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/sensor"
	"codeberg.org/mutker/sensorsim/internal/unit"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stamp = time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { <-t.done; return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	err          error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(c.err)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func TestTopic(t *testing.T) {
	temp := sensor.NewMeasurement(1, unit.Celsius, stamp)
	flow := sensor.NewMeasurement(1, unit.CubicMetersPerHour, stamp)

	assert.Equal(t, "sensors/temperature/abc", Topic("sensors", temp, "abc"))
	assert.Equal(t, "plant/a/temperature/abc", Topic("plant/a/", temp, "abc"))
	assert.Equal(t, "sensors/"+unit.VolumetricFlow.String()+"/abc", Topic("sensors", flow, "abc"))
}

func TestPayload(t *testing.T) {
	p := NewPayload("abc", sensor.NewMeasurement(21.5, unit.Celsius, stamp))

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sensor_id": "abc",
		"quantity": 21.5,
		"unit": "celsius",
		"symbol": "°C",
		"timestamp": "2024-03-01T12:00:00.123456789Z"
	}`, string(data))
}

func TestMQTTPublishes(t *testing.T) {
	client := &fakeClient{}
	p := newMQTT(client, MQTTConfig{TopicPrefix: "sensors", QoS: 1}, "abc", logger.Nop())

	require.NoError(t, p.OnMeasurement(sensor.NewMeasurement(20, unit.Celsius, stamp)))
	require.NoError(t, p.OnMeasurement(sensor.NewMeasurement(21, unit.Celsius, stamp.Add(time.Second))))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	require.Len(t, client.messages, 2)
	assert.Equal(t, "sensors/temperature/abc", client.messages[0].topic)
	assert.Equal(t, byte(1), client.messages[0].qos)

	var got Payload
	require.NoError(t, json.Unmarshal(client.messages[1].payload, &got))
	assert.InDelta(t, 21.0, got.Quantity, 1e-9)
	assert.True(t, client.disconnected)
}

func TestMQTTPublishFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	client := &fakeClient{err: io.ErrClosedPipe}
	p := newMQTT(client, MQTTConfig{TopicPrefix: "sensors"}, "abc", logger.New(&buf, logger.DebugLevel))

	require.NoError(t, p.OnMeasurement(sensor.NewMeasurement(20, unit.Celsius, stamp)))
	require.NoError(t, p.Close())

	assert.Contains(t, buf.String(), "MQTT publish failed")
}

func TestMQTTConfigValidate(t *testing.T) {
	assert.True(t, errors.HasCode(MQTTConfig{}.Validate(), ErrInvalidConfig))
	assert.True(t, errors.HasCode(MQTTConfig{Broker: "tcp://x:1883", QoS: 3}.Validate(), ErrInvalidConfig))
	assert.NoError(t, MQTTConfig{Broker: "tcp://x:1883", QoS: 2}.Validate())

	_, err := NewMQTT(MQTTConfig{}, "abc", logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	errs    chan error
	flushed bool

	// gate, when set, holds every WritePoint until it is closed
	gate chan struct{}
	busy atomic.Bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{errs: make(chan error, 1)}
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	if w.gate != nil {
		w.busy.Store(true)
		<-w.gate
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushed = true
}

func (w *fakeWriter) Errors() <-chan error { return w.errs }

func TestPoint(t *testing.T) {
	p := Point("abc", sensor.NewMeasurement(3.5, unit.CubicMetersPerHour, stamp))

	assert.Equal(t, unit.VolumetricFlow.String(), p.Name())
	assert.Equal(t, stamp, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"sensor_id": "abc", "unit": "m3_per_hour"}, tags)

	require.Len(t, p.FieldList(), 1)
	assert.Equal(t, "value", p.FieldList()[0].Key)
	assert.Equal(t, 3.5, p.FieldList()[0].Value)
}

func TestInfluxWritesAndCloses(t *testing.T) {
	w := newFakeWriter()
	closed := false
	p := newInflux(w, func() { closed = true }, "abc", 16, logger.Nop())

	require.NoError(t, p.OnMeasurement(sensor.NewMeasurement(20, unit.Celsius, stamp)))
	require.NoError(t, p.OnMeasurement(sensor.NewMeasurement(21, unit.Celsius, stamp.Add(time.Second))))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Len(t, w.points, 2)
	assert.True(t, w.flushed)
	assert.True(t, closed)
}

func TestInfluxLogsWriteErrors(t *testing.T) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	w := newFakeWriter()
	p := newInflux(w, nil, "abc", 16, logger.New(&lockedWriter{mu: &mu, w: &buf}, logger.DebugLevel))

	w.errs <- io.ErrUnexpectedEOF

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bytes.Contains(buf.Bytes(), []byte("InfluxDB write failed"))
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close())
}

func TestInfluxDropsWhenQueueFull(t *testing.T) {
	w := newFakeWriter()
	w.gate = make(chan struct{})
	p := newInflux(w, nil, "abc", 2, logger.Nop())

	require.NoError(t, p.OnMeasurement(sensor.NewMeasurement(1, unit.Celsius, stamp)))
	require.Eventually(t, w.busy.Load, 2*time.Second, time.Millisecond)

	require.NoError(t, p.OnMeasurement(sensor.NewMeasurement(2, unit.Celsius, stamp)))
	require.NoError(t, p.OnMeasurement(sensor.NewMeasurement(3, unit.Celsius, stamp)))

	err := p.OnMeasurement(sensor.NewMeasurement(4, unit.Celsius, stamp))
	assert.True(t, errors.HasCode(err, ErrQueueFull))
	assert.Equal(t, uint64(1), p.Dropped())

	close(w.gate)
	require.NoError(t, p.Close())
	assert.Len(t, w.points, 3)

	err = p.OnMeasurement(sensor.NewMeasurement(5, unit.Celsius, stamp))
	assert.True(t, errors.HasCode(err, ErrClosed))
}

func TestInfluxSlowServerDoesNotBlock(t *testing.T) {
	var writes atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writes.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, err := NewInflux(InfluxConfig{URL: srv.URL, Token: "t", Org: "o", Bucket: "b"}, "abc", logger.Nop())
	require.NoError(t, err)

	var worst time.Duration
	for i := 0; i < 350; i++ {
		start := time.Now()
		require.NoError(t, p.OnMeasurement(sensor.NewMeasurement(float64(i), unit.Celsius, stamp.Add(time.Duration(i)*time.Second))))
		worst = max(worst, time.Since(start))
	}

	assert.Less(t, worst, 100*time.Millisecond)
	assert.Zero(t, p.Dropped())

	require.NoError(t, p.Close())
	assert.Positive(t, writes.Load())
}

func TestInfluxConfigValidate(t *testing.T) {
	assert.True(t, errors.HasCode(InfluxConfig{URL: "http://localhost:8086"}.Validate(), ErrInvalidConfig))
	assert.NoError(t, InfluxConfig{URL: "http://localhost:8086", Org: "o", Bucket: "b"}.Validate())
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
