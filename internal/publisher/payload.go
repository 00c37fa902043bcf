// Package publisher forwards measurements to external systems.
//
// Publishers are sensor listeners that never block the sampling loop: MQTT
// publishes are fire-and-forget with a background completion watcher, and
// InfluxDB points enter a bounded queue in front of the client's write API,
// dropping points when it is full.
package publisher

import (
	"strings"
	"time"

	"codeberg.org/mutker/sensorsim/internal/sensor"
)

// Payload is the JSON document published for each measurement.
type Payload struct {
	SensorID  string  `json:"sensor_id"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit"`
	Symbol    string  `json:"symbol"`
	Timestamp string  `json:"timestamp"`
}

func NewPayload(sensorID string, m sensor.Measurement) Payload {
	return Payload{
		SensorID:  sensorID,
		Quantity:  m.Quantity,
		Unit:      m.Unit.String(),
		Symbol:    m.Unit.Symbol(),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Topic returns <prefix>/<quantity>/<sensorID>, e.g. sensors/temperature/abc.
func Topic(prefix string, m sensor.Measurement, sensorID string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix + "/" + m.Unit.Quantity().String() + "/" + sensorID
}
