package history

import (
	"context"

	"codeberg.org/mutker/sensorsim/internal/sensor"
)

// Recorder persists measurements delivered by a sensor.
type Recorder interface {
	sensor.Listener

	// Recent returns up to limit of the latest recorded measurements, oldest first.
	Recent(ctx context.Context, limit int) ([]sensor.Measurement, error)
	Close() error
}

// Repository defines the interface for measurement storage
type Repository interface {
	Record(record Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Record is a stored measurement row.
type Record struct {
	SensorID    string
	Measurement sensor.Measurement
}
