package history

import (
	"context"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/sensor"
)

type service struct {
	repo     Repository
	sensorID string
}

// No-op implementation
type noopRecorder struct{}

func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If history is disabled, return a no-op recorder
	if !cfg.Enabled {
		log.Debug().Msg("History recording disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Str("sensor_id", cfg.SensorID).
		Msg("History service initialized successfully")

	return &service{
		repo:     repo,
		sensorID: cfg.SensorID,
	}, nil
}

// OnMeasurement queues m for the next batch. It never touches the database.
func (s *service) OnMeasurement(m sensor.Measurement) error {
	if err := s.repo.Record(Record{SensorID: s.sensorID, Measurement: m}); err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}
	return nil
}

func (s *service) Recent(ctx context.Context, limit int) ([]sensor.Measurement, error) {
	errFactory := errors.New()

	if limit <= 0 {
		return []sensor.Measurement{}, nil
	}

	select {
	case <-ctx.Done():
		return nil, errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	records, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	out := make([]sensor.Measurement, len(records))
	for i, r := range records {
		out[i] = r.Measurement
	}
	return out, nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*noopRecorder) OnMeasurement(sensor.Measurement) error {
	return nil
}

func (*noopRecorder) Recent(context.Context, int) ([]sensor.Measurement, error) {
	return []sensor.Measurement{}, nil
}

func (*noopRecorder) Close() error {
	return nil
}
