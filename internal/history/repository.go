package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/sensor"
	"codeberg.org/mutker/sensorsim/internal/unit"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config

	mu     sync.Mutex
	buffer []Record
	closed bool

	// writeMu serializes flushes so batches reach the database in order
	writeMu sync.Mutex

	flushTicker   *time.Ticker
	flushChan     chan struct{}
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
	closeErr      error
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]Record, 0, max(cfg.BatchSize, 1)),
		flushChan:     make(chan struct{}, 1),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
	}
	go repo.flusher()

	return repo, nil
}

// Record queues a measurement. A full batch wakes the flusher; the caller
// never waits for the database.
func (r *repository) Record(record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().New(ErrRecorderClosed)
	}

	r.buffer = append(r.buffer, record)

	if len(r.buffer) >= r.cfg.BatchSize {
		select {
		case r.flushChan <- struct{}{}:
		default:
		}
	}

	return nil
}

// Recent flushes pending records and returns the latest limit rows, oldest first.
func (r *repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	errFactory := errors.New()

	if err := r.flush(); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, recentMeasurementsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			sensorID string
			ts       int64
			quantity float64
			unitName string
		)
		if err := rows.Scan(&sensorID, &ts, &quantity, &unitName); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}

		u, err := unit.Parse(unitName)
		if err != nil {
			return nil, errFactory.Wrap(ErrInvalidRecord, err)
		}

		records = append(records, Record{
			SensorID: sensorID,
			Measurement: sensor.Measurement{
				Quantity:  quantity,
				Unit:      u,
				Timestamp: time.Unix(0, ts).UTC(),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return records, nil
}

func (r *repository) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.close()
	})
	return r.closeErr
}

func (r *repository) close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	// Signal the flusher goroutine to stop and wait for its final flush
	close(r.shutdownChan)
	<-r.flushDoneChan

	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("History repository closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	var tick <-chan time.Time
	if r.flushTicker != nil {
		tick = r.flushTicker.C
	}

	for {
		select {
		case <-tick:
			r.flushAndLog()
		case <-r.flushChan:
			r.flushAndLog()
		case <-r.shutdownChan:
			r.flushAndLog()
			return
		}
	}
}

func (r *repository) flushAndLog() {
	if err := r.flush(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to flush measurements")
	}
}

// flush writes the queued batch in a single transaction. A failed batch is
// dropped.
func (r *repository) flush() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	batch := r.buffer
	r.buffer = make([]Record, 0, cap(batch))
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertMeasurementSQL)
	if err != nil {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, rec := range batch {
		m := rec.Measurement
		if _, err := stmt.Exec(rec.SensorID, m.Timestamp.UnixNano(), m.Quantity, m.Unit.String()); err != nil {
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.WithData(ErrTransactionFailed, struct {
				Records int
				Error   string
			}{
				Records: len(batch),
				Error:   err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(batch)).Msg("Flushed measurements to database")

	return nil
}
