package history_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/history"
	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/sensor"
	"codeberg.org/mutker/sensorsim/internal/source"
	"codeberg.org/mutker/sensorsim/internal/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func measurement(i int) sensor.Measurement {
	return sensor.NewMeasurement(float64(i), unit.Celsius, base.Add(time.Duration(i)*time.Millisecond))
}

func testConfig(t *testing.T) history.Config {
	t.Helper()

	return history.Config{
		Enabled:      true,
		DBPath:       filepath.Join(t.TempDir(), "history.db"),
		BatchSize:    3,
		BatchTimeout: time.Hour,
		SensorID:     "sensor-1",
	}
}

func countRows(t *testing.T, path string) int {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM measurements").Scan(&n))
	return n
}

func TestDisabledServiceIsNoop(t *testing.T) {
	rec, err := history.NewService(history.Config{}, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, rec.OnMeasurement(measurement(1)))

	got, err := rec.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, rec.Close())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, history.DefaultConfig().Validate())

	err := history.Config{Enabled: true}.Validate()
	assert.True(t, errors.HasCode(err, history.ErrInvalidDBPath))

	err = history.Config{Enabled: true, DBPath: "x.db", BatchSize: -1}.Validate()
	assert.True(t, errors.HasCode(err, history.ErrInvalidConfig))

	_, err = history.NewService(history.Config{Enabled: true}, logger.Nop())
	assert.True(t, errors.HasCode(err, history.ErrInvalidConfig))
}

func TestRecordAndRecent(t *testing.T) {
	cfg := testConfig(t)
	rec, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, rec.OnMeasurement(measurement(i)))
	}

	got, err := rec.Recent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, m := range got {
		assert.True(t, measurement(i+3).Equal(m), "got %v", m)
	}

	all, err := rec.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := rec.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFullBatchFlushesInBackground(t *testing.T) {
	cfg := testConfig(t)
	rec, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	for i := 1; i <= cfg.BatchSize; i++ {
		require.NoError(t, rec.OnMeasurement(measurement(i)))
	}

	require.Eventually(t, func() bool {
		return countRows(t, cfg.DBPath) == cfg.BatchSize
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBatchTimeoutFlushes(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 20 * time.Millisecond

	rec, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.OnMeasurement(measurement(1)))

	require.Eventually(t, func() bool {
		return countRows(t, cfg.DBPath) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseFlushesPending(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100

	rec, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, rec.OnMeasurement(measurement(1)))
	require.NoError(t, rec.OnMeasurement(measurement(2)))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	assert.Equal(t, 2, countRows(t, cfg.DBPath))

	err = rec.OnMeasurement(measurement(3))
	assert.True(t, errors.HasCode(err, history.ErrRecorderClosed))
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testConfig(t)

	rec, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, rec.OnMeasurement(measurement(1)))
	require.NoError(t, rec.Close())

	rec, err = history.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	got, err := rec.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, unit.Celsius, got[0].Unit)
}

func TestSchemaMismatchCreatesBackup(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	rec, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	backups, err := os.ReadDir(filepath.Join(filepath.Dir(cfg.DBPath), "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "history_v99_")

	require.NoError(t, rec.OnMeasurement(measurement(1)))
	got, err := rec.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecorderAsSensorListener(t *testing.T) {
	cfg := testConfig(t)
	rec, err := history.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	s, err := sensor.New(sensor.Config{Period: 5 * time.Millisecond, Unit: unit.Celsius, Capacity: 10},
		source.NewConstant(21.5),
		sensor.WithLogger(logger.Nop()),
		sensor.WithListeners(rec),
	)
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return s.MeasurementCount() >= 5 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	got, err := rec.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, got, int(s.MeasurementCount()))
	for _, m := range got {
		assert.InDelta(t, 21.5, m.Quantity, 1e-9)
	}
}
