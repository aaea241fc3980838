package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarsim/internal/model"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCountersRoundTrip(t *testing.T) {
	db := openTestDB(t)

	stamp := time.Date(2026, 8, 30, 11, 55, 0, 0, time.UTC)
	in := model.EnergyState{DailyKWh: 412.5, MonthlyKWh: 9100.25, TotalKWh: 1_234_567.5, LastUpdate: stamp}
	require.NoError(t, db.SaveCounters("turin-1", in))

	out, err := db.LoadCounters("turin-1")
	require.NoError(t, err)
	assert.Equal(t, in.DailyKWh, out.DailyKWh)
	assert.Equal(t, in.MonthlyKWh, out.MonthlyKWh)
	assert.Equal(t, in.TotalKWh, out.TotalKWh)
	assert.True(t, stamp.Equal(out.LastUpdate))
}

func TestSaveCountersUpserts(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveCounters("p", model.EnergyState{TotalKWh: 100}))
	require.NoError(t, db.SaveCounters("p", model.EnergyState{TotalKWh: 150}))
	require.NoError(t, db.SaveCounters("q", model.EnergyState{TotalKWh: 7}))

	p, err := db.LoadCounters("p")
	require.NoError(t, err)
	assert.Equal(t, 150.0, p.TotalKWh)

	q, err := db.LoadCounters("q")
	require.NoError(t, err)
	assert.Equal(t, 7.0, q.TotalKWh)
}

func TestLoadCountersMissingPlant(t *testing.T) {
	db := openTestDB(t)

	out, err := db.LoadCounters("never-seen")
	require.NoError(t, err)
	assert.Zero(t, out.DailyKWh)
	assert.Zero(t, out.TotalKWh)
	assert.True(t, out.LastUpdate.IsZero())
}
