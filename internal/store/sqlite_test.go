package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleCycle(started time.Time) *CycleRecord {
	v := 21.4
	return &CycleRecord{
		Trigger:     "timewindow",
		Force:       true,
		WindowStart: 0,
		WindowEnd:   24,
		Selected:    2,
		Succeeded:   1,
		Failed:      1,
		StartedAt:   started,
		FinishedAt:  started.Add(1500 * time.Millisecond),
		Outcomes: []OutcomeRecord{
			{RegionID: "r1", OK: true, Value: &v, SampleCount: 8, TotalRequested: 9},
			{RegionID: "r2", OK: false, Reason: "no valid data", TotalRequested: 4},
		},
	}
}

func TestSQLite_SaveAndGetCycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	started := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	c := sampleCycle(started)
	require.NoError(t, st.SaveCycle(ctx, c))
	require.NotEmpty(t, c.ID)

	got, err := st.GetCycle(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "timewindow", got.Trigger)
	assert.True(t, got.Force)
	assert.InDelta(t, 24, got.WindowEnd, 1e-9)
	assert.Equal(t, 2, got.Selected)
	assert.True(t, started.Equal(got.StartedAt))
	assert.True(t, started.Add(1500*time.Millisecond).Equal(got.FinishedAt))

	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, "r1", got.Outcomes[0].RegionID)
	require.NotNil(t, got.Outcomes[0].Value)
	assert.InDelta(t, 21.4, *got.Outcomes[0].Value, 1e-9)
	assert.Equal(t, 8, got.Outcomes[0].SampleCount)
	assert.False(t, got.Outcomes[1].OK)
	assert.Equal(t, "no valid data", got.Outcomes[1].Reason)
	assert.Nil(t, got.Outcomes[1].Value)
}

func TestSQLite_GetCycle_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetCycle(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListCycles_NewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		c := sampleCycle(base.Add(time.Duration(i) * time.Hour))
		c.ID = string(rune('a' + i))
		require.NoError(t, st.SaveCycle(ctx, c))
	}

	cycles, err := st.ListCycles(ctx, CycleFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, "e", cycles[0].ID)
	assert.Equal(t, "d", cycles[1].ID)
	assert.Empty(t, cycles[0].Outcomes)

	cycles, err = st.ListCycles(ctx, CycleFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, "a", cycles[0].ID)

	cycles, err = st.ListCycles(ctx, CycleFilter{})
	require.NoError(t, err)
	assert.Len(t, cycles, 5)
}

func TestSQLite_ListCycles_StartedAfter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	for i := range 4 {
		c := sampleCycle(base.Add(time.Duration(i) * time.Hour))
		c.ID = string(rune('a' + i))
		require.NoError(t, st.SaveCycle(ctx, c))
	}

	cycles, err := st.ListCycles(ctx, CycleFilter{StartedAfter: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, "d", cycles[0].ID)
	assert.Equal(t, "c", cycles[1].ID)
}

func TestSQLite_SaveCycle_DuplicateID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := sampleCycle(time.Now())
	c.ID = "dup"
	require.NoError(t, st.SaveCycle(ctx, c))

	err := st.SaveCycle(ctx, sampleCycleWithID("dup"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert cycle dup")

	got, err := st.GetCycle(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, got.Outcomes, 2)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, DriverNone, "", nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	_, err = s.ListCycles(ctx, CycleFilter{})
	assert.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = Open(ctx, "mongo", "", nil)
	assert.ErrorContains(t, err, "unknown driver")
}

func sampleCycleWithID(id string) *CycleRecord {
	c := sampleCycle(time.Now())
	c.ID = id
	return c
}
