package passlog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "passlog.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Migrates(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Re-running is a no-op.
	require.NoError(t, s.MigrateUp())
	require.NoError(t, s.Ping(context.Background()))
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passlog.db")
	s, err := Open(path, testLogger())
	require.NoError(t, err)
	_, err = s.RecordPass(context.Background(), Record{Satellite: "ISS", NORADID: 25544, Sector: "north"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, testLogger())
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Passes(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.StartSession(ctx, Session{
		ID:         "sess-1",
		Satellite:  "ISS (ZARYA)",
		NORADID:    25544,
		Simulation: true,
		Convention: "south",
		StartedAt:  started,
	}))

	got, err := s.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, got.Simulation)
	assert.Equal(t, "south", got.Convention)
	assert.Equal(t, started, got.StartedAt)
	assert.Nil(t, got.EndedAt)

	ended := started.Add(10 * time.Minute)
	require.NoError(t, s.EndSession(ctx, "sess-1", ended))
	got, err = s.Session(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, ended, *got.EndedAt)

	_, err = s.Session(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.EndSession(ctx, "missing", ended), ErrNotFound)
}

func TestRecordAndQueryPasses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.StartSession(ctx, Session{ID: "sess-1", Satellite: "ISS", NORADID: 25544, Convention: "auto", StartedAt: base}))

	records := []Record{
		{SessionID: "sess-1", Satellite: "ISS", NORADID: 25544, Start: base, End: base.Add(8 * time.Minute), PeakTime: base.Add(4 * time.Minute),
			PeakAzimuth: 10, PeakElevation: 72.5, Description: "from north to south", Sector: "north", Rule: "crosses-north", Rationale: "r1"},
		{Satellite: "ISS", NORADID: 25544, Start: base.Add(90 * time.Minute), End: base.Add(96 * time.Minute), PeakTime: base.Add(93 * time.Minute),
			PeakAzimuth: 100, PeakElevation: 35, Description: "from south to east", Sector: "east", Rule: "hemisphere", Rationale: "r2"},
		{Satellite: "STARLINK-1007", NORADID: 44713, Start: base.Add(30 * time.Minute), End: base.Add(35 * time.Minute), PeakTime: base.Add(32 * time.Minute),
			PeakAzimuth: 200, PeakElevation: 50, Description: "south pass", Sector: "south", Rule: "near-south-peak", Rationale: "r3"},
	}
	for _, r := range records {
		id, err := s.RecordPass(ctx, r)
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	all, err := s.Passes(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "east", all[0].Sector, "newest start first")
	assert.Equal(t, "north", all[2].Sector)
	assert.Equal(t, "sess-1", all[2].SessionID)
	assert.Equal(t, base.Add(4*time.Minute), all[2].PeakTime)
	assert.InDelta(t, 72.5, all[2].PeakElevation, 1e-9)
	assert.False(t, all[2].RecordedAt.IsZero())

	iss, err := s.Passes(ctx, Query{NORADID: 25544})
	require.NoError(t, err)
	assert.Len(t, iss, 2)

	bySession, err := s.Passes(ctx, Query{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, "crosses-north", bySession[0].Rule)

	recent, err := s.Passes(ctx, Query{Since: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	limited, err := s.Passes(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecordPass_UnknownSessionRejected(t *testing.T) {
	s := openTestStore(t)
	_, err := s.RecordPass(context.Background(), Record{SessionID: "nope", Satellite: "ISS", NORADID: 25544})
	assert.Error(t, err, "foreign key should reject unknown sessions")
}

func TestMigrateDown(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.MigrateDown())
	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}
