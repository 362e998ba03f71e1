package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rover.autopilot/internal/autopilot"
	"github.com/banshee-data/rover.autopilot/internal/perception"
	"github.com/banshee-data/rover.autopilot/internal/rover"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
)

var testStart = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRecord(seq int64) autopilot.Record {
	return autopilot.Record{
		Seq:       seq,
		Time:      testStart.Add(time.Duration(seq) * 100 * time.Millisecond),
		Elapsed:   time.Duration(seq) * 100 * time.Millisecond,
		X:         99.7 - float64(seq),
		Y:         85.6,
		Yaw:       12.5,
		Velocity:  1.2,
		Executed:  rover.FollowWall,
		Next:      rover.AvoidWall,
		Command:   telemetry.Drive(rover.Actuation{Throttle: 0.8, Steer: -4.5}),
		NavPixels: 1200,
		Stats: perception.MapStats{
			PercentMapped:  41.3,
			Fidelity:       88.2,
			NavigableCells: 512,
			SamplesLocated: 2,
		},
		SamplesCollected: 1,
	}
}

func TestStartMission(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec, err := db.StartMission(ctx, testStart, []byte(`{"mission":{"sample_goal":6}}`))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	m, err := db.GetMission(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, m.ID)
	assert.True(t, m.Started.Equal(testStart))
	assert.Nil(t, m.Ended)
	assert.Empty(t, m.FinalBehavior)
	assert.JSONEq(t, `{"mission":{"sample_goal":6}}`, m.ConfigJSON)
}

func TestRecordCycle_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rec, err := db.StartMission(ctx, testStart, nil)
	require.NoError(t, err)

	want := []autopilot.Record{sampleRecord(1), sampleRecord(2), sampleRecord(3)}
	want[2].Executed = rover.Stop
	want[2].Next = rover.InitiatePickup
	want[2].Command = telemetry.Pickup()
	for _, r := range want {
		require.NoError(t, rec.RecordCycle(ctx, r))
	}

	got, err := db.MissionCycles(ctx, rec.ID)
	require.NoError(t, err)
	opts := cmp.Options{
		cmpopts.EquateApprox(0, 1e-9),
		cmp.Comparer(func(a, b time.Time) bool {
			d := a.Sub(b)
			return d < time.Microsecond && d > -time.Microsecond
		}),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("MissionCycles mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordCycle_DuplicateSeq(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rec, err := db.StartMission(ctx, testStart, nil)
	require.NoError(t, err)

	require.NoError(t, rec.RecordCycle(ctx, sampleRecord(1)))
	assert.Error(t, rec.RecordCycle(ctx, sampleRecord(1)))
}

func TestRecordCycle_UnknownMission(t *testing.T) {
	db := setupTestDB(t)
	orphan := &MissionRecorder{db: db, ID: "missing"}
	assert.Error(t, orphan.RecordCycle(context.Background(), sampleRecord(1)),
		"foreign key should reject cycles without a mission")
}

func TestFinishMission(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rec, err := db.StartMission(ctx, testStart, nil)
	require.NoError(t, err)

	ended := testStart.Add(11*time.Minute + 30*time.Second)
	require.NoError(t, rec.Finish(ctx, Summary{
		Ended:            ended,
		SamplesToFind:    6,
		SamplesCollected: 6,
		FinalBehavior:    rover.Park,
		Stats:            perception.MapStats{PercentMapped: 96.1, Fidelity: 81.4},
	}))

	m, err := db.GetMission(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, m.Ended)
	assert.True(t, m.Ended.Equal(ended))
	assert.Equal(t, 6, m.SamplesToFind)
	assert.Equal(t, 6, m.SamplesCollected)
	assert.Equal(t, "Park", m.FinalBehavior)
	assert.InDelta(t, 96.1, m.PercentMapped, 1e-9)
	assert.InDelta(t, 81.4, m.Fidelity, 1e-9)

	err = db.FinishMission(ctx, "missing", Summary{Ended: ended})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMissions_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	missions, err := db.ListMissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, missions)
	assert.NotNil(t, missions)

	older, err := db.StartMission(ctx, testStart, nil)
	require.NoError(t, err)
	newer, err := db.StartMission(ctx, testStart.Add(time.Hour), nil)
	require.NoError(t, err)

	missions, err = db.ListMissions(ctx)
	require.NoError(t, err)
	require.Len(t, missions, 2)
	assert.Equal(t, newer.ID, missions[0].ID)
	assert.Equal(t, older.ID, missions[1].ID)
}

func TestGetMission_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetMission(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.MissionCycles(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAutopilotRecordsIntoMission(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rec, err := db.StartMission(ctx, testStart, nil)
	require.NoError(t, err)

	var r autopilot.Recorder = rec
	require.NoError(t, r.RecordCycle(ctx, sampleRecord(7)))
	cycles, err := db.MissionCycles(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, int64(7), cycles[0].Seq)
}

func TestSummaryOf(t *testing.T) {
	st := autopilot.Status{
		Behavior:         rover.Stop,
		SamplesToFind:    6,
		SamplesCollected: 4,
		Map:              perception.MapStats{PercentMapped: 92.5, Fidelity: 71},
	}
	ended := testStart.Add(time.Hour)
	want := Summary{
		Ended:            ended,
		SamplesToFind:    6,
		SamplesCollected: 4,
		FinalBehavior:    rover.Stop,
		Stats:            perception.MapStats{PercentMapped: 92.5, Fidelity: 71},
	}
	if diff := cmp.Diff(want, SummaryOf(st, ended)); diff != "" {
		t.Errorf("SummaryOf mismatch (-want +got):\n%s", diff)
	}
}
