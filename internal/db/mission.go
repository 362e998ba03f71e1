package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/rover.autopilot/internal/autopilot"
	"github.com/banshee-data/rover.autopilot/internal/perception"
	"github.com/banshee-data/rover.autopilot/internal/rover"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
)

// ErrNotFound is returned when a mission id is unknown.
var ErrNotFound = errors.New("mission not found")

// Mission is one row of the missions table.
type Mission struct {
	ID               string     `json:"mission_id"`
	Started          time.Time  `json:"started"`
	Ended            *time.Time `json:"ended,omitempty"`
	SamplesToFind    int        `json:"samples_to_find"`
	SamplesCollected int        `json:"samples_collected"`
	FinalBehavior    string     `json:"final_behavior,omitempty"`
	PercentMapped    float64    `json:"percent_mapped"`
	Fidelity         float64    `json:"fidelity"`
	ConfigJSON       string     `json:"-"`
}

// Summary is written when a mission ends.
type Summary struct {
	Ended            time.Time
	SamplesToFind    int
	SamplesCollected int
	FinalBehavior    rover.Behavior
	Stats            perception.MapStats
}

// SummaryOf builds the closing summary from a final autopilot status.
func SummaryOf(st autopilot.Status, ended time.Time) Summary {
	return Summary{
		Ended:            ended,
		SamplesToFind:    st.SamplesToFind,
		SamplesCollected: st.SamplesCollected,
		FinalBehavior:    st.Behavior,
		Stats:            st.Map,
	}
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// StartMission inserts a new mission row and returns a recorder that
// appends cycles to it. configJSON is stored verbatim for later reference.
func (db *DB) StartMission(ctx context.Context, started time.Time, configJSON []byte) (*MissionRecorder, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO missions (mission_id, started_unix, config_json) VALUES (?, ?, ?)`,
		id, toUnix(started), string(configJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("insert mission: %w", err)
	}
	logf("mission %s started", id)
	return &MissionRecorder{db: db, ID: id}, nil
}

// MissionRecorder implements autopilot.Recorder for one mission.
type MissionRecorder struct {
	db *DB
	ID string
}

var _ autopilot.Recorder = (*MissionRecorder)(nil)

// RecordCycle appends one cycle row.
func (m *MissionRecorder) RecordCycle(ctx context.Context, r autopilot.Record) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO mission_cycles (
			mission_id, seq, ts_unix, elapsed_s, x, y, yaw, velocity,
			executed, next, command_type, throttle, brake, steer,
			nav_pixels, navigable_cells, percent_mapped, fidelity,
			samples_located, samples_collected
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, r.Seq, toUnix(r.Time), r.Elapsed.Seconds(), r.X, r.Y, r.Yaw, r.Velocity,
		r.Executed.String(), r.Next.String(), string(r.Command.Type),
		r.Command.Throttle, r.Command.Brake, r.Command.Steer,
		r.NavPixels, r.Stats.NavigableCells, r.Stats.PercentMapped, r.Stats.Fidelity,
		r.Stats.SamplesLocated, r.SamplesCollected,
	)
	if err != nil {
		return fmt.Errorf("insert cycle %d: %w", r.Seq, err)
	}
	return nil
}

// Finish closes the mission with s.
func (m *MissionRecorder) Finish(ctx context.Context, s Summary) error {
	return m.db.FinishMission(ctx, m.ID, s)
}

// FinishMission records the end of a mission.
func (db *DB) FinishMission(ctx context.Context, id string, s Summary) error {
	res, err := db.ExecContext(ctx,
		`UPDATE missions SET
			ended_unix = ?, samples_to_find = ?, samples_collected = ?,
			final_behavior = ?, percent_mapped = ?, fidelity = ?
		WHERE mission_id = ?`,
		toUnix(s.Ended), s.SamplesToFind, s.SamplesCollected,
		s.FinalBehavior.String(), s.Stats.PercentMapped, s.Stats.Fidelity, id,
	)
	if err != nil {
		return fmt.Errorf("finish mission %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish mission %s: %w", id, ErrNotFound)
	}
	logf("mission %s finished in %s with %d/%d samples", id, s.FinalBehavior, s.SamplesCollected, s.SamplesToFind)
	return nil
}

const missionColumns = `mission_id, started_unix, ended_unix, samples_to_find, samples_collected,
	final_behavior, percent_mapped, fidelity, config_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (Mission, error) {
	var (
		m        Mission
		started  float64
		ended    sql.NullFloat64
		behavior sql.NullString
		config   sql.NullString
	)
	err := row.Scan(&m.ID, &started, &ended, &m.SamplesToFind, &m.SamplesCollected,
		&behavior, &m.PercentMapped, &m.Fidelity, &config)
	if err != nil {
		return m, err
	}
	m.Started = fromUnix(started)
	if ended.Valid {
		t := fromUnix(ended.Float64)
		m.Ended = &t
	}
	m.FinalBehavior = behavior.String
	m.ConfigJSON = config.String
	return m, nil
}

// ListMissions returns every mission, newest first.
func (db *DB) ListMissions(ctx context.Context) ([]Mission, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+missionColumns+` FROM missions ORDER BY started_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	missions := []Mission{}
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

// GetMission returns ErrNotFound for an unknown id.
func (db *DB) GetMission(ctx context.Context, id string) (Mission, error) {
	m, err := scanMission(db.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE mission_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("mission %s: %w", id, ErrNotFound)
	}
	return m, err
}

// MissionCycles returns the recorded cycles of a mission in order. Times
// come back with sub-microsecond precision lost to the float column.
func (db *DB) MissionCycles(ctx context.Context, id string) ([]autopilot.Record, error) {
	if _, err := db.GetMission(ctx, id); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT seq, ts_unix, elapsed_s, x, y, yaw, velocity, executed, next,
			command_type, throttle, brake, steer, nav_pixels, navigable_cells,
			percent_mapped, fidelity, samples_located, samples_collected
		FROM mission_cycles WHERE mission_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []autopilot.Record{}
	for rows.Next() {
		var (
			r                       autopilot.Record
			ts, elapsed             float64
			executed, next, cmdType string
		)
		err := rows.Scan(&r.Seq, &ts, &elapsed, &r.X, &r.Y, &r.Yaw, &r.Velocity,
			&executed, &next, &cmdType, &r.Command.Throttle, &r.Command.Brake, &r.Command.Steer,
			&r.NavPixels, &r.Stats.NavigableCells, &r.Stats.PercentMapped, &r.Stats.Fidelity,
			&r.Stats.SamplesLocated, &r.SamplesCollected)
		if err != nil {
			return nil, err
		}
		r.Time = fromUnix(ts)
		r.Elapsed = time.Duration(math.Round(elapsed * float64(time.Second)))
		r.Command.Type = telemetry.CommandType(cmdType)
		if r.Executed, err = rover.ParseBehavior(executed); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", r.Seq, err)
		}
		if r.Next, err = rover.ParseBehavior(next); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", r.Seq, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
