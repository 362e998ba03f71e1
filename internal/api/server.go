// Package api serves the autopilot over HTTP: a telemetry endpoint that
// returns the next command, status and mission history, and the monitoring
// charts.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/rover.autopilot/internal/autopilot"
	"github.com/banshee-data/rover.autopilot/internal/db"
	"github.com/banshee-data/rover.autopilot/internal/httputil"
	"github.com/banshee-data/rover.autopilot/internal/monitor"
	"github.com/banshee-data/rover.autopilot/internal/monitoring"
	"github.com/banshee-data/rover.autopilot/internal/perception"
	"github.com/banshee-data/rover.autopilot/internal/rover"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
)

// maxTelemetryBytes bounds a single telemetry body; camera frames are
// base64 inside the JSON.
const maxTelemetryBytes = 4 << 20

var logf = monitoring.Component("api")

// Pilot is the part of the autopilot the server drives.
type Pilot interface {
	Cycle(ctx context.Context, msg []byte) (telemetry.Command, error)
	Status() autopilot.Status
	WorldMap() *perception.WorldMap
	History() []autopilot.Record
	KnownSamples() []rover.SamplePosition
	Home() (x, y float64)
}

// MissionStore is the read side of the mission log.
type MissionStore interface {
	ListMissions(ctx context.Context) ([]db.Mission, error)
	MissionCycles(ctx context.Context, id string) ([]autopilot.Record, error)
}

type Server struct {
	pilot    Pilot
	missions MissionStore
}

// NewServer returns a server for pilot. missions may be nil, in which case
// the mission endpoints answer 503.
func NewServer(pilot Pilot, missions MissionStore) *Server {
	return &Server{pilot: pilot, missions: missions}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/telemetry", s.handleTelemetry)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/missions", s.handleMissions)
	mux.HandleFunc("/api/missions/", s.handleMissionByID)
	mux.HandleFunc("/charts/worldmap", s.handleWorldMapChart)
	mux.HandleFunc("/charts/progress", s.handleProgressChart)
	return mux
}

// commandResponse carries the command even when the telemetry was
// rejected, so a client always has something safe to forward.
type commandResponse struct {
	Command telemetry.Command `json:"command"`
	Error   string            `json:"error,omitempty"`
}

// handleTelemetry handles POST /api/telemetry
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTelemetryBytes))
	if err != nil {
		httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, commandResponse{
			Command: telemetry.SafeStop(),
			Error:   "telemetry too large",
		})
		return
	}
	cmd, err := s.pilot.Cycle(r.Context(), bytes.TrimSpace(body))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, telemetry.ErrMalformed) || errors.Is(err, perception.ErrFrameSize) {
			status = http.StatusBadRequest
		}
		httputil.WriteJSON(w, status, commandResponse{Command: cmd, Error: err.Error()})
		return
	}
	httputil.WriteJSONOK(w, commandResponse{Command: cmd})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.pilot.Status())
}

// handleMissions handles GET /api/missions
func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.missions == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "mission log disabled")
		return
	}
	missions, err := s.missions.ListMissions(r.Context())
	if err != nil {
		logf("error listing missions: %v", err)
		httputil.InternalServerError(w, "failed to list missions")
		return
	}
	httputil.WriteJSONOK(w, missions)
}

// handleMissionByID handles GET /api/missions/:id/cycles
func (s *Server) handleMissionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	pathParts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/missions/"), "/"), "/")
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] != "cycles" {
		httputil.NotFound(w, "not found")
		return
	}
	if s.missions == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "mission log disabled")
		return
	}
	id := pathParts[0]
	cycles, err := s.missions.MissionCycles(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("mission %s not found", id))
		return
	}
	if err != nil {
		logf("error fetching cycles for mission %s: %v", id, err)
		httputil.InternalServerError(w, "failed to fetch mission cycles")
		return
	}
	httputil.WriteJSONOK(w, cycles)
}

// maxPoints reads the optional max_points query parameter.
func maxPoints(r *http.Request) int {
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			return v
		}
	}
	return monitor.DefaultMaxPoints
}

// handleWorldMapChart renders the live world map. With ?mission=<id> the
// trail comes from the mission log instead of the in-memory history.
func (s *Server) handleWorldMapChart(w http.ResponseWriter, r *http.Request) {
	trail, ok := s.trail(w, r)
	if !ok {
		return
	}
	st := s.pilot.Status()
	hx, hy := s.pilot.Home()
	view := monitor.WorldView{
		World:     s.pilot.WorldMap(),
		Home:      monitor.Point{X: hx, Y: hy},
		Known:     s.pilot.KnownSamples(),
		Trail:     trail,
		MaxPoints: maxPoints(r),
		Subtitle: fmt.Sprintf("behavior=%s mapped=%.1f%% fidelity=%.1f%% samples=%d/%d",
			st.Behavior, st.Map.PercentMapped, st.Map.Fidelity, st.SamplesCollected, st.SamplesToFind),
	}
	s.renderChart(w, func(out io.Writer) error { return monitor.WorldMapChart(out, view) })
}

// handleProgressChart renders percent mapped and samples collected.
func (s *Server) handleProgressChart(w http.ResponseWriter, r *http.Request) {
	trail, ok := s.trail(w, r)
	if !ok {
		return
	}
	limit := maxPoints(r)
	s.renderChart(w, func(out io.Writer) error { return monitor.ProgressChart(out, trail, limit) })
}

func (s *Server) trail(w http.ResponseWriter, r *http.Request) ([]autopilot.Record, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil, false
	}
	id := r.URL.Query().Get("mission")
	if id == "" {
		return s.pilot.History(), true
	}
	if s.missions == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "mission log disabled")
		return nil, false
	}
	cycles, err := s.missions.MissionCycles(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("mission %s not found", id))
		return nil, false
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to fetch mission cycles")
		return nil, false
	}
	return cycles, true
}

func (s *Server) renderChart(w http.ResponseWriter, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
