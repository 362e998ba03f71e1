package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical rover defaults file.
const DefaultConfigPath = "config/rover.defaults.json"

// Point is a pixel coordinate in the camera frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RGB is a per-channel threshold triple.
type RGB [3]uint8

// HSV is a hue/saturation/value triple in the OpenCV byte convention
// (hue 0-180, saturation and value 0-255).
type HSV [3]uint8

// RoverConfig is the root configuration for the autopilot. The JSON schema
// mirrors the section layout below; any key omitted from a file keeps the
// value from DefaultRoverConfig.
type RoverConfig struct {
	Perception PerceptionConfig `json:"perception"`
	Events     EventConfig      `json:"events"`
	Behaviors  BehaviorConfig   `json:"behaviors"`
	Stuck      StuckConfig      `json:"stuck"`
	Mission    MissionConfig    `json:"mission"`
}

// PerceptionConfig covers calibration, classification and world projection.
type PerceptionConfig struct {
	ImageWidth  int `json:"image_width"`
	ImageHeight int `json:"image_height"`

	// SourceQuad is the calibration grid square as seen by the camera:
	// bottom-left, bottom-right, top-right, top-left.
	SourceQuad   []Point `json:"source_quad"`
	GridSize     float64 `json:"grid_size"`
	BottomOffset float64 `json:"bottom_offset"`

	NavThreshold RGB `json:"nav_threshold"`
	SampleLow    HSV `json:"sample_low"`
	SampleHigh   HSV `json:"sample_high"`

	NavRange      float64 `json:"nav_range"`
	ObstacleRange float64 `json:"obstacle_range"`
	SampleRange   float64 `json:"sample_range"`

	WorldSize  int     `json:"world_size"`
	WorldScale float64 `json:"world_scale"`

	// SampleLocateRadius is the cell radius within which a sample detection
	// counts as locating a known sample.
	SampleLocateRadius int `json:"sample_locate_radius"`
}

// EventConfig holds the thresholds used by the decision predicates.
type EventConfig struct {
	FrontClearPixels    int     `json:"front_clear_pixels"`
	LeftClearPixels     int     `json:"left_clear_pixels"`
	FrontObstaclePixels int     `json:"front_obstacle_pixels"`
	LeftObstaclePixels  int     `json:"left_obstacle_pixels"`
	NavHeadingTolerance float64 `json:"nav_heading_tolerance"`
	AlongWallPixels     int     `json:"along_wall_pixels"`
	AlongWallOffset     float64 `json:"along_wall_offset"`
	DeviatedWallAngle   float64 `json:"deviated_wall_angle"`
	SampleRightAngle    float64 `json:"sample_right_angle"`
	SampleCloseDistance float64 `json:"sample_close_distance"`
	SampleHeadingTol    float64 `json:"sample_heading_tolerance"`
	PickupMaxVelocity   float64 `json:"pickup_max_velocity"`
	HomeReachedDistance float64 `json:"home_reached_distance"`
	MaxVelocity         float64 `json:"max_velocity"`
}

// BehaviorConfig holds the actuation constants shared by the driving states.
type BehaviorConfig struct {
	YawLeft  float64 `json:"yaw_left"`
	YawRight float64 `json:"yaw_right"`
	Brake    float64 `json:"brake"`

	FindWallMinYaw float64 `json:"find_wall_min_yaw"`
	FindWallMaxYaw float64 `json:"find_wall_max_yaw"`

	FollowWallMaxVelocity float64 `json:"follow_wall_max_velocity"`
	FollowWallThrottle    float64 `json:"follow_wall_throttle"`
	WallAngleOffset       float64 `json:"wall_angle_offset"`

	TurnMinVelocity  float64 `json:"turn_min_velocity"`
	ReverseThrottle  float64 `json:"reverse_throttle"`
	TurnInPlaceAngle float64 `json:"turn_in_place_angle"`

	SampleThrottle       float64 `json:"sample_throttle"`
	SampleApproachVel    float64 `json:"sample_approach_velocity"`
	SampleHeadingBias    float64 `json:"sample_heading_bias"`
	UnstuckThrottle      float64 `json:"unstuck_throttle"`
	UnstuckYawSweep      float64 `json:"unstuck_yaw_sweep"`
	UnstuckExitVelocity  float64 `json:"unstuck_exit_velocity"`
	HomeMaxVelocity      float64 `json:"home_max_velocity"`
	HomeSlowVelocity     float64 `json:"home_slow_velocity"`
	HomeParkVelocity     float64 `json:"home_park_velocity"`
	HomeThrottle         float64 `json:"home_throttle"`
	HomeSlowThrottle     float64 `json:"home_slow_throttle"`
	HomeParkThrottle     float64 `json:"home_park_throttle"`
	HomeWeight           float64 `json:"home_weight"`
	HomeFarDistance      float64 `json:"home_far_distance"`
	HomeMidDistance      float64 `json:"home_mid_distance"`
	HomeNearDistance     float64 `json:"home_near_distance"`
	ParkHeadingTolerance float64 `json:"park_heading_tolerance"`
}

// StuckConfig holds the stuck timer thresholds as duration strings.
type StuckConfig struct {
	StoppedVelocity float64 `json:"stopped_velocity"`
	FollowWall      string  `json:"follow_wall"`
	GoToSample      string  `json:"go_to_sample"`
	GetUnstuck      string  `json:"get_unstuck"`
	ReturnHome      string  `json:"return_home"`
}

// MissionConfig holds mission-wide constants.
type MissionConfig struct {
	HomeX            float64 `json:"home_x"`
	HomeY            float64 `json:"home_y"`
	ReferenceMapPath string  `json:"reference_map"`
	SampleGoal       int     `json:"sample_goal"`
	MappedGoal       float64 `json:"mapped_goal"`
	TimeLimit        string  `json:"time_limit"`
}

// DefaultRoverConfig returns the calibrated defaults for the simulator rover.
func DefaultRoverConfig() *RoverConfig {
	return &RoverConfig{
		Perception: PerceptionConfig{
			ImageWidth:  320,
			ImageHeight: 160,
			SourceQuad: []Point{
				{X: 14, Y: 140}, {X: 301, Y: 140}, {X: 200, Y: 96}, {X: 118, Y: 96},
			},
			GridSize:           10,
			BottomOffset:       6,
			NavThreshold:       RGB{160, 160, 160},
			SampleLow:          HSV{75, 130, 130},
			SampleHigh:         HSV{255, 255, 255},
			NavRange:           60,
			ObstacleRange:      80,
			SampleRange:        70,
			WorldSize:          200,
			WorldScale:         10,
			SampleLocateRadius: 3,
		},
		Events: EventConfig{
			FrontClearPixels:    500,
			LeftClearPixels:     1500,
			FrontObstaclePixels: 600,
			LeftObstaclePixels:  50,
			NavHeadingTolerance: 17,
			AlongWallPixels:     500,
			AlongWallOffset:     -10,
			DeviatedWallAngle:   25,
			SampleRightAngle:    -17,
			SampleCloseDistance: 75,
			SampleHeadingTol:    17,
			PickupMaxVelocity:   0.1,
			HomeReachedDistance: 5,
			MaxVelocity:         2.0,
		},
		Behaviors: BehaviorConfig{
			YawLeft:               15,
			YawRight:              -15,
			Brake:                 10,
			FindWallMinYaw:        45,
			FindWallMaxYaw:        65,
			FollowWallMaxVelocity: 2.0,
			FollowWallThrottle:    0.8,
			WallAngleOffset:       -9.9,
			TurnMinVelocity:       0.2,
			ReverseThrottle:       -1.0,
			TurnInPlaceAngle:      23,
			SampleThrottle:        0.39,
			SampleApproachVel:     1.0,
			SampleHeadingBias:     -3,
			UnstuckThrottle:       1.0,
			UnstuckYawSweep:       35,
			UnstuckExitVelocity:   1.0,
			HomeMaxVelocity:       2.0,
			HomeSlowVelocity:      1.0,
			HomeParkVelocity:      0.5,
			HomeThrottle:          0.8,
			HomeSlowThrottle:      0.2,
			HomeParkThrottle:      0.3,
			HomeWeight:            0.3,
			HomeFarDistance:       450,
			HomeMidDistance:       200,
			HomeNearDistance:      100,
			ParkHeadingTolerance:  10,
		},
		Stuck: StuckConfig{
			StoppedVelocity: 0.1,
			FollowWall:      "2s",
			GoToSample:      "2.5s",
			GetUnstuck:      "2s",
			ReturnHome:      "2s",
		},
		Mission: MissionConfig{
			HomeX:            99.7,
			HomeY:            85.6,
			ReferenceMapPath: "calibration/map_bw.png",
			SampleGoal:       6,
			MappedGoal:       95,
			TimeLimit:        "700s",
		},
	}
}

// LoadRoverConfig loads a RoverConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadRoverConfig(path string) (*RoverConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultRoverConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *RoverConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadRoverConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *RoverConfig) Validate() error {
	p := c.Perception
	if p.ImageWidth <= 0 || p.ImageHeight <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", p.ImageWidth, p.ImageHeight)
	}
	if len(p.SourceQuad) != 4 {
		return fmt.Errorf("source_quad must have 4 points, got %d", len(p.SourceQuad))
	}
	if p.GridSize <= 0 {
		return fmt.Errorf("grid_size must be positive, got %f", p.GridSize)
	}
	if p.WorldSize <= 0 || p.WorldScale <= 0 {
		return fmt.Errorf("world_size and world_scale must be positive, got %d and %f", p.WorldSize, p.WorldScale)
	}
	for i := range p.SampleLow {
		if p.SampleLow[i] > p.SampleHigh[i] {
			return fmt.Errorf("sample_low[%d]=%d exceeds sample_high[%d]=%d", i, p.SampleLow[i], i, p.SampleHigh[i])
		}
	}
	if p.NavRange <= 0 || p.ObstacleRange <= 0 || p.SampleRange <= 0 {
		return fmt.Errorf("perception ranges must be positive")
	}

	if c.Stuck.StoppedVelocity <= 0 {
		return fmt.Errorf("stuck.stopped_velocity must be positive, got %f", c.Stuck.StoppedVelocity)
	}
	durations := map[string]string{
		"stuck.follow_wall":  c.Stuck.FollowWall,
		"stuck.go_to_sample": c.Stuck.GoToSample,
		"stuck.get_unstuck":  c.Stuck.GetUnstuck,
		"stuck.return_home":  c.Stuck.ReturnHome,
		"mission.time_limit": c.Mission.TimeLimit,
	}
	for name, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, v)
		}
	}

	m := c.Mission
	if m.HomeX < 0 || m.HomeY < 0 || m.HomeX >= float64(p.WorldSize) || m.HomeY >= float64(p.WorldSize) {
		return fmt.Errorf("home (%.1f, %.1f) lies outside the %d cell world", m.HomeX, m.HomeY, p.WorldSize)
	}
	if m.ReferenceMapPath == "" {
		return fmt.Errorf("mission.reference_map must be set")
	}
	if m.SampleGoal < 0 {
		return fmt.Errorf("mission.sample_goal must not be negative, got %d", m.SampleGoal)
	}
	return nil
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetFollowWallStuck returns the FollowWall stuck threshold.
func (c *StuckConfig) GetFollowWallStuck() time.Duration {
	return mustDuration(c.FollowWall, 2*time.Second)
}

// GetGoToSampleStuck returns the GoToSample stuck threshold.
func (c *StuckConfig) GetGoToSampleStuck() time.Duration {
	return mustDuration(c.GoToSample, 2500*time.Millisecond)
}

// GetGetUnstuckStuck returns how long GetUnstuck may run before giving up.
func (c *StuckConfig) GetGetUnstuckStuck() time.Duration {
	return mustDuration(c.GetUnstuck, 2*time.Second)
}

// GetReturnHomeStuck returns the ReturnHome stuck threshold.
func (c *StuckConfig) GetReturnHomeStuck() time.Duration {
	return mustDuration(c.ReturnHome, 2*time.Second)
}

// GetTimeLimit returns the mission time limit after which the rover heads home.
func (c *MissionConfig) GetTimeLimit() time.Duration {
	return mustDuration(c.TimeLimit, 700*time.Second)
}
