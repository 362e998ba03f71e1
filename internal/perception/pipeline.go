package perception

import (
	"errors"
	"fmt"
	"image"

	"github.com/banshee-data/rover.autopilot/internal/config"
	"github.com/banshee-data/rover.autopilot/internal/geometry"
	"github.com/banshee-data/rover.autopilot/internal/rover"
	"github.com/banshee-data/rover.autopilot/internal/vision"
)

// ErrFrameSize is returned when a camera frame does not match the
// calibrated image size.
var ErrFrameSize = errors.New("perception: frame size does not match calibration")

// Result summarises one Perceive call.
type Result struct {
	NavPixels      int
	ObstaclePixels int
	SamplePixels   int
	// Mapped counts the range-limited pixels added to the world map.
	Mapped int
}

// Pipeline owns the calibrated warp and the world map for one mission.
type Pipeline struct {
	cfg        config.PerceptionConfig
	warper     *vision.Warper
	thresholds vision.Thresholds
	world      *WorldMap
}

// NewPipeline calibrates the perspective transform from cfg. A degenerate
// calibration quad is an error.
func NewPipeline(cfg config.PerceptionConfig) (*Pipeline, error) {
	src := make([]vision.Point, len(cfg.SourceQuad))
	for i, p := range cfg.SourceQuad {
		src[i] = vision.Point{X: p.X, Y: p.Y}
	}
	dst := vision.CalibrationTarget(cfg.ImageWidth, cfg.ImageHeight, cfg.GridSize, cfg.BottomOffset)

	h, err := vision.NewHomography(src, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to calibrate perspective: %w", err)
	}
	warper, err := vision.NewWarper(h)
	if err != nil {
		return nil, fmt.Errorf("failed to invert perspective: %w", err)
	}

	return &Pipeline{
		cfg:    cfg,
		warper: warper,
		thresholds: vision.Thresholds{
			Navigable:  cfg.NavThreshold,
			SampleLow:  cfg.SampleLow,
			SampleHigh: cfg.SampleHigh,
		},
		world: NewWorldMap(cfg.WorldSize),
	}, nil
}

// World returns the accumulated world map.
func (p *Pipeline) World() *WorldMap { return p.world }

// Perceive classifies img, replaces the perception arrays in s and adds the
// range-limited classifications to the world map at the rover's pose.
func (p *Pipeline) Perceive(img image.Image, s *rover.State) (Result, error) {
	b := img.Bounds()
	if b.Dx() != p.cfg.ImageWidth || b.Dy() != p.cfg.ImageHeight {
		return Result{}, fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrFrameSize, b.Dx(), b.Dy(), p.cfg.ImageWidth, p.cfg.ImageHeight)
	}

	warped := p.warper.Warp(img)
	masks := vision.Classify(warped, p.thresholds)

	pose := geometry.Pose{X: s.X, Y: s.Y, Yaw: s.Yaw}
	var res Result
	var out rover.Perception

	navX, navY := geometry.PixelsToRoverFrame(masks.Navigable)
	out.NavDists, out.NavAngles = geometry.ToPolar(navX, navY)
	res.NavPixels = len(navX)
	res.Mapped += p.project(Navigable, navX, navY, out.NavDists, p.cfg.NavRange, pose)

	obsX, obsY := geometry.PixelsToRoverFrame(masks.Obstacle)
	out.ObsDists, out.ObsAngles = geometry.ToPolar(obsX, obsY)
	res.ObstaclePixels = len(obsX)
	res.Mapped += p.project(Obstacle, obsX, obsY, out.ObsDists, p.cfg.ObstacleRange, pose)

	smpX, smpY := geometry.PixelsToRoverFrame(masks.Sample)
	out.SampleDists, out.SampleAngles = geometry.ToPolar(smpX, smpY)
	res.SamplePixels = len(smpX)
	res.Mapped += p.project(Sample, smpX, smpY, out.SampleDists, p.cfg.SampleRange, pose)

	for _, a := range out.NavAngles {
		if a > 0 {
			out.NavAnglesLeft = append(out.NavAnglesLeft, a)
		}
	}

	s.Perception = out
	return res, nil
}

// project adds the points closer than maxRange to channel ch of the world map.
func (p *Pipeline) project(ch Channel, x, y, dist []float64, maxRange float64, pose geometry.Pose) int {
	var nx, ny []float64
	for i, d := range dist {
		if d < maxRange {
			nx = append(nx, x[i])
			ny = append(ny, y[i])
		}
	}
	if len(nx) == 0 {
		return 0
	}
	wx, wy := geometry.RoverToWorld(nx, ny, pose, p.cfg.WorldSize, p.cfg.WorldScale)
	p.world.Add(ch, wx, wy)
	return len(nx)
}
