package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/rover.autopilot/internal/autopilot"
)

// ErrNoCycles is returned when a report is requested for a mission with no
// recorded cycles.
var ErrNoCycles = errors.New("mission has no recorded cycles")

var (
	trajectoryColor = color.RGBA{R: 33, G: 150, B: 243, A: 255}
	homeColor       = color.RGBA{R: 0, G: 200, B: 83, A: 255}
	mappedColor     = color.RGBA{R: 244, G: 67, B: 54, A: 255}
	fidelityColor   = color.RGBA{R: 63, G: 81, B: 181, A: 255}
	samplesColor    = color.RGBA{R: 255, G: 160, B: 0, A: 255}
)

// WriteMissionReport writes trajectory.png and progress.png into dir and
// returns their paths.
func WriteMissionReport(dir string, records []autopilot.Record, home Point) ([]string, error) {
	if len(records) == 0 {
		return nil, ErrNoCycles
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	traj, err := trajectoryPlot(records, home)
	if err != nil {
		return nil, err
	}
	progress, err := progressPlot(records)
	if err != nil {
		return nil, err
	}

	trajFile := filepath.Join(dir, "trajectory.png")
	if err := traj.Save(8*vg.Inch, 8*vg.Inch, trajFile); err != nil {
		return nil, fmt.Errorf("save trajectory plot: %w", err)
	}
	progressFile := filepath.Join(dir, "progress.png")
	if err := progress.Save(14*vg.Inch, 6*vg.Inch, progressFile); err != nil {
		return nil, fmt.Errorf("save progress plot: %w", err)
	}
	return []string{trajFile, progressFile}, nil
}

func trajectoryPlot(records []autopilot.Record, home Point) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Rover Trajectory"
	p.X.Label.Text = "X (cells)"
	p.Y.Label.Text = "Y (cells)"

	pts := make(plotter.XYs, len(records))
	for i, r := range records {
		pts[i] = plotter.XY{X: r.X, Y: r.Y}
	}
	path, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	path.Color = trajectoryColor
	path.Width = vg.Points(1)
	p.Add(path)
	p.Legend.Add("path", path)

	marker, err := plotter.NewScatter(plotter.XYs{{X: home.X, Y: home.Y}})
	if err != nil {
		return nil, err
	}
	marker.GlyphStyle.Color = homeColor
	marker.GlyphStyle.Radius = vg.Points(5)
	marker.GlyphStyle.Shape = draw.CrossGlyph{}
	p.Add(marker)
	p.Legend.Add("home", marker)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func progressPlot(records []autopilot.Record) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Mission Progress"
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "Percent / samples"

	mapped := make(plotter.XYs, len(records))
	fidelity := make(plotter.XYs, len(records))
	samples := make(plotter.XYs, len(records))
	for i, r := range records {
		t := r.Elapsed.Seconds()
		mapped[i] = plotter.XY{X: t, Y: r.Stats.PercentMapped}
		fidelity[i] = plotter.XY{X: t, Y: r.Stats.Fidelity}
		samples[i] = plotter.XY{X: t, Y: float64(r.SamplesCollected)}
	}

	series := []struct {
		name  string
		pts   plotter.XYs
		color color.Color
	}{
		{"percent mapped", mapped, mappedColor},
		{"fidelity", fidelity, fidelityColor},
		{"samples collected", samples, samplesColor},
	}
	for _, s := range series {
		l, err := plotter.NewLine(s.pts)
		if err != nil {
			return nil, err
		}
		l.Color = s.color
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(s.name, l)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}
