// Package monitor renders mission charts: interactive go-echarts pages for
// the debug server and static gonum/plot reports for finished missions.
package monitor

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/rover.autopilot/internal/autopilot"
	"github.com/banshee-data/rover.autopilot/internal/perception"
	"github.com/banshee-data/rover.autopilot/internal/rover"
)

const (
	colorObstacle  = "#ff5252"
	colorSample    = "#ffd740"
	colorNavigable = "#40c4ff"
	colorHome      = "#69f0ae"
	colorTrail     = "#e0e0e0"
	colorKnown     = "#ffab40"

	// DefaultMaxPoints bounds the trail series so long missions stay
	// responsive in the browser.
	DefaultMaxPoints = 8000
)

// Point is a world position in cells.
type Point struct {
	X, Y float64
}

// WorldView is everything drawn on the world map chart.
type WorldView struct {
	World     *perception.WorldMap
	Home      Point
	Known     []rover.SamplePosition
	Trail     []autopilot.Record
	MaxPoints int
	Subtitle  string
}

// Dominant returns the channel that colours a cell. Any sample hit wins;
// otherwise the larger of obstacle and navigable, with ties to obstacle.
func Dominant(c perception.Cell) perception.Channel {
	switch {
	case c.Sample > 0:
		return perception.Sample
	case c.Obstacle >= c.Navigable:
		return perception.Obstacle
	default:
		return perception.Navigable
	}
}

// stride returns the step that keeps n items within limit.
func stride(n, limit int) int {
	if limit <= 0 {
		limit = DefaultMaxPoints
	}
	if n <= limit {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(limit)))
}

// WorldMapChart renders v as a square scatter of occupied cells with the
// home marker, known samples and the rover trail on top.
func WorldMapChart(w io.Writer, v WorldView) error {
	if v.World == nil {
		return fmt.Errorf("world map chart: nil world")
	}

	var obstacles, samples, navigable []opts.ScatterData
	v.World.Each(func(x, y int, c perception.Cell) {
		pt := opts.ScatterData{Value: []interface{}{x, y}}
		switch Dominant(c) {
		case perception.Sample:
			samples = append(samples, pt)
		case perception.Obstacle:
			obstacles = append(obstacles, pt)
		default:
			navigable = append(navigable, pt)
		}
	})

	step := stride(len(v.Trail), v.MaxPoints)
	trail := make([]opts.ScatterData, 0, len(v.Trail)/step+1)
	for i := 0; i < len(v.Trail); i += step {
		r := v.Trail[i]
		trail = append(trail, opts.ScatterData{Value: []interface{}{r.X, r.Y}})
	}

	known := make([]opts.ScatterData, 0, len(v.Known))
	for _, s := range v.Known {
		known = append(known, opts.ScatterData{Value: []interface{}{s.X, s.Y}})
	}

	size := float64(v.World.Size())
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Rover World Map", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "World Map", Subtitle: v.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: size, Name: "X (cells)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: size, Name: "Y (cells)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("navigable", navigable, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorNavigable}))
	scatter.AddSeries("obstacle", obstacles, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorObstacle}))
	scatter.AddSeries("sample", samples, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSample}))
	scatter.AddSeries("known samples", known, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorKnown}))
	scatter.AddSeries("trail", trail, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorTrail}))
	scatter.AddSeries("home", []opts.ScatterData{{Value: []interface{}{v.Home.X, v.Home.Y}}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorHome}))

	return scatter.Render(w)
}

// ProgressChart renders percent mapped and fidelity per cycle on the left
// axis and samples collected on the right.
func ProgressChart(w io.Writer, history []autopilot.Record, maxPoints int) error {
	step := stride(len(history), maxPoints)
	n := len(history)/step + 1
	xs := make([]string, 0, n)
	mapped := make([]opts.LineData, 0, n)
	fidelity := make([]opts.LineData, 0, n)
	collected := make([]opts.LineData, 0, n)
	for i := 0; i < len(history); i += step {
		r := history[i]
		xs = append(xs, fmt.Sprintf("%.1f", r.Elapsed.Seconds()))
		mapped = append(mapped, opts.LineData{Value: r.Stats.PercentMapped})
		fidelity = append(fidelity, opts.LineData{Value: r.Stats.Fidelity})
		collected = append(collected, opts.LineData{Value: r.SamplesCollected})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Mission Progress", Theme: "dark", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Mission Progress", Subtitle: fmt.Sprintf("cycles=%d stride=%d", len(history), step)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Elapsed (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", Min: 0, Max: 100}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "Samples", Min: 0})

	line.SetXAxis(xs).
		AddSeries("percent mapped", mapped).
		AddSeries("fidelity", fidelity).
		AddSeries("samples collected", collected, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))

	return line.Render(w)
}
