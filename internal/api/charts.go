package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/desk.report/internal/db"
	"github.com/banshee-data/desk.report/internal/httputil"
)

// PNG size for /api/charts/height.png.
const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 4 * vg.Inch
)

func (s *Server) chartReadings(w http.ResponseWriter, r *http.Request) ([]db.Reading, time.Duration, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return nil, 0, false
	}
	window, err := parseWindow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return nil, 0, false
	}
	readings, err := s.store.ReadingsSince(r.Context(), s.clock.Now().Add(-window))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve readings: %v", err))
		return nil, 0, false
	}
	return readings, window, true
}

// heightChart renders the height history as an interactive go-echarts page.
func (s *Server) heightChart(w http.ResponseWriter, r *http.Request) {
	readings, window, ok := s.chartReadings(w, r)
	if !ok {
		return
	}

	x := make([]string, len(readings))
	y := make([]opts.LineData, len(readings))
	for i, rd := range readings {
		x[i] = rd.Time.Local().Format("15:04:05")
		y[i] = opts.LineData{Value: s.convertHeight(rd.Meters)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Desk Height", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Desk Height", Subtitle: fmt.Sprintf("%s, %d readings", s.cfg.GetID(), len(readings))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: fmt.Sprintf("Height (%s)", s.displayUnit()),
			Min:  s.convertHeight(s.cfg.Height.GetMin()),
			Max:  s.convertHeight(s.cfg.Height.GetMax()),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	line.SetXAxis(x).AddSeries(fmt.Sprintf("last %s", window), y,
		charts.WithLineChartOpts(opts.LineChart{Step: "end"}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// heightPlot renders the same history as a static PNG with gonum/plot.
func (s *Server) heightPlot(w http.ResponseWriter, r *http.Request) {
	readings, window, ok := s.chartReadings(w, r)
	if !ok {
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Desk height, last %s", window)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = fmt.Sprintf("Height (%s)", s.displayUnit())
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04"}
	now := s.clock.Now()
	p.X.Min = float64(now.Add(-window).Unix())
	p.X.Max = float64(now.Unix())
	p.Y.Min = s.convertHeight(s.cfg.Height.GetMin())
	p.Y.Max = s.convertHeight(s.cfg.Height.GetMax())
	p.Add(plotter.NewGrid())

	if len(readings) > 0 {
		pts := make(plotter.XYs, 0, len(readings)+1)
		for _, rd := range readings {
			pts = append(pts, plotter.XY{X: float64(rd.Time.Unix()), Y: s.convertHeight(rd.Meters)})
		}
		// Hold the last value to now so the step reaches the right edge.
		last := readings[len(readings)-1]
		pts = append(pts, plotter.XY{X: float64(now.Unix()), Y: s.convertHeight(last.Meters)})

		line, err := plotter.NewLine(pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
			return
		}
		line.StepStyle = plotter.PostStep
		line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		line.Width = vg.Points(1.5)
		p.Add(line)
	}

	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("plot error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
