// Package api serves the desk's JSON API and charts.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/desk.report/internal/config"
	"github.com/banshee-data/desk.report/internal/db"
	"github.com/banshee-data/desk.report/internal/desk"
	"github.com/banshee-data/desk.report/internal/monitoring"
	"github.com/banshee-data/desk.report/internal/timeutil"
	"github.com/banshee-data/desk.report/internal/units"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Controller is the part of desk.Desk the API drives.
type Controller interface {
	Submit(c desk.Command) (desk.Command, error)
	Status() desk.Status
}

// Store is the read side of the database.
type Store interface {
	LatestHeight(ctx context.Context) (db.Reading, error)
	Readings(ctx context.Context, limit int) ([]db.Reading, error)
	ReadingsSince(ctx context.Context, since time.Time) ([]db.Reading, error)
	Stats(ctx context.Context, window time.Duration) (db.HeightStats, error)
	ButtonEvents(ctx context.Context, limit int) ([]db.ButtonEvent, error)
	Commands(ctx context.Context, limit int) ([]db.CommandRecord, error)
}

type Server struct {
	desk  Controller
	store Store
	cfg   *config.Config
	clock timeutil.Clock
}

func NewServer(d Controller, store Store, cfg *config.Config) *Server {
	return &Server{
		desk:  d,
		store: store,
		cfg:   cfg,
		clock: timeutil.RealClock{},
	}
}

// Heights are stored in meters and converted to height.unit_of_measurement
// on the way out.
func (s *Server) displayUnit() string { return s.cfg.Height.GetUnitOfMeasurement() }

func (s *Server) convertHeight(meters float64) float64 {
	return units.Round(units.ConvertLength(meters, s.displayUnit()), s.cfg.Height.GetAccuracyDecimals())
}

// readingAPI adds the converted height to a stored reading.
type readingAPI struct {
	db.Reading
	Height float64 `json:"height"`
	Unit   string  `json:"unit"`
}

func (s *Server) convertReading(r db.Reading) readingAPI {
	return readingAPI{Reading: r, Height: s.convertHeight(r.Meters), Unit: s.displayUnit()}
}

// statsAPI is HeightStats with every height field in the display unit.
type statsAPI struct {
	db.HeightStats
	Unit string `json:"unit"`
}

func (s *Server) convertStats(st db.HeightStats) statsAPI {
	st.Mean = s.convertHeight(st.Mean)
	st.StdDev = s.convertHeight(st.StdDev)
	st.Min = s.convertHeight(st.Min)
	st.Max = s.convertHeight(st.Max)
	st.Median = s.convertHeight(st.Median)
	st.P95 = s.convertHeight(st.P95)
	return statsAPI{HeightStats: st, Unit: s.displayUnit()}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/height", s.showHeight)
	mux.HandleFunc("/api/readings", s.listReadings)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/buttons", s.listButtonEvents)
	mux.HandleFunc("/api/commands", s.listCommands)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)

	mux.HandleFunc("/api/desk/goto", s.gotoHeight)
	mux.HandleFunc("/api/desk/preset", s.pressPreset)
	mux.HandleFunc("/api/desk/memory", s.pressMemory)
	mux.HandleFunc("/api/desk/move", s.move)
	mux.HandleFunc("/api/desk/stop", s.stop)
	mux.HandleFunc("/api/desk/wake", s.wake)

	mux.HandleFunc("/api/charts/height", s.heightChart)
	mux.HandleFunc("/api/charts/height.png", s.heightPlot)
	return mux
}
