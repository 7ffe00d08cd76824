package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/desk.report/internal/db"
	"github.com/banshee-data/desk.report/internal/httputil"
)

// Query defaults.
const (
	DefaultLimit       = 100
	DefaultStatsWindow = time.Hour
	MaxStatsWindow     = 31 * 24 * time.Hour
)

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > db.DefaultQueryLimit {
		return 0, fmt.Errorf("invalid 'limit' parameter: expected 1..%d", db.DefaultQueryLimit)
	}
	return n, nil
}

func parseWindow(r *http.Request) (time.Duration, error) {
	v := r.URL.Query().Get("window")
	if v == "" {
		return DefaultStatsWindow, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 || d > MaxStatsWindow {
		return 0, fmt.Errorf("invalid 'window' parameter: expected a duration up to %s", MaxStatsWindow)
	}
	return d, nil
}

func (s *Server) showHeight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	reading, err := s.store.LatestHeight(r.Context())
	if errors.Is(err, db.ErrNoReadings) {
		httputil.NotFound(w, "no height reading yet")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve height: %v", err))
		return
	}
	httputil.WriteJSONOK(w, s.convertReading(reading))
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	readings, err := s.store.Readings(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}
	out := make([]readingAPI, len(readings))
	for i, rd := range readings {
		out[i] = s.convertReading(rd)
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	stats, err := s.store.Stats(r.Context(), window)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to compute stats: %v", err))
		return
	}
	httputil.WriteJSONOK(w, s.convertStats(stats))
}

func (s *Server) listButtonEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	events, err := s.store.ButtonEvents(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve button events: %v", err))
		return
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	records, err := s.store.Commands(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve commands: %v", err))
		return
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.desk.Status())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}
