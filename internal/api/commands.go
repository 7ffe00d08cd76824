package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/desk"
	"github.com/banshee-data/desk.report/internal/httputil"
	"github.com/banshee-data/desk.report/internal/units"
)

// gotoRequest takes either height_cm or height in the display unit.
type gotoRequest struct {
	HeightCM *float64 `json:"height_cm"`
	Height   *float64 `json:"height"`
}

type presetRequest struct {
	Preset int `json:"preset"`
}

type moveRequest struct {
	Direction  string `json:"direction"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// submit queues c and writes 202 with the accepted command.
func (s *Server) submit(w http.ResponseWriter, c desk.Command) {
	if st := s.desk.Status(); st.State == desk.Uninitialized {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "desk is "+st.State.String())
		return
	}
	accepted, err := s.desk.Submit(c)
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusAccepted, accepted)
	case errors.Is(err, desk.ErrQueueFull), errors.Is(err, desk.ErrClosed):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, desk.ErrLineNotConfigured):
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
	default:
		httputil.BadRequest(w, err.Error())
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return false
	}
	return true
}

func (s *Server) gotoHeight(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req gotoRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var cm float64
	switch {
	case req.HeightCM != nil && req.Height != nil:
		httputil.BadRequest(w, "set height_cm or height, not both")
		return
	case req.HeightCM != nil:
		cm = *req.HeightCM
	case req.Height != nil:
		cm = units.Round(units.ConvertLength(units.ToMeters(*req.Height, s.displayUnit()), units.Centimeters), 1)
	default:
		httputil.BadRequest(w, "height_cm or height is required")
		return
	}
	s.submit(w, desk.Goto(cm))
}

func (s *Server) pressPreset(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req presetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if _, err := button.PresetLines(req.Preset); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.submit(w, desk.Preset(req.Preset))
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req moveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	dir, err := desk.ParseDirection(req.Direction)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.DurationMS < 0 {
		httputil.BadRequest(w, "duration_ms must not be negative")
		return
	}
	s.submit(w, desk.Move(dir, time.Duration(req.DurationMS)*time.Millisecond))
}

func (s *Server) pressMemory(w http.ResponseWriter, r *http.Request) {
	if requirePost(w, r) {
		s.submit(w, desk.Memory())
	}
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if requirePost(w, r) {
		s.submit(w, desk.Stop())
	}
}

func (s *Server) wake(w http.ResponseWriter, r *http.Request) {
	if requirePost(w, r) {
		s.submit(w, desk.Wake())
	}
}
