package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/scopecam/internal/acquisition"
	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/framestats"
	"github.com/banshee-data/scopecam/internal/httputil"
	"github.com/banshee-data/scopecam/internal/scope"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Acquisition acquisition.Status `json:"acquisition"`
		Scope       *scope.State       `json:"scope,omitempty"`
		LensLimits  *scope.Limits      `json:"lens_limits,omitempty"`
	}{Acquisition: s.acq.Status()}
	if s.scope != nil {
		st := s.scope.State()
		resp.Scope = &st
	}
	s.mu.Lock()
	resp.LensLimits = s.limits
	s.mu.Unlock()
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if err := s.acq.StartLive(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.acq.Status())
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	sess, err := s.acq.StartRecord(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"id": sess.ID(), "path": sess.Path()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sum, err := s.acq.Stop(r.Context())
	if err != nil && sum == nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"recording": sum}
	if err != nil {
		// The stream stopped but the recording did not finish cleanly.
		resp["error"] = err.Error()
	}
	httputil.WriteJSONOK(w, resp)
}

type snapResponse struct {
	Seq      uint64           `json:"seq"`
	Captured time.Time        `json:"captured"`
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Path     string           `json:"path,omitempty"`
	Stats    framestats.Stats `json:"stats"`
}

func (s *Server) handleSnap(w http.ResponseWriter, r *http.Request) {
	vals, err := httputil.FormValues(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	save, err := httputil.BoolValue(vals, "save", true)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := s.acq.Snap(r.Context(), save)
	if err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	f := res.Frame
	s.lastSnap = &f
	s.mu.Unlock()

	width, height := res.Frame.Size()
	httputil.WriteJSONOK(w, snapResponse{
		Seq:      res.Frame.Seq,
		Captured: res.Frame.Captured,
		Width:    width,
		Height:   height,
		Path:     res.Path,
		Stats:    framestats.Compute(res.Frame.Image),
	})
}

type paramsResponse struct {
	Parameters camera.Parameters `json:"parameters"`
	Limits     camera.Limits     `json:"limits"`
	Streaming  bool              `json:"streaming"`
	Warnings   []paramWarning    `json:"warnings,omitempty"`
}

type paramWarning struct {
	Field    string `json:"field"`
	Input    string `json:"input"`
	Applied  any    `json:"applied"`
	Reverted bool   `json:"reverted"`
	Message  string `json:"message"`
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	p, l := s.acq.Parameters()
	httputil.WriteJSONOK(w, paramsResponse{Parameters: p, Limits: l, Streaming: s.acq.Streaming()})
}

// paramFields is the order operator inputs are applied in.
var paramFields = []string{
	camera.FieldAutoExposure,
	camera.FieldAutoGain,
	camera.FieldExposure,
	camera.FieldGain,
	camera.FieldBinning,
	camera.FieldCropROI,
	camera.FieldMedianFilterSize,
}

func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	vals, err := httputil.FormValues(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	known := map[string]bool{}
	for _, f := range paramFields {
		known[f] = true
	}
	for k := range vals {
		if !known[k] {
			httputil.BadRequest(w, camera.ErrUnknownParameter.Error()+": "+k)
			return
		}
	}

	var warnings []paramWarning
	for _, field := range paramFields {
		text, ok := vals[field]
		if !ok {
			continue
		}
		_, err := s.acq.ApplyInput(field, text)
		var verr *camera.ValidationError
		switch {
		case errors.As(err, &verr):
			warnings = append(warnings, paramWarning{
				Field:    verr.Field,
				Input:    verr.Input,
				Applied:  verr.Applied,
				Reverted: verr.Reverted,
				Message:  verr.Error(),
			})
		case err != nil:
			writeError(w, err)
			return
		}
	}

	p, l := s.acq.Parameters()
	httputil.WriteJSONOK(w, paramsResponse{Parameters: p, Limits: l, Streaming: s.acq.Streaming(), Warnings: warnings})
}
