package api

import (
	"fmt"
	"net/http"

	"github.com/banshee-data/scopecam/internal/httputil"
	"github.com/banshee-data/scopecam/internal/scope"
)

type moveResponse struct {
	Action string      `json:"action"`
	Delta  int         `json:"delta,omitempty"`
	State  scope.State `json:"state"`
}

// jogArgs reads direction=forward|backward and size=big|small.
func jogArgs(vals map[string]string) (scope.Direction, scope.StepSize, error) {
	dir := scope.Forward
	switch vals["direction"] {
	case "", "forward", "+":
	case "backward", "-":
		dir = scope.Backward
	default:
		return 0, 0, fmt.Errorf("invalid direction %q: want forward or backward", vals["direction"])
	}
	size := scope.Small
	switch vals["size"] {
	case "", "small":
	case "big":
		size = scope.Big
	default:
		return 0, 0, fmt.Errorf("invalid size %q: want big or small", vals["size"])
	}
	return dir, size, nil
}

func (s *Server) requireScope(w http.ResponseWriter) bool {
	if s.scope == nil {
		writeError(w, errNoScope)
		return false
	}
	return true
}

func (s *Server) handleLens(w http.ResponseWriter, r *http.Request) {
	if !s.requireScope(w) {
		return
	}
	vals, err := httputil.FormValues(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	delta, hasDelta, err := httputil.IntValue(vals, "delta")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	action := vals["action"]
	if hasDelta {
		action = "move"
	}
	resp := moveResponse{Action: action}
	switch action {
	case "move":
		err = s.scope.MoveLens(delta)
		resp.Delta = delta
	case "all-in":
		err = s.scope.LensAllIn()
	case "all-out":
		err = s.scope.LensAllOut()
	case "step-in":
		err = s.scope.LensStepIn()
	case "step-out":
		err = s.scope.LensStepOut()
	case "jog":
		dir, size, aerr := jogArgs(vals)
		if aerr != nil {
			httputil.BadRequest(w, aerr.Error())
			return
		}
		resp.Delta, err = s.scope.JogLens(dir, size)
	case "":
		httputil.BadRequest(w, "missing delta or action")
		return
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown lens action %q", action))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	resp.State = s.scope.State()
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	if !s.requireScope(w) {
		return
	}
	pos, err := s.scope.QueryFocus()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"position": pos})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	if !s.requireScope(w) {
		return
	}
	lim, err := s.scope.FindLimits(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.mu.Lock()
	s.limits = &lim
	s.mu.Unlock()
	if s.cat != nil {
		if err := s.cat.RecordLensLimits(r.Context(), lim, s.clock.Now()); err != nil {
			logf("record lens limits: %v", err)
		}
	}
	httputil.WriteJSONOK(w, lim)
}

type laserResponse struct {
	Power int  `json:"power"`
	On    bool `json:"on"`
}

func (s *Server) handleGetLaser(w http.ResponseWriter, r *http.Request) {
	if !s.requireScope(w) {
		return
	}
	power, err := s.scope.QueryLaserPower()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, laserResponse{Power: power, On: s.scope.State().LaserOn})
}

func (s *Server) handleLaser(w http.ResponseWriter, r *http.Request) {
	if !s.requireScope(w) {
		return
	}
	vals, err := httputil.FormValues(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	power, hasPower, err := httputil.IntValue(vals, "power")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if hasPower {
		_, err = s.scope.SetLaserPower(power)
	} else {
		switch vals["action"] {
		case "on":
			err = s.scope.LaserOn()
		case "off":
			err = s.scope.LaserOff()
		case "up":
			err = s.scope.LaserUp()
		case "down":
			err = s.scope.LaserDown()
		case "":
			httputil.BadRequest(w, "missing power or action")
			return
		default:
			httputil.BadRequest(w, fmt.Sprintf("unknown laser action %q", vals["action"]))
			return
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	st := s.scope.State()
	httputil.WriteJSONOK(w, laserResponse{Power: st.LaserPower, On: st.LaserOn})
}

func (s *Server) handleMotor(w http.ResponseWriter, r *http.Request) {
	if !s.requireScope(w) {
		return
	}
	vals, err := httputil.FormValues(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	steps, hasSteps, err := httputil.IntValue(vals, "steps")
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	resp := moveResponse{Action: "spin"}
	switch {
	case hasSteps:
		resp.Delta = steps
		err = s.scope.SpinMotor(steps)
	case vals["action"] == "jog":
		dir, size, aerr := jogArgs(vals)
		if aerr != nil {
			httputil.BadRequest(w, aerr.Error())
			return
		}
		resp.Action = "jog"
		resp.Delta, err = s.scope.JogMotor(dir, size)
	default:
		httputil.BadRequest(w, "missing steps or action=jog")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	resp.State = s.scope.State()
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	if !s.requireScope(w) {
		return
	}
	if err := s.scope.Demo(); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}
