package api

import (
	"net/http"
	"strconv"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/db"
	"github.com/banshee-data/scopecam/internal/framestats"
	"github.com/banshee-data/scopecam/internal/httputil"
)

const (
	defaultHistogramBins = 64
	maxHistogramBins     = 256
)

// latestFrame prefers whichever of the pipeline's last frame and the last
// snap is newer.
func (s *Server) latestFrame() (camera.Frame, bool) {
	s.mu.Lock()
	snap := s.lastSnap
	s.mu.Unlock()

	var (
		f  camera.Frame
		ok bool
	)
	if s.frames != nil {
		f, ok = s.frames.LastFrame()
	}
	if snap != nil && (!ok || snap.Seq >= f.Seq) {
		return *snap, true
	}
	return f, ok
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	f, ok := s.latestFrame()
	if !ok {
		writeError(w, errNoFrame)
		return
	}
	httputil.WriteJSONOK(w, struct {
		Seq uint64 `json:"seq"`
		framestats.Stats
	}{f.Seq, framestats.Compute(f.Image)})
}

func queryInt(r *http.Request, key string, def, min, max int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n, nil
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	f, ok := s.latestFrame()
	if !ok {
		writeError(w, errNoFrame)
		return
	}
	bins, err := queryInt(r, "bins", defaultHistogramBins, 1, maxHistogramBins)
	if err != nil {
		httputil.BadRequest(w, "invalid bins")
		return
	}
	png, err := framestats.HistogramPNG(f.Image, bins, 6*vg.Inch, 4*vg.Inch)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(f.Seq, 10))
	if _, err := w.Write(png); err != nil {
		logf("write histogram: %v", err)
	}
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if s.cat == nil {
		writeError(w, errNoCatalogue)
		return
	}
	limit, err := queryInt(r, "limit", db.DefaultListLimit, 1, 10*db.DefaultListLimit)
	if err != nil {
		httputil.BadRequest(w, "invalid limit")
		return
	}
	recs, err := s.cat.ListRecordings(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, recs)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if s.cat == nil {
		writeError(w, errNoCatalogue)
		return
	}
	limit, err := queryInt(r, "limit", db.DefaultListLimit, 1, 10*db.DefaultListLimit)
	if err != nil {
		httputil.BadRequest(w, "invalid limit")
		return
	}
	cmds, err := s.cat.ListCommands(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, cmds)
}
