// Package api is the HTTP control surface: acquisition start and stop,
// snapshots, camera parameters, lens, laser and motor control, frame
// statistics and the catalogue listings.
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/scopecam/internal/acquisition"
	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/db"
	"github.com/banshee-data/scopecam/internal/monitoring"
	"github.com/banshee-data/scopecam/internal/preview"
	"github.com/banshee-data/scopecam/internal/recorder"
	"github.com/banshee-data/scopecam/internal/scope"
	"github.com/banshee-data/scopecam/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

var logf = monitoring.Component("api")

// Catalogue is the persisted history the listing routes read from.
type Catalogue interface {
	ListRecordings(ctx context.Context, limit int) ([]recorder.Summary, error)
	ListCommands(ctx context.Context, limit int) ([]db.CommandEntry, error)
	RecordLensLimits(ctx context.Context, l scope.Limits, measured time.Time) error
}

// FrameSource yields the most recent processed frame, if any.
type FrameSource interface {
	LastFrame() (camera.Frame, bool)
}

// Options wire a Server to the rest of the system. Scope, Catalogue,
// Preview and Frames are optional; their routes answer 503 when unset.
type Options struct {
	Acquisition *acquisition.Manager
	Scope       *scope.Controller
	Catalogue   Catalogue
	Preview     *preview.Broadcaster
	Frames      FrameSource
	Clock       timeutil.Clock
}

type Server struct {
	acq     *acquisition.Manager
	scope   *scope.Controller
	cat     Catalogue
	preview *preview.Broadcaster
	frames  FrameSource
	clock   timeutil.Clock

	mu       sync.Mutex
	lastSnap *camera.Frame
	limits   *scope.Limits
}

func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Server{
		acq:     opts.Acquisition,
		scope:   opts.Scope,
		cat:     opts.Catalogue,
		preview: opts.Preview,
		frames:  opts.Frames,
		clock:   opts.Clock,
	}
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

// ServeMux returns a mux with every control route registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.AttachRoutes(mux)
	return mux
}

// AttachRoutes registers the control routes on mux.
func (s *Server) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/live", s.handleLive)
	mux.HandleFunc("POST /api/record", s.handleRecord)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/snap", s.handleSnap)
	mux.HandleFunc("GET /api/camera/params", s.handleGetParams)
	mux.HandleFunc("POST /api/camera/params", s.handleSetParams)

	mux.HandleFunc("POST /api/lens", s.handleLens)
	mux.HandleFunc("GET /api/lens/focus", s.handleFocus)
	mux.HandleFunc("POST /api/lens/limits", s.handleLimits)
	mux.HandleFunc("GET /api/laser", s.handleGetLaser)
	mux.HandleFunc("POST /api/laser", s.handleLaser)
	mux.HandleFunc("POST /api/motor", s.handleMotor)
	mux.HandleFunc("POST /api/demo", s.handleDemo)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/histogram.png", s.handleHistogram)
	mux.HandleFunc("GET /api/recordings", s.handleRecordings)
	mux.HandleFunc("GET /api/commands", s.handleCommands)
	mux.HandleFunc("GET /api/charts", s.handleCharts)

	if s.preview != nil {
		s.preview.AttachRoutes(mux)
	}
}
