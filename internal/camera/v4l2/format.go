package v4l2

import "github.com/banshee-data/scopecam/internal/monitoring"

var logf = monitoring.Component("v4l2")

// Format is the capture geometry and rate a driver settled on.
type Format struct {
	Width  int
	Height int
	FPS    int
}

// negotiated prefers what the driver reports and keeps the requested value
// for anything it could not report. A zero report counts as missing.
func negotiated(req Options, width, height uint32, sizeErr error, fps uint32, fpsErr error) Format {
	f := Format{Width: req.Width, Height: req.Height, FPS: req.FPS}
	if sizeErr != nil {
		logf("query pixel format on %s: %v", req.Path, sizeErr)
	} else if width > 0 && height > 0 {
		f.Width, f.Height = int(width), int(height)
	}
	if fpsErr != nil {
		logf("query frame rate on %s: %v", req.Path, fpsErr)
	} else if fps > 0 {
		f.FPS = int(fps)
	}
	return f
}

// property maps a camera property name onto f.
func (f Format) property(name string) (float64, bool) {
	switch name {
	case "fps":
		return float64(f.FPS), true
	case "width":
		return float64(f.Width), true
	case "height":
		return float64(f.Height), true
	}
	return 0, false
}
