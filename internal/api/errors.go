package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/banshee-data/scopecam/internal/acquisition"
	"github.com/banshee-data/scopecam/internal/camera"
	"github.com/banshee-data/scopecam/internal/devicelink"
	"github.com/banshee-data/scopecam/internal/httputil"
	"github.com/banshee-data/scopecam/internal/scope"
)

var (
	errNoScope     = errors.New("controller not connected")
	errNoCatalogue = errors.New("catalogue not configured")
	errNoFrame     = errors.New("no frame captured yet")
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		transport *devicelink.TransportError
		response  *scope.ResponseError
	)
	switch {
	case errors.Is(err, acquisition.ErrBusy),
		errors.Is(err, acquisition.ErrIdle),
		errors.Is(err, camera.ErrAlreadyStreaming),
		errors.Is(err, camera.ErrNotStreaming):
		return http.StatusConflict
	case errors.Is(err, camera.ErrUnknownParameter):
		return http.StatusBadRequest
	case errors.Is(err, errNoScope), errors.Is(err, errNoCatalogue), errors.Is(err, errNoFrame):
		return http.StatusServiceUnavailable
	case errors.As(err, &transport), errors.As(err, &response),
		errors.Is(err, devicelink.ErrPortClosed), errors.Is(err, devicelink.ErrReadTimeout):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logf("%v", err)
	}
	httputil.WriteJSONError(w, status, err.Error())
}
