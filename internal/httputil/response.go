// Package httputil holds the JSON response and request helpers shared by the
// control surface handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/scopecam/internal/monitoring"
)

var logf = monitoring.Component("http")

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string `json:"error"`
	Detail any    `json:"detail,omitempty"`
}

// WriteJSONError writes a JSON error response with the given status code and message.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// WriteJSONErrorDetail is WriteJSONError with a structured detail payload.
func WriteJSONErrorDetail(w http.ResponseWriter, status int, msg string, detail any) {
	WriteJSON(w, status, ErrorBody{Error: msg, Detail: detail})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// Conflict writes a 409 Conflict response.
func Conflict(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusConflict, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// BadGateway writes a 502 response for failures of a downstream device.
func BadGateway(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadGateway, msg)
}

// ServiceUnavailable writes a 503 response.
func ServiceUnavailable(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusServiceUnavailable, msg)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// IsJSON reports whether the request body is declared as JSON.
func IsJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/json"
}

// DecodeJSON decodes a bounded JSON body into v. An empty body leaves v
// untouched.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

// FormValues returns the request's parameters as strings, from a JSON object
// body when the request is JSON and from the query and form otherwise. JSON
// numbers and booleans are rendered with their literal text.
func FormValues(r *http.Request) (map[string]string, error) {
	out := map[string]string{}
	if IsJSON(r) {
		raw := map[string]json.RawMessage{}
		if err := DecodeJSON(r, &raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				out[k] = s
				continue
			}
			out[k] = strings.TrimSpace(string(v))
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form: %w", err)
	}
	for k, vs := range r.Form {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out, nil
}

// IntValue parses values[key]. ok is false when the key is absent.
func IntValue(values map[string]string, key string) (n int, ok bool, err error) {
	s, present := values[key]
	if !present || strings.TrimSpace(s) == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, true, fmt.Errorf("invalid %s %q: must be an integer", key, s)
	}
	return n, true, nil
}

// BoolValue parses values[key], returning def when it is absent.
func BoolValue(values map[string]string, key string, def bool) (bool, error) {
	s, present := values[key]
	if !present || strings.TrimSpace(s) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: must be a boolean", key, s)
	}
	return b, nil
}
