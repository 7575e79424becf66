package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "test error", resp["error"])
	assert.NotContains(t, resp, "detail")
}

func TestWriteJSONErrorDetail(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONErrorDetail(rec, http.StatusUnprocessableEntity, "clamped", map[string]int{"applied": 3})

	var resp struct {
		Error  string         `json:"error"`
		Detail map[string]int `json:"detail"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "clamped", resp.Error)
	assert.Equal(t, 3, resp.Detail["applied"])
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fn   func(http.ResponseWriter)
		want int
	}{
		{"method not allowed", MethodNotAllowed, http.StatusMethodNotAllowed},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "x") }, http.StatusBadRequest},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "x") }, http.StatusConflict},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "x") }, http.StatusInternalServerError},
		{"bad gateway", func(w http.ResponseWriter) { BadGateway(w, "x") }, http.StatusBadGateway},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "x") }, http.StatusServiceUnavailable},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "x") }, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.fn(rec)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"count": 42})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 42, resp["count"])
}

func TestFormValues_JSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"delta": -25, "action": "jog", "big": true}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	vals, err := FormValues(req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"delta": "-25", "action": "jog", "big": "true"}, vals)

	n, ok, err := IntValue(vals, "delta")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -25, n)

	b, err := BoolValue(vals, "big", false)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestFormValues_Form(t *testing.T) {
	t.Parallel()

	form := url.Values{"power": {"300"}}
	req := httptest.NewRequest(http.MethodPost, "/?action=on", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	vals, err := FormValues(req)
	require.NoError(t, err)
	assert.Equal(t, "300", vals["power"])
	assert.Equal(t, "on", vals["action"])
}

func TestFormValues_BadJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"delta":`))
	req.Header.Set("Content-Type", "application/json")
	_, err := FormValues(req)
	assert.Error(t, err)
}

func TestIntValue(t *testing.T) {
	t.Parallel()

	vals := map[string]string{"a": "7", "b": "seven", "c": " "}

	n, ok, err := IntValue(vals, "a")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok, err = IntValue(vals, "b")
	assert.Error(t, err)
	assert.True(t, ok)

	_, ok, err = IntValue(vals, "c")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = IntValue(vals, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = BoolValue(vals, "b", false)
	assert.Error(t, err)
}
