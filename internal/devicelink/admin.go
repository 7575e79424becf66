package devicelink

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// History keeps the most recent exchanges for the debug pages. Its Record
// method is suitable as a LinkOptions.Observer.
type History struct {
	mu      sync.Mutex
	limit   int
	records []CommandRecord
}

// NewHistory returns a History retaining at most limit records.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 64
	}
	return &History{limit: limit}
}

// Record appends rec, evicting the oldest entry when full.
func (h *History) Record(rec CommandRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	if over := len(h.records) - h.limit; over > 0 {
		h.records = append(h.records[:0:0], h.records[over:]...)
	}
}

// Snapshot returns a copy of the retained records, oldest first.
func (h *History) Snapshot() []CommandRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]CommandRecord, len(h.records))
	copy(out, h.records)
	return out
}

type historyEntry struct {
	Command    string  `json:"command"`
	Response   string  `json:"response,omitempty"`
	Expected   bool    `json:"expected"`
	Error      string  `json:"error,omitempty"`
	Started    string  `json:"started"`
	DurationMS float64 `json:"duration_ms"`
}

// AttachAdminRoutes attaches debugging endpoints for the link to the given
// HTTP mux under /debug/. h may be nil, in which case no history page is
// served.
func (l *Link) AttachAdminRoutes(mux *http.ServeMux, h *History) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a raw command to the lens/laser controller", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, map[string]string{"Identity": l.Identity()}); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		expect, _ := strconv.ParseBool(r.FormValue("expect"))
		resp, err := l.Send(command, expect)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to send command: %v", err), http.StatusBadGateway)
			return
		}
		if expect {
			io.WriteString(w, fmt.Sprintf("%q -> %q", command, resp))
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	if h == nil {
		return
	}
	debug.HandleFunc("command-history", "recent controller exchanges", func(w http.ResponseWriter, r *http.Request) {
		recs := h.Snapshot()
		entries := make([]historyEntry, 0, len(recs))
		for _, rec := range recs {
			e := historyEntry{
				Command:    rec.Command,
				Response:   rec.Response,
				Expected:   rec.Expected,
				Started:    rec.Started.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				DurationMS: float64(rec.Duration.Microseconds()) / 1000,
			}
			if rec.Err != nil {
				e.Error = rec.Err.Error()
			}
			entries = append(entries, e)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	})
}
