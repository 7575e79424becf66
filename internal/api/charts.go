package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/scopecam/internal/httputil"
)

const (
	echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"
	chartHistory        = 50
)

// handleCharts renders the recent recordings and controller latency as an
// HTML page.
func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	if s.cat == nil {
		writeError(w, errNoCatalogue)
		return
	}
	recs, err := s.cat.ListRecordings(r.Context(), chartHistory)
	if err != nil {
		writeError(w, err)
		return
	}
	cmds, err := s.cat.ListCommands(r.Context(), chartHistory)
	if err != nil {
		writeError(w, err)
		return
	}

	// Listings are newest first; charts read left to right in time.
	labels := make([]string, len(recs))
	frames := make([]opts.BarData, len(recs))
	dropped := make([]opts.BarData, len(recs))
	for i, rec := range recs {
		j := len(recs) - 1 - i
		labels[j] = rec.Started.Local().Format("01-02 15:04:05")
		frames[j] = opts.BarData{Value: rec.Frames, Name: rec.Path}
		dropped[j] = opts.BarData{Value: rec.Dropped, Name: rec.Path}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Recordings", Subtitle: fmt.Sprintf("last %d", len(recs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("frames", frames).
		AddSeries("dropped", dropped)

	cmdLabels := make([]string, len(cmds))
	latency := make([]opts.LineData, len(cmds))
	for i, c := range cmds {
		j := len(cmds) - 1 - i
		cmdLabels[j] = c.Command
		latency[j] = opts.LineData{Value: c.DurationMs, Name: c.Sent.Format(time.RFC3339)}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Controller latency", Subtitle: "ms per exchange"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(cmdLabels).AddSeries("latency", latency)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar, line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
