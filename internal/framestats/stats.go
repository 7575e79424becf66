// Package framestats computes intensity statistics and a focus measure for a
// frame, and renders its intensity histogram.
package framestats

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Stats summarise the grey levels of one frame on a 0..255 scale.
type Stats struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	// Saturated is the fraction of pixels at full scale.
	Saturated float64 `json:"saturated"`
	// FocusScore is the variance of the 4-neighbour Laplacian; sharper
	// images score higher.
	FocusScore float64 `json:"focus_score"`
}

// Grey returns the luminance of every pixel in row-major order.
func Grey(img image.Image) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out = append(out, float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y))
		}
	}
	return out
}

// Compute returns the statistics for img.
func Compute(img image.Image) Stats {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	s := Stats{Width: w, Height: h}
	if w == 0 || h == 0 {
		return s
	}

	px := Grey(img)
	s.Mean, s.StdDev = stat.MeanStdDev(px, nil)
	if len(px) < 2 {
		s.StdDev = 0
	}
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	saturated := 0
	for _, v := range px {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		if v >= 255 {
			saturated++
		}
	}
	s.Saturated = float64(saturated) / float64(len(px))

	if w >= 3 && h >= 3 {
		lap := make([]float64, 0, (w-2)*(h-2))
		for y := 1; y < h-1; y++ {
			for x := 1; x < w-1; x++ {
				i := y*w + x
				lap = append(lap, px[i-1]+px[i+1]+px[i-w]+px[i+w]-4*px[i])
			}
		}
		if len(lap) > 1 {
			s.FocusScore = stat.Variance(lap, nil)
		}
	}
	return s
}

// HistogramPNG renders a bins-bucket grey-level histogram of img as a PNG of
// the given size.
func HistogramPNG(img image.Image, bins int, width, height vg.Length) ([]byte, error) {
	if bins <= 0 {
		bins = 64
	}
	px := Grey(img)
	if len(px) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	p := plot.New()
	p.Title.Text = "Intensity histogram"
	p.X.Label.Text = "Grey level"
	p.Y.Label.Text = "Pixels"
	p.X.Min, p.X.Max = 0, 255

	hist, err := plotter.NewHist(plotter.Values(px), bins)
	if err != nil {
		return nil, fmt.Errorf("build histogram: %w", err)
	}
	hist.LineStyle.Width = vg.Points(0.5)
	p.Add(hist)

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, fmt.Errorf("render histogram: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
