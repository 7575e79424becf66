package camera

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parameters is the full set of capture options pushed to a Device. It is
// passed by value and only changed through ApplyInput or SetParameters.
type Parameters struct {
	AutoExposure     bool    `json:"auto_exposure"`
	AutoGain         bool    `json:"auto_gain"`
	ExposureMs       float64 `json:"exposure_ms"`
	GainDB           float64 `json:"gain_db"`
	Binning          int     `json:"binning"`
	CropROI          bool    `json:"crop_roi"`
	MedianFilterSize int     `json:"median_filter_size"`
}

// Limits bounds the numeric parameters.
type Limits struct {
	MinExposureMs float64 `json:"min_exposure_ms"`
	MaxExposureMs float64 `json:"max_exposure_ms"`
	MinGainDB     float64 `json:"min_gain_db"`
	MaxGainDB     float64 `json:"max_gain_db"`
}

// DefaultParameters are the power-on capture settings.
var DefaultParameters = Parameters{
	AutoExposure:     false,
	AutoGain:         true,
	ExposureMs:       50,
	GainDB:           24,
	Binning:          2,
	MedianFilterSize: 3,
}

// DefaultLimits are the sensor's exposure and gain ranges.
var DefaultLimits = Limits{
	MinExposureMs: 0.1,
	MaxExposureMs: 2000,
	MinGainDB:     0,
	MaxGainDB:     24,
}

// Validate checks the limits are usable ranges.
func (l Limits) Validate() error {
	if l.MinExposureMs < 0 || l.MaxExposureMs < l.MinExposureMs {
		return fmt.Errorf("invalid exposure range [%g, %g]", l.MinExposureMs, l.MaxExposureMs)
	}
	if l.MaxGainDB < l.MinGainDB {
		return fmt.Errorf("invalid gain range [%g, %g]", l.MinGainDB, l.MaxGainDB)
	}
	return nil
}

// Validate reports the first parameter outside l or otherwise unusable.
func (p Parameters) Validate(l Limits) error {
	switch {
	case p.ExposureMs < l.MinExposureMs || p.ExposureMs > l.MaxExposureMs:
		return fmt.Errorf("exposure %gms outside [%g, %g]", p.ExposureMs, l.MinExposureMs, l.MaxExposureMs)
	case p.GainDB < l.MinGainDB || p.GainDB > l.MaxGainDB:
		return fmt.Errorf("gain %gdB outside [%g, %g]", p.GainDB, l.MinGainDB, l.MaxGainDB)
	case p.Binning < 1:
		return fmt.Errorf("binning %d must be at least 1", p.Binning)
	case p.MedianFilterSize < 1 || p.MedianFilterSize%2 == 0:
		return fmt.Errorf("median filter size %d must be a positive odd number", p.MedianFilterSize)
	}
	return nil
}

// Field names accepted by ApplyInput.
const (
	FieldAutoExposure     = "auto_exposure"
	FieldAutoGain         = "auto_gain"
	FieldExposure         = "exposure_ms"
	FieldGain             = "gain_db"
	FieldBinning          = "binning"
	FieldCropROI          = "crop_roi"
	FieldMedianFilterSize = "median_filter_size"
)

// ErrUnknownParameter is returned by ApplyInput for a field it does not know.
var ErrUnknownParameter = errors.New("unknown camera parameter")

// ValidationError reports user input that was not stored as entered. Either
// the prior value was kept (Reverted) or the value was clamped to Applied.
type ValidationError struct {
	Field    string
	Input    string
	Applied  any
	Reverted bool
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Reverted {
		return fmt.Sprintf("camera %s: cannot use %q, keeping %v", e.Field, e.Input, e.Applied)
	}
	return fmt.Sprintf("camera %s: %q out of range, using %v", e.Field, e.Input, e.Applied)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ApplyInput is the single boundary where text from an operator reaches
// Parameters. Unparsable input leaves p unchanged; numeric input outside l is
// clamped to the nearest bound. Both cases return the resulting Parameters
// together with a *ValidationError describing what happened.
func ApplyInput(p Parameters, l Limits, field, text string) (Parameters, error) {
	in := strings.TrimSpace(text)
	switch field {
	case FieldExposure:
		v, verr := applyFloat(field, in, p.ExposureMs, l.MinExposureMs, l.MaxExposureMs)
		p.ExposureMs = v
		return p, verr
	case FieldGain:
		v, verr := applyFloat(field, in, p.GainDB, l.MinGainDB, l.MaxGainDB)
		p.GainDB = v
		return p, verr
	case FieldBinning:
		n, err := strconv.Atoi(in)
		if err != nil {
			return p, &ValidationError{Field: field, Input: text, Applied: p.Binning, Reverted: true, Err: err}
		}
		if n < 1 {
			p.Binning = 1
			return p, &ValidationError{Field: field, Input: text, Applied: 1}
		}
		p.Binning = n
		return p, nil
	case FieldMedianFilterSize:
		n, err := strconv.Atoi(in)
		if err != nil {
			return p, &ValidationError{Field: field, Input: text, Applied: p.MedianFilterSize, Reverted: true, Err: err}
		}
		if n < 1 || n%2 == 0 {
			n = max(1, n|1)
			p.MedianFilterSize = n
			return p, &ValidationError{Field: field, Input: text, Applied: n}
		}
		p.MedianFilterSize = n
		return p, nil
	case FieldAutoExposure, FieldAutoGain, FieldCropROI:
		b, err := strconv.ParseBool(in)
		target := boolField(&p, field)
		if err != nil {
			return p, &ValidationError{Field: field, Input: text, Applied: *target, Reverted: true, Err: err}
		}
		*target = b
		return p, nil
	}
	return p, fmt.Errorf("%w %q", ErrUnknownParameter, field)
}

func boolField(p *Parameters, field string) *bool {
	switch field {
	case FieldAutoExposure:
		return &p.AutoExposure
	case FieldAutoGain:
		return &p.AutoGain
	default:
		return &p.CropROI
	}
}

func applyFloat(field, in string, prior, lo, hi float64) (float64, error) {
	v, err := strconv.ParseFloat(in, 64)
	if err == nil && math.IsNaN(v) {
		err = strconv.ErrSyntax
	}
	if err != nil {
		return prior, &ValidationError{Field: field, Input: in, Applied: prior, Reverted: true, Err: err}
	}
	switch {
	case v < lo:
		return lo, &ValidationError{Field: field, Input: in, Applied: lo}
	case v > hi:
		return hi, &ValidationError{Field: field, Input: in, Applied: hi}
	}
	return v, nil
}
