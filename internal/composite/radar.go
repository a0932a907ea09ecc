package composite

import (
	"fmt"
	"math"
	"strings"
)

// RadarName is the registry name of the radar composite.
const RadarName = "s1-grd-monthly"

// Radar band names.
const (
	BandVV = "VV"
	BandVH = "VH"
	BandWH = "WH"
)

// RatioPolicy selects how the WH band is derived from VV and VH.
type RatioPolicy string

const (
	// RatioDecibelScaled divides the decibel values and then divides by 10
	// again: WH = VV_dB / VH_dB / 10. This matches the reference output.
	RatioDecibelScaled RatioPolicy = "db-scaled"

	// RatioLinear is the linear cross-pol ratio: WH = VV / VH.
	RatioLinear RatioPolicy = "linear"
)

// ParseRatioPolicy parses a ratio policy name.
func ParseRatioPolicy(s string) (RatioPolicy, error) {
	switch RatioPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case RatioDecibelScaled, "":
		return RatioDecibelScaled, nil
	case RatioLinear:
		return RatioLinear, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRatioPolicy, s)
	}
}

// ToDB converts linear backscatter to decibels. Zero gives -Inf and negative
// input gives NaN.
func ToDB(linear float64) float64 {
	return 10 * math.Log(linear) / math.Ln10
}

// Radar is the monthly radar composite: VV and VH in decibels plus a ratio band.
type Radar struct {
	monthlyOrbits
	ratio RatioPolicy
}

// NewRadar creates the radar composite.
func NewRadar(opts Options) *Radar {
	ratio := opts.RatioPolicy
	if ratio == "" {
		ratio = RatioDecibelScaled
	}
	return &Radar{
		monthlyOrbits: monthlyOrbits{monthKey: opts.MonthKey, datesKey: AcquisitionDatesKey},
		ratio:         ratio,
	}
}

// Name implements Script.
func (r *Radar) Name() string { return RadarName }

// Setup implements Script.
func (r *Radar) Setup() Declaration {
	return Declaration{
		Input: []InputDeclaration{{Bands: []string{BandVV, BandVH}}},
		Output: []OutputDescriptor{
			{ID: BandVV, Bands: 1, SampleType: SampleTypeFloat32},
			{ID: BandVH, Bands: 1, SampleType: SampleTypeFloat32},
			{ID: BandWH, Bands: 1, SampleType: SampleTypeFloat32},
		},
		Mosaicking: MosaickingOrbit,
	}
}

// EvaluatePixel implements Script.
func (r *Radar) EvaluatePixel(samples []Sample) map[string][]float64 {
	vv := make([]float64, len(samples))
	vh := make([]float64, len(samples))
	wh := make([]float64, len(samples))

	for i, sample := range samples {
		vv[i] = ToDB(sample[BandVV])
		vh[i] = ToDB(sample[BandVH])

		switch r.ratio {
		case RatioLinear:
			wh[i] = sample[BandVV] / sample[BandVH]
		default:
			wh[i] = vv[i] / vh[i] / 10
		}
	}

	return map[string][]float64{
		BandVV: vv,
		BandVH: vh,
		BandWH: wh,
	}
}
