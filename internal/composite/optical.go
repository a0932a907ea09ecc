package composite

// OpticalName is the registry name of the optical composite.
const OpticalName = "s2-l2a-monthly"

// Optical band names.
const (
	BandB02      = "B02"
	BandB03      = "B03"
	BandB04      = "B04"
	BandB08      = "B08"
	BandB11      = "B11"
	BandDataMask = "dataMask"
	BandCLP      = "CLP"
)

var opticalBands = []string{BandB02, BandB03, BandB04, BandB08, BandB11, BandDataMask, BandCLP}

// Optical is the monthly optical composite: five reflectance bands in DN,
// the validity mask and the cloud probability, copied verbatim per scene.
type Optical struct {
	monthlyOrbits
}

// NewOptical creates the optical composite.
func NewOptical(opts Options) *Optical {
	return &Optical{monthlyOrbits{monthKey: opts.MonthKey, datesKey: DatesKey}}
}

// Name implements Script.
func (o *Optical) Name() string { return OpticalName }

// Setup implements Script.
func (o *Optical) Setup() Declaration {
	return Declaration{
		Input: []InputDeclaration{{
			Bands: append([]string(nil), opticalBands...),
			Units: "DN",
		}},
		Output: []OutputDescriptor{
			{ID: BandB02, Bands: 1, SampleType: SampleTypeUint16},
			{ID: BandB03, Bands: 1, SampleType: SampleTypeUint16},
			{ID: BandB04, Bands: 1, SampleType: SampleTypeUint16},
			{ID: BandB08, Bands: 1, SampleType: SampleTypeUint16},
			{ID: BandB11, Bands: 1, SampleType: SampleTypeUint16},
			{ID: BandDataMask, Bands: 1, SampleType: SampleTypeUint8},
			{ID: BandCLP, Bands: 1, SampleType: SampleTypeUint8},
		},
		Mosaicking: MosaickingOrbit,
	}
}

// EvaluatePixel implements Script.
func (o *Optical) EvaluatePixel(samples []Sample) map[string][]float64 {
	out := make(map[string][]float64, len(opticalBands))
	for _, band := range opticalBands {
		out[band] = make([]float64, len(samples))
	}

	for i, sample := range samples {
		for _, band := range opticalBands {
			out[band][i] = sample[band]
		}
	}
	return out
}
