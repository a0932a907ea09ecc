package composite

import (
	"fmt"
	"sort"
)

// Script is one composite variant. Implementations hold no state between
// calls; the engine may call EvaluatePixel from many goroutines.
type Script interface {
	// Name returns the registry name of the script.
	Name() string

	// Setup declares input bands, outputs and the mosaicking mode.
	Setup() Declaration

	// PreProcessScenes replaces the collection's orbits with the retained subset.
	PreProcessScenes(c *Collection) *Collection

	// UpdateOutput sizes every output to the retained scene count.
	UpdateOutput(outputs map[string]*OutputDescriptor, c *Collection)

	// UpdateOutputMetadata writes the scene date list into out.
	UpdateOutputMetadata(scenes []Scene, in InputMetadata, out *OutputMetadata) error

	// EvaluatePixel maps one pixel's per-scene samples to output band arrays.
	EvaluatePixel(samples []Sample) map[string][]float64

	// DatesKey returns the user data key of the date list.
	DatesKey() string
}

// Options tune the built-in scripts.
type Options struct {
	MonthKey    MonthKey
	RatioPolicy RatioPolicy
}

// DefaultOptions returns options that reproduce the reference scripts.
func DefaultOptions() Options {
	return Options{
		MonthKey:    MonthKeyCalendar,
		RatioPolicy: RatioDecibelScaled,
	}
}

// monthlyOrbits carries the hooks shared by all monthly orbit scripts.
type monthlyOrbits struct {
	monthKey MonthKey
	datesKey string
}

func (m monthlyOrbits) PreProcessScenes(c *Collection) *Collection {
	c.Scenes.Orbits = FilterMonthly(c.Scenes.Orbits, m.monthKey)
	return c
}

func (m monthlyOrbits) UpdateOutput(outputs map[string]*OutputDescriptor, c *Collection) {
	UpdateOutputBands(outputs, c.Scenes.Len())
}

func (m monthlyOrbits) UpdateOutputMetadata(scenes []Scene, _ InputMetadata, out *OutputMetadata) error {
	return WriteDates(out, m.datesKey, scenes)
}

func (m monthlyOrbits) DatesKey() string {
	return m.datesKey
}

// Registry maps script names to constructors.
type Registry struct {
	opts    Options
	scripts map[string]func(Options) Script
}

// NewRegistry returns a registry holding the built-in scripts.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		opts:    opts,
		scripts: make(map[string]func(Options) Script),
	}
	r.Register(OpticalName, func(o Options) Script { return NewOptical(o) })
	r.Register(RadarName, func(o Options) Script { return NewRadar(o) })
	return r
}

// Register adds or replaces a script constructor.
func (r *Registry) Register(name string, build func(Options) Script) {
	r.scripts[name] = build
}

// Get builds the named script.
func (r *Registry) Get(name string) (Script, error) {
	build, ok := r.scripts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScript, name)
	}
	return build(r.opts), nil
}

// Has reports whether a script is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.scripts[name]
	return ok
}

// Names returns registered script names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scripts))
	for name := range r.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
