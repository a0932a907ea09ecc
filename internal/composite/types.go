// Package composite implements monthly orbit composites for satellite tiles.
//
// A composite script follows the hook contract of an orbit-mosaicking raster
// engine: Setup declares bands, PreProcessScenes selects the orbits to keep,
// UpdateOutput and UpdateOutputMetadata shape the output, and EvaluatePixel
// turns one pixel's per-scene samples into output band arrays.
package composite

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// SampleType is the declared numeric encoding of an output band.
type SampleType string

const (
	// SampleTypeUint8 encodes values as unsigned 8-bit integers.
	SampleTypeUint8 SampleType = "UINT8"
	// SampleTypeUint16 encodes values as unsigned 16-bit integers.
	SampleTypeUint16 SampleType = "UINT16"
	// SampleTypeFloat32 encodes values as 32-bit floats.
	SampleTypeFloat32 SampleType = "FLOAT32"
)

// Convert maps v into the numeric domain of the sample type.
// Integer types truncate toward zero and clamp to their range; NaN becomes 0.
// FLOAT32 rounds to float32 precision and keeps non-finite values.
func (s SampleType) Convert(v float64) float64 {
	switch s {
	case SampleTypeUint8:
		return clampUint(v, math.MaxUint8)
	case SampleTypeUint16:
		return clampUint(v, math.MaxUint16)
	case SampleTypeFloat32:
		return float64(float32(v))
	default:
		return v
	}
}

// Valid reports whether s is a known sample type.
func (s SampleType) Valid() bool {
	switch s {
	case SampleTypeUint8, SampleTypeUint16, SampleTypeFloat32:
		return true
	}
	return false
}

func clampUint(v float64, max float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= max {
		return max
	}
	return math.Trunc(v)
}

// Mosaicking selects how the engine groups source scenes into samples.
type Mosaicking string

const (
	MosaickingSimple Mosaicking = "SIMPLE"
	MosaickingOrbit  Mosaicking = "ORBIT"
	MosaickingTile   Mosaicking = "TILE"
)

// InputDeclaration lists the bands a script reads and their units.
type InputDeclaration struct {
	Bands []string `json:"bands"`
	Units string   `json:"units,omitempty"`
}

// OutputDescriptor describes one output raster of a script.
type OutputDescriptor struct {
	ID         string     `json:"id"`
	Bands      int        `json:"bands"`
	SampleType SampleType `json:"sampleType"`
}

// Declaration is what a script returns from Setup.
type Declaration struct {
	Input      []InputDeclaration `json:"input"`
	Output     []OutputDescriptor `json:"output"`
	Mosaicking Mosaicking         `json:"mosaicking"`
}

// InputBands returns the flattened list of declared input bands.
func (d Declaration) InputBands() []string {
	var bands []string
	for _, in := range d.Input {
		bands = append(bands, in.Bands...)
	}
	return bands
}

// Outputs returns a fresh descriptor map keyed by output ID.
// Callers may mutate the returned descriptors.
func (d Declaration) Outputs() map[string]*OutputDescriptor {
	outputs := make(map[string]*OutputDescriptor, len(d.Output))
	for _, o := range d.Output {
		outputs[o.ID] = &o
	}
	return outputs
}

// Tile is one source granule contributing to an orbit.
type Tile struct {
	ID            string    `json:"id,omitempty"`
	Date          time.Time `json:"date"`
	CloudCoverage *float64  `json:"cloudCoverage,omitempty"`
	DataPath      string    `json:"dataPath,omitempty"`
}

// Orbit is one satellite pass over the tile. Pixels holds one sample per
// pixel of the tile, in raster order.
type Orbit struct {
	DateFrom time.Time `json:"dateFrom"`
	DateTo   time.Time `json:"dateTo"`
	Tiles    []Tile    `json:"tiles,omitempty"`
	Pixels   []Sample  `json:"pixels,omitempty"`
}

// Scenes is the scene set of a collection.
type Scenes struct {
	Orbits []Orbit `json:"orbits"`
}

// Len returns the number of scenes.
func (s Scenes) Len() int {
	return len(s.Orbits)
}

// Collection is the set of orbits available for one tile and time range.
type Collection struct {
	Scenes Scenes `json:"scenes"`
}

// NewCollection wraps orbits in a collection.
func NewCollection(orbits []Orbit) *Collection {
	return &Collection{Scenes: Scenes{Orbits: orbits}}
}

// SceneList returns the retained orbits as scenes.
func (c *Collection) SceneList() []Scene {
	scenes := make([]Scene, len(c.Scenes.Orbits))
	for i, o := range c.Scenes.Orbits {
		scenes[i] = Scene{Date: o.DateFrom}
	}
	return scenes
}

// Scene is a retained orbit as seen by UpdateOutputMetadata.
type Scene struct {
	Date time.Time `json:"date"`
}

// Sample holds band values of one pixel for one scene.
type Sample map[string]float64

// InputMetadata is passed through by the engine to UpdateOutputMetadata.
type InputMetadata struct {
	ServiceVersion      string  `json:"serviceVersion,omitempty"`
	NormalizationFactor float64 `json:"normalizationFactor,omitempty"`
}

// OutputMetadata is the side channel attached to the produced raster.
type OutputMetadata struct {
	UserData map[string]any `json:"userData"`
}

// MarshalUserData encodes the user data the way the engine stores it.
func (m *OutputMetadata) MarshalUserData() ([]byte, error) {
	if m.UserData == nil {
		return []byte("{}"), nil
	}
	return json.MarshalIndent(m.UserData, "", "  ")
}

// MonthKey selects how orbits are bucketed into months.
type MonthKey string

const (
	// MonthKeyCalendar buckets by calendar month only, ignoring the year.
	MonthKeyCalendar MonthKey = "calendar-month"
	// MonthKeyYearMonth buckets by year and month.
	MonthKeyYearMonth MonthKey = "year-month"
)

// ParseMonthKey parses a month key name.
func ParseMonthKey(s string) (MonthKey, error) {
	switch MonthKey(strings.ToLower(strings.TrimSpace(s))) {
	case MonthKeyCalendar, "":
		return MonthKeyCalendar, nil
	case MonthKeyYearMonth:
		return MonthKeyYearMonth, nil
	default:
		return "", fmt.Errorf("unknown month key %q, must be %q or %q", s, MonthKeyCalendar, MonthKeyYearMonth)
	}
}

func (k MonthKey) of(t time.Time) int {
	t = t.UTC()
	month := int(t.Month()) - 1
	if k == MonthKeyYearMonth {
		return t.Year()*12 + month
	}
	return month
}
