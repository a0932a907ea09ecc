// Package geojson computes the rectangular extent of an area-of-interest
// feature collection.
package geojson

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// crsMember is the legacy GeoJSON 2008 coordinate reference member.
const crsMember = "crs"

// DecodeFeatureCollection reads a FeatureCollection from r. Unknown
// top-level members such as "crs" are kept in ExtraMembers.
func DecodeFeatureCollection(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature collection: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode feature collection: %w", io.EOF)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected FeatureCollection, got %q", fc.Type)
	}
	return fc, nil
}

// TotalBounds returns the union of all feature geometry bounds.
// Features without geometry are skipped.
func TotalBounds(fc *geojson.FeatureCollection) (orb.Bound, error) {
	var (
		total orb.Bound
		found bool
	)
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if !found {
			total, found = f.Geometry.Bound(), true
			continue
		}
		total = total.Union(f.Geometry.Bound())
	}
	if !found {
		return orb.Bound{}, fmt.Errorf("failed to compute bounding box: no feature has a geometry")
	}
	return total, nil
}

// Extent returns a single-feature collection holding the bounding-box
// polygon of fc, keeping its CRS member.
func Extent(fc *geojson.FeatureCollection) (*geojson.FeatureCollection, error) {
	bound, err := TotalBounds(fc)
	if err != nil {
		return nil, err
	}

	feature := geojson.NewFeature(bound.ToPolygon())
	feature.BBox = geojson.NewBBox(bound)

	extent := geojson.NewFeatureCollection().Append(feature)
	if crs, ok := fc.ExtraMembers[crsMember]; ok {
		extent.ExtraMembers = geojson.Properties{crsMember: crs}
	}
	return extent, nil
}
