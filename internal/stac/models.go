// Package stac adapts STAC items, wrapping planetlabs/go-stac, into the
// orbits consumed by the composite scripts.
package stac

import (
	gostac "github.com/planetlabs/go-stac"
)

// Item is a STAC item as decoded by planetlabs/go-stac.
type Item = gostac.Item

// ItemCollection represents a STAC ItemCollection (GeoJSON FeatureCollection).
type ItemCollection struct {
	Type     string         `json:"type"` // "FeatureCollection"
	Features []*gostac.Item `json:"features"`
	Links    []*gostac.Link `json:"links,omitempty"`
}

// Item properties read when grouping items into orbits.
const (
	PropDatetime      = "datetime"
	PropStartDatetime = "start_datetime"
	PropEndDatetime   = "end_datetime"
	PropAbsoluteOrbit = "sat:absolute_orbit"
	PropCloudCover    = "eo:cloud_cover"
)

// DataAssetKeys are the asset keys tried, in order, for a tile's data path.
var DataAssetKeys = []string{"data", "visual", "vv", "B02"}
