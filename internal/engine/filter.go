package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/robert-malhotra/orbit-composite/internal/composite"
)

// MosaickingOrder orders the tiles of one orbit.
type MosaickingOrder string

const (
	OrderLeastRecent MosaickingOrder = "leastRecent"
	OrderMostRecent  MosaickingOrder = "mostRecent"
	OrderLeastCC     MosaickingOrder = "leastCC"
)

// ParseMosaickingOrder parses a mosaicking order name. Empty means leastRecent.
func ParseMosaickingOrder(s string) (MosaickingOrder, error) {
	switch MosaickingOrder(s) {
	case "", OrderLeastRecent:
		return OrderLeastRecent, nil
	case OrderMostRecent, OrderLeastCC:
		return MosaickingOrder(s), nil
	default:
		return "", fmt.Errorf("invalid mosaicking order %q, must be one of: leastRecent, mostRecent, leastCC", s)
	}
}

// DataFilter is the catalog-side selection applied before the script sees
// the collection.
type DataFilter struct {
	// MaxCloudCoverage drops tiles with a cloud coverage fraction above it.
	// Zero disables the filter.
	MaxCloudCoverage float64
	Order            MosaickingOrder

	// From and To bound orbit start dates, inclusive. A zero value leaves
	// that side open.
	From time.Time
	To   time.Time
}

// Apply returns the orbits inside the time window that still have tiles
// after filtering, with tiles ordered by the mosaicking order. Orbits
// without tile metadata skip the cloud filter.
func (f DataFilter) Apply(orbits []composite.Orbit) []composite.Orbit {
	kept := make([]composite.Orbit, 0, len(orbits))
	for _, orbit := range orbits {
		if !f.inWindow(orbit.DateFrom) {
			continue
		}
		if len(orbit.Tiles) == 0 {
			kept = append(kept, orbit)
			continue
		}

		tiles := make([]composite.Tile, 0, len(orbit.Tiles))
		for _, tile := range orbit.Tiles {
			if f.MaxCloudCoverage > 0 && tile.CloudCoverage != nil && *tile.CloudCoverage > f.MaxCloudCoverage {
				continue
			}
			tiles = append(tiles, tile)
		}
		if len(tiles) == 0 {
			continue
		}

		f.sortTiles(tiles)
		orbit.Tiles = tiles
		kept = append(kept, orbit)
	}
	return kept
}

func (f DataFilter) inWindow(t time.Time) bool {
	if !f.From.IsZero() && t.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.After(f.To) {
		return false
	}
	return true
}

func (f DataFilter) sortTiles(tiles []composite.Tile) {
	switch f.Order {
	case OrderMostRecent:
		sort.SliceStable(tiles, func(i, j int) bool { return tiles[i].Date.After(tiles[j].Date) })
	case OrderLeastCC:
		sort.SliceStable(tiles, func(i, j int) bool { return cloudCover(tiles[i]) < cloudCover(tiles[j]) })
	default:
		sort.SliceStable(tiles, func(i, j int) bool { return tiles[i].Date.Before(tiles[j].Date) })
	}
}

// cloudCover treats unknown coverage as fully cloudy.
func cloudCover(t composite.Tile) float64 {
	if t.CloudCoverage == nil {
		return 1
	}
	return *t.CloudCoverage
}
