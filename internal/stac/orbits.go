package stac

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/robert-malhotra/orbit-composite/internal/composite"
)

// OrbitsFromItems groups items into orbits. Items sharing
// sat:absolute_orbit form one orbit; items without it are grouped by UTC
// acquisition day. Orbits are returned sorted by start time.
func OrbitsFromItems(items []*Item) ([]composite.Orbit, error) {
	groups := make(map[string]*composite.Orbit)
	var keys []string

	for _, item := range items {
		if item == nil {
			continue
		}

		tile, end, err := tileFromItem(item)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", item.Id, err)
		}

		key := orbitKey(item, tile.Date)
		orbit, ok := groups[key]
		if !ok {
			orbit = &composite.Orbit{DateFrom: tile.Date, DateTo: end}
			groups[key] = orbit
			keys = append(keys, key)
		}
		if tile.Date.Before(orbit.DateFrom) {
			orbit.DateFrom = tile.Date
		}
		if end.After(orbit.DateTo) {
			orbit.DateTo = end
		}
		orbit.Tiles = append(orbit.Tiles, tile)
	}

	orbits := make([]composite.Orbit, 0, len(keys))
	for _, key := range keys {
		orbit := groups[key]
		sort.SliceStable(orbit.Tiles, func(i, j int) bool {
			return orbit.Tiles[i].Date.Before(orbit.Tiles[j].Date)
		})
		orbits = append(orbits, *orbit)
	}

	sort.SliceStable(orbits, func(i, j int) bool {
		return orbits[i].DateFrom.Before(orbits[j].DateFrom)
	})
	return orbits, nil
}

// tileFromItem returns the item as a tile along with its end time.
func tileFromItem(item *Item) (composite.Tile, time.Time, error) {
	start, err := itemStart(item)
	if err != nil {
		return composite.Tile{}, time.Time{}, err
	}

	end := start
	if v, ok := item.Properties[PropEndDatetime]; ok && v != nil {
		t, err := propertyTime(v)
		if err != nil {
			return composite.Tile{}, time.Time{}, fmt.Errorf("invalid %s: %w", PropEndDatetime, err)
		}
		if t.After(start) {
			end = t
		}
	}

	tile := composite.Tile{
		ID:       item.Id,
		Date:     start,
		DataPath: dataPath(item),
	}

	if v, ok := item.Properties[PropCloudCover]; ok && v != nil {
		cc, ok := propertyNumber(v)
		if !ok {
			return composite.Tile{}, time.Time{}, fmt.Errorf("invalid %s: %v", PropCloudCover, v)
		}
		// eo:cloud_cover is a percentage.
		fraction := cc / 100
		tile.CloudCoverage = &fraction
	}

	return tile, end, nil
}

// itemStart returns start_datetime, falling back to datetime.
func itemStart(item *Item) (time.Time, error) {
	for _, key := range []string{PropStartDatetime, PropDatetime} {
		v, ok := item.Properties[key]
		if !ok || v == nil {
			continue
		}
		t, err := propertyTime(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("item has neither %s nor %s", PropStartDatetime, PropDatetime)
}

func orbitKey(item *Item, date time.Time) string {
	if v, ok := item.Properties[PropAbsoluteOrbit]; ok && v != nil {
		if n, ok := propertyNumber(v); ok && n == math.Trunc(n) {
			return fmt.Sprintf("orbit:%d", int64(n))
		}
	}
	return "day:" + date.UTC().Format("2006-01-02")
}

func dataPath(item *Item) string {
	for _, key := range DataAssetKeys {
		if asset, ok := item.Assets[key]; ok && asset != nil {
			return asset.Href
		}
	}
	return ""
}

// propertyTime accepts the decoded JSON string form or a time.Time.
func propertyTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return t.UTC(), nil
	case string:
		return composite.ParseTime(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}

func propertyNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
