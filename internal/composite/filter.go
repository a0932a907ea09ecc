package composite

import "sort"

// FilterMonthly sorts orbits ascending by DateFrom and keeps the first orbit
// of every month, as bucketed by key. The earliest orbit is always kept.
//
// With MonthKeyCalendar the year is ignored, so orbits a year apart in the
// same calendar month collapse onto the earlier one.
//
// The input slice is sorted in place. An empty input is returned as is.
func FilterMonthly(orbits []Orbit, key MonthKey) []Orbit {
	if len(orbits) == 0 {
		return orbits
	}

	sort.SliceStable(orbits, func(i, j int) bool {
		return orbits[i].DateFrom.Before(orbits[j].DateFrom)
	})

	// One below the first key, so the first orbit never matches.
	previous := key.of(orbits[0].DateFrom) - 1

	kept := make([]Orbit, 0, len(orbits))
	for _, orbit := range orbits {
		current := key.of(orbit.DateFrom)
		if current == previous {
			continue
		}
		previous = current
		kept = append(kept, orbit)
	}
	return kept
}

// UpdateOutputBands sets every output's band count to n.
func UpdateOutputBands(outputs map[string]*OutputDescriptor, n int) {
	for _, output := range outputs {
		output.Bands = n
	}
}
