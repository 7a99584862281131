// Package route holds the elevation-profile model for rides and the JSON
// route library on disk.
package route

// DefaultGradeLookaheadM is the horizontal window used when turning the
// elevation profile into a grade at a position.
const DefaultGradeLookaheadM = 100.0

// Point is a single sample of the elevation profile.
type Point struct {
	DistanceM  float64 `json:"distance_m"`
	ElevationM float64 `json:"elevation_m"`
}

// Route is a cycling route with an elevation profile. Points are ordered by
// ascending distance.
type Route struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	DistanceKm  float64 `json:"distance_km"`
	Points      []Point `json:"points"`
}

// TotalDistanceM returns the route length in meters.
func (r *Route) TotalDistanceM() float64 {
	return r.DistanceKm * 1000
}

// ElevationAt returns the elevation at distanceM, linearly interpolated
// between profile points and clamped to the first/last point beyond the
// profile's ends.
func (r *Route) ElevationAt(distanceM float64) float64 {
	if len(r.Points) == 0 {
		return 0.0
	}
	if distanceM <= r.Points[0].DistanceM {
		return r.Points[0].ElevationM
	}
	last := r.Points[len(r.Points)-1]
	if distanceM >= last.DistanceM {
		return last.ElevationM
	}

	for i := 0; i < len(r.Points)-1; i++ {
		p1, p2 := r.Points[i], r.Points[i+1]
		if p1.DistanceM <= distanceM && distanceM <= p2.DistanceM {
			ratio := (distanceM - p1.DistanceM) / (p2.DistanceM - p1.DistanceM)
			return p1.ElevationM + ratio*(p2.ElevationM-p1.ElevationM)
		}
	}
	return last.ElevationM
}

// GradeAt returns the grade percentage at distanceM, measured over a
// lookahead window ahead of the position. The window is shortened at the
// end of the route; a profile with fewer than two points, or a zero-length
// window, yields 0.
func (r *Route) GradeAt(distanceM, lookaheadM float64) float64 {
	if len(r.Points) < 2 {
		return 0.0
	}

	currentElevation := r.ElevationAt(distanceM)

	aheadM := distanceM + lookaheadM
	if maxDistance := r.TotalDistanceM(); aheadM > maxDistance {
		aheadM = maxDistance
	}
	aheadElevation := r.ElevationAt(aheadM)

	horizontal := aheadM - distanceM
	if horizontal == 0 {
		return 0.0
	}
	return (aheadElevation - currentElevation) / horizontal * 100.0
}

// Resample returns numPoints evenly spaced points over the route. Fewer
// than two requested points returns the profile unchanged.
func (r *Route) Resample(numPoints int) []Point {
	if len(r.Points) == 0 || numPoints < 2 {
		return r.Points
	}

	step := r.TotalDistanceM() / float64(numPoints-1)
	resampled := make([]Point, 0, numPoints)
	for i := 0; i < numPoints; i++ {
		d := float64(i) * step
		resampled = append(resampled, Point{DistanceM: d, ElevationM: r.ElevationAt(d)})
	}
	return resampled
}

// ElevationRange returns the minimum and maximum elevation of the points.
func ElevationRange(points []Point) (minM, maxM float64) {
	if len(points) == 0 {
		return 0.0, 0.0
	}
	minM, maxM = points[0].ElevationM, points[0].ElevationM
	for _, p := range points[1:] {
		if p.ElevationM < minM {
			minM = p.ElevationM
		}
		if p.ElevationM > maxM {
			maxM = p.ElevationM
		}
	}
	return minM, maxM
}
