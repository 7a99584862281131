package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Ghost validity thresholds. Recordings shorter than this are from
// aborted rides and make useless opponents.
const (
	minGhostDurationS = 5.0
	minGhostDistanceM = 10.0
)

// GhostPoint is a single time/distance sample from a previous ride.
type GhostPoint struct {
	ElapsedS  float64
	DistanceM float64
}

// Ghost replays a previous ride's progress along the route.
type Ghost struct {
	FilePath string
	Points   []GhostPoint
}

// TotalTimeS returns the ghost's full ride duration.
func (g *Ghost) TotalTimeS() float64 {
	if len(g.Points) == 0 {
		return 0.0
	}
	return g.Points[len(g.Points)-1].ElapsedS
}

// TotalDistanceM returns the ghost's full ride distance.
func (g *Ghost) TotalDistanceM() float64 {
	if len(g.Points) == 0 {
		return 0.0
	}
	return g.Points[len(g.Points)-1].DistanceM
}

// DistanceAt returns the ghost's position at elapsedS, linearly
// interpolated between samples. Before the start it is 0; after the finish
// it holds at the final distance.
func (g *Ghost) DistanceAt(elapsedS float64) float64 {
	if len(g.Points) == 0 || elapsedS <= 0 {
		return 0.0
	}
	last := g.Points[len(g.Points)-1]
	if elapsedS >= last.ElapsedS {
		return last.DistanceM
	}

	for i := 0; i < len(g.Points)-1; i++ {
		p1, p2 := g.Points[i], g.Points[i+1]
		if p1.ElapsedS <= elapsedS && elapsedS <= p2.ElapsedS {
			dt := p2.ElapsedS - p1.ElapsedS
			if dt == 0 {
				return p1.DistanceM
			}
			ratio := (elapsedS - p1.ElapsedS) / dt
			return p1.DistanceM + ratio*(p2.DistanceM-p1.DistanceM)
		}
	}
	return last.DistanceM
}

// LoadGhost reads the time/distance track from a ride CSV. Rows with
// missing or malformed values are skipped; a file with no usable rows
// returns an error.
func LoadGhost(path string) (*Ghost, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ride file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ride file %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("ride file %s: no data rows", path)
	}

	elapsedCol, distanceCol := -1, -1
	for i, name := range records[0] {
		switch name {
		case "elapsed_time_s":
			elapsedCol = i
		case "distance_m":
			distanceCol = i
		}
	}
	if elapsedCol < 0 || distanceCol < 0 {
		return nil, fmt.Errorf("ride file %s: missing columns", path)
	}

	points := make([]GhostPoint, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) <= elapsedCol || len(row) <= distanceCol {
			continue
		}
		elapsed, err1 := strconv.ParseFloat(row[elapsedCol], 64)
		distance, err2 := strconv.ParseFloat(row[distanceCol], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		points = append(points, GhostPoint{ElapsedS: elapsed, DistanceM: distance})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("ride file %s: no usable rows", path)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].ElapsedS < points[j].ElapsedS })
	return &Ghost{FilePath: path, Points: points}, nil
}

// LoadGhosts returns every valid ghost recorded for routeName, fastest
// first. Unreadable or too-short recordings are skipped.
func LoadGhosts(ridesDir, routeName string) ([]*Ghost, error) {
	pattern := filepath.Join(ridesDir, "*_"+sanitizeRouteName(routeName)+".csv")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("listing rides: %w", err)
	}

	ghosts := make([]*Ghost, 0, len(paths))
	for _, path := range paths {
		g, err := LoadGhost(path)
		if err != nil {
			continue
		}
		if g.TotalTimeS() > minGhostDurationS && g.TotalDistanceM() > minGhostDistanceM {
			ghosts = append(ghosts, g)
		}
	}

	sort.Slice(ghosts, func(i, j int) bool { return ghosts[i].TotalTimeS() < ghosts[j].TotalTimeS() })
	return ghosts, nil
}

// FastestGhost returns the quickest previous ride for routeName, or nil
// when none exists.
func FastestGhost(ridesDir, routeName string) *Ghost {
	ghosts, err := LoadGhosts(ridesDir, routeName)
	if err != nil || len(ghosts) == 0 {
		return nil
	}
	return ghosts[0]
}
