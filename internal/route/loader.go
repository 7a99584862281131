package route

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// RoutesDir returns the directory route files live in, creating it if
// needed. An empty baseDir resolves under the user's home directory.
func RoutesDir(baseDir string) (string, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".local", "share", "cranktui", "routes")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("creating routes directory: %w", err)
	}
	return baseDir, nil
}

// LoadFromFile reads a single route from a JSON file.
func LoadFromFile(path string) (*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading route file: %w", err)
	}
	var r Route
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing route file %s: %w", path, err)
	}
	if r.Name == "" {
		return nil, fmt.Errorf("route file %s: missing name", path)
	}
	return &r, nil
}

// LoadAll loads every *.json route in dir, sorted by route name. Files that
// fail to parse are logged and skipped.
func LoadAll(dir string, logger *log.Logger) ([]*Route, error) {
	if logger == nil {
		panic("logger must not be nil")
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing routes: %w", err)
	}
	sort.Strings(paths)

	routes := make([]*Route, 0, len(paths))
	for _, path := range paths {
		r, err := LoadFromFile(path)
		if err != nil {
			logger.Printf("WARN skipping route %s: %v", path, err)
			continue
		}
		routes = append(routes, r)
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].Name < routes[j].Name })
	return routes, nil
}

// EnsureDemoRoutes writes the bundled demo routes into dir if it holds no
// routes yet.
func EnsureDemoRoutes(dir string) error {
	existing, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("listing routes: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	demos := map[string]Route{
		"demo_hills.json": {
			Name:        "Demo Hills",
			Description: "A sample hilly route for testing",
			DistanceKm:  10.0,
			Points: []Point{
				{0, 100}, {1000, 150}, {2000, 180}, {3000, 170},
				{4000, 140}, {5000, 90}, {6000, 85}, {7000, 120},
				{8000, 160}, {9000, 190}, {10000, 180},
			},
		},
		"flat_road.json": {
			Name:        "Flat Road",
			Description: "Easy flat route for recovery",
			DistanceKm:  5.0,
			Points: []Point{
				{0, 100}, {1000, 102}, {2000, 101},
				{3000, 103}, {4000, 100}, {5000, 102},
			},
		},
	}

	for filename, r := range demos {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding demo route %s: %w", filename, err)
		}
		if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
			return fmt.Errorf("writing demo route %s: %w", filename, err)
		}
	}
	return nil
}
