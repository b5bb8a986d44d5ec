// Package coords loads and validates coordinate sets: named, platform-specific
// mappings from logical UI element names to screen locations. Coordinate sets
// are produced by the external calibration tool and are read-only here.
package coords

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ConfigError reports missing or invalid coordinate or settings data.
// It is fatal at startup and never retried.
type ConfigError struct {
	Profile string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Profile == "" {
		return fmt.Sprintf("config error: %s", e.Reason)
	}
	return fmt.Sprintf("config error (%s): %s", e.Profile, e.Reason)
}

// Point is a single screen location.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Region is a rectangular screen area used for verification capture.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the mid point of the region.
func (r Region) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Location is either a point or a region for one logical element.
type Location struct {
	Point  *Point
	Region *Region
}

// IsRegion reports whether the location carries an area rather than a point.
func (l Location) IsRegion() bool { return l.Region != nil }

// Target returns the point to aim input at: the point itself, or the region
// center.
func (l Location) Target() Point {
	if l.Region != nil {
		return l.Region.Center()
	}
	if l.Point != nil {
		return *l.Point
	}
	return Point{}
}

// UnmarshalJSON accepts the two on-disk forms the calibration tool emits:
// a two-element array [x, y], or an object {x, y[, width, height]}.
func (l *Location) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("coordinate array must have 2 elements, got %d", len(pair))
		}
		l.Point = &Point{X: pair[0], Y: pair[1]}
		return nil
	}

	var obj struct {
		X      *int `json:"x"`
		Y      *int `json:"y"`
		Width  int  `json:"width"`
		Height int  `json:"height"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("coordinate entry: %w", err)
	}
	if obj.X == nil || obj.Y == nil {
		return fmt.Errorf("coordinate entry missing x or y")
	}
	if obj.Width > 0 && obj.Height > 0 {
		l.Region = &Region{X: *obj.X, Y: *obj.Y, Width: obj.Width, Height: obj.Height}
		return nil
	}
	l.Point = &Point{X: *obj.X, Y: *obj.Y}
	return nil
}

// MarshalJSON writes points as objects and regions with their dimensions.
func (l Location) MarshalJSON() ([]byte, error) {
	if l.Region != nil {
		return json.Marshal(l.Region)
	}
	if l.Point != nil {
		return json.Marshal(l.Point)
	}
	return nil, fmt.Errorf("empty coordinate entry")
}

// Set is an immutable mapping from logical element name to screen location,
// identified by platform and profile name.
type Set struct {
	Platform string
	Profile  string
	elements map[string]Location
}

// Store loads coordinate sets from a base directory laid out as
// <base>/<platform>/<profile>.json.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Path returns the on-disk location of a coordinate set.
func (s *Store) Path(platform, profile string) string {
	return filepath.Join(s.baseDir, platform, profile+".json")
}

// Load reads and parses the coordinate set for platform and profile.
// Absent or malformed files yield a ConfigError.
func (s *Store) Load(platform, profile string) (*Set, error) {
	path := s.Path(platform, profile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigError{
				Profile: profile,
				Reason:  fmt.Sprintf("coordinate set not found at %s; run the calibration tool first", path),
			}
		}
		return nil, &ConfigError{Profile: profile, Reason: err.Error()}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Profile: profile, Reason: fmt.Sprintf("malformed coordinate file: %v", err)}
	}

	elements := make(map[string]Location, len(raw))
	for name, entry := range raw {
		// Calibration tool metadata rides alongside element entries.
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		var loc Location
		if err := json.Unmarshal(entry, &loc); err != nil {
			return nil, &ConfigError{Profile: profile, Reason: fmt.Sprintf("element %q: %v", name, err)}
		}
		elements[name] = loc
	}

	if len(elements) == 0 {
		return nil, &ConfigError{Profile: profile, Reason: "coordinate set contains no elements"}
	}

	return &Set{Platform: platform, Profile: profile, elements: elements}, nil
}

// Resolve returns the location for a logical element name. An unknown name
// after validation is a programming invariant violation; callers treat the
// returned ConfigError as fatal.
func (c *Set) Resolve(name string) (Location, error) {
	loc, ok := c.elements[name]
	if !ok {
		return Location{}, &ConfigError{
			Profile: c.Profile,
			Reason:  fmt.Sprintf("unknown element %q (validation should have caught this)", name),
		}
	}
	return loc, nil
}

// Has reports whether the element name exists in the set.
func (c *Set) Has(name string) bool {
	_, ok := c.elements[name]
	return ok
}

// Len returns the number of elements in the set.
func (c *Set) Len() int { return len(c.elements) }

// Validate checks that every required element name is present. It runs
// eagerly at pipeline start so that no action executes against an incomplete
// set.
func (c *Set) Validate(required []string) error {
	var missing []string
	for _, name := range required {
		if !c.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &ConfigError{
			Profile: c.Profile,
			Reason:  fmt.Sprintf("missing elements: %v", missing),
		}
	}
	return nil
}
