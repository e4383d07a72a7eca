// Package presets loads named fps/width combinations from a YAML file.
package presets

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/gifmaker-live/backend/internal/convert"
	"gopkg.in/yaml.v3"
)

// Preset is a named set of conversion parameters.
type Preset struct {
	Name        string `yaml:"name" json:"name" msgpack:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty" msgpack:"description,omitempty"`
	FPS         int    `yaml:"fps" json:"fps" msgpack:"fps"`
	Width       int    `yaml:"width" json:"width" msgpack:"width"`
}

// Params returns the preset as conversion parameters.
func (p Preset) Params() convert.Params {
	return convert.Params{FPS: p.FPS, Width: p.Width}
}

type file struct {
	Presets []Preset `yaml:"presets"`
}

// Set is an immutable collection of presets keyed by lowercase name.
type Set struct {
	byName map[string]Preset
}

// Builtin returns the presets available when no presets file exists.
func Builtin() *Set {
	s, _ := newSet([]Preset{
		{Name: "small", Description: "Chat sized, low frame rate", FPS: 8, Width: 240},
		{Name: "default", Description: "Upload page defaults", FPS: convert.DefaultFPS, Width: convert.DefaultWidth},
		{Name: "smooth", Description: "Higher frame rate for motion", FPS: 20, Width: 480},
		{Name: "large", Description: "Full width, large file", FPS: 15, Width: 800},
	})
	return s
}

// Load reads presets from path. A missing file yields the built-in set.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Builtin(), nil
		}
		return nil, err
	}
	defer f.Close()

	return ParseFromReader(f)
}

// ParseFromReader parses presets from an io.Reader.
func ParseFromReader(r io.Reader) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses a YAML presets document.
func Parse(data []byte) (*Set, error) {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}
	return newSet(doc.Presets)
}

func newSet(list []Preset) (*Set, error) {
	s := &Set{byName: make(map[string]Preset, len(list))}
	for i, p := range list {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if key == "" {
			return nil, fmt.Errorf("preset %d: missing name", i)
		}
		if p.FPS <= 0 || p.Width <= 0 {
			return nil, fmt.Errorf("preset %q: fps and width must be positive", p.Name)
		}
		if _, dup := s.byName[key]; dup {
			return nil, fmt.Errorf("preset %q: defined twice", p.Name)
		}
		p.Name = key
		s.byName[key] = p
	}
	return s, nil
}

// Lookup finds a preset by case-insensitive name.
func (s *Set) Lookup(name string) (Preset, bool) {
	p, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// List returns all presets sorted by name.
func (s *Set) List() []Preset {
	out := make([]Preset, 0, len(s.byName))
	for _, p := range s.byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of presets.
func (s *Set) Len() int {
	return len(s.byName)
}
