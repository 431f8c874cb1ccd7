package presets

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/signal"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrUnknownPreset is returned for a preset name that is not defined
var ErrUnknownPreset = errors.New("unknown preset")

// Preset is a named bundle of indicator requests and signal rules
type Preset struct {
	Name        string   `yaml:"-" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Indicators  []string `yaml:"indicators" json:"indicators"`
	Rules       []string `yaml:"rules" json:"rules"`
}

// Requests parses the preset's indicator requests
func (p Preset) Requests() ([]indicator.Request, error) {
	return indicator.ParseRequests(p.Indicators)
}

type file struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Set holds presets by name
type Set struct {
	presets map[string]Preset
}

// Defaults returns the built-in presets
func Defaults() (*Set, error) {
	s := &Set{presets: make(map[string]Preset)}
	if err := s.merge(defaultsYAML); err != nil {
		return nil, fmt.Errorf("parse built-in presets: %w", err)
	}
	return s, nil
}

// Load returns the built-in presets overlaid with the presets in path.
// An empty path, or a path that does not exist, yields the defaults.
func Load(path string) (*Set, error) {
	s, err := Defaults()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Presets file not found, using built-in presets", logger.String("path", path))
			return s, nil
		}
		return nil, fmt.Errorf("read presets: %w", err)
	}
	if err := s.merge(data); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}

	logger.Info("Loaded presets", logger.String("path", path), logger.Int("count", len(s.presets)))
	return s, nil
}

func (s *Set) merge(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for name, p := range f.Presets {
		if name == "" {
			return fmt.Errorf("preset name cannot be empty")
		}
		p.Name = name
		s.presets[name] = p
	}
	return nil
}

// Validate checks that every indicator and rule of every preset resolves
// against the given registries
func (s *Set) Validate(indicators *indicator.Registry, rules *signal.Registry) error {
	for _, name := range s.Names() {
		p := s.presets[name]
		reqs, err := p.Requests()
		if err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
		for _, req := range reqs {
			if _, err := indicators.Build(req); err != nil {
				return fmt.Errorf("preset %s: %w", name, err)
			}
		}
		for _, id := range p.Rules {
			if _, err := rules.Build(id); err != nil {
				return fmt.Errorf("preset %s: %w", name, err)
			}
		}
	}
	return nil
}

// Get returns the preset called name
func (s *Set) Get(name string) (Preset, error) {
	p, ok := s.presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Names returns the preset names in sorted order
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every preset sorted by name
func (s *Set) List() []Preset {
	out := make([]Preset, 0, len(s.presets))
	for _, name := range s.Names() {
		out = append(out, s.presets[name])
	}
	return out
}
