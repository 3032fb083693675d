package render

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset is a named volume rendering transfer setting. Window and level are
// fractions of the volume scalar range so one preset fits any dataset.
type Preset struct {
	Name    string   `yaml:"name" json:"name"`
	Window  float64  `yaml:"window" json:"window"`
	Level   float64  `yaml:"level" json:"level"`
	Opacity float64  `yaml:"opacity" json:"opacity"`
	Color   [3]uint8 `yaml:"color" json:"color"`
}

// Apply resolves the preset against a scalar range.
func (p Preset) Apply(min, max float64) WindowLevel {
	span := max - min
	return WindowLevel{Window: p.Window * span, Level: min + p.Level*span}
}

type PresetBook struct {
	Default string   `yaml:"default"`
	Presets []Preset `yaml:"presets"`
}

func DefaultPresets() *PresetBook {
	return &PresetBook{
		Default: "CT-MIP",
		Presets: []Preset{
			{Name: "CT-MIP", Window: 1, Level: 0.5, Opacity: 1, Color: [3]uint8{255, 255, 255}},
			{Name: "CT-Bone", Window: 0.35, Level: 0.75, Opacity: 1, Color: [3]uint8{255, 240, 210}},
			{Name: "CT-Soft-Tissue", Window: 0.2, Level: 0.45, Opacity: 0.9, Color: [3]uint8{240, 180, 160}},
			{Name: "MR-Default", Window: 0.8, Level: 0.4, Opacity: 1, Color: [3]uint8{255, 255, 255}},
		},
	}
}

// LoadPresets reads a preset file, falling back to the defaults when the
// file does not exist.
func LoadPresets(path string) (*PresetBook, error) {
	if path == "" {
		return DefaultPresets(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultPresets(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading presets file: %w", err)
	}
	book := &PresetBook{}
	if err := yaml.Unmarshal(data, book); err != nil {
		return nil, fmt.Errorf("error parsing presets file: %w", err)
	}
	if len(book.Presets) == 0 {
		return nil, fmt.Errorf("presets file %s defines no presets", path)
	}
	if book.Default == "" {
		book.Default = book.Presets[0].Name
	}
	return book, nil
}

func (b *PresetBook) Find(name string) (Preset, bool) {
	for _, p := range b.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

func (b *PresetBook) Names() []string {
	out := make([]string, len(b.Presets))
	for i, p := range b.Presets {
		out[i] = p.Name
	}
	return out
}
