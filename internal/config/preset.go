package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chunkwise/chunkwise/internal/errors"
)

// Preset is a named bundle of run settings from a preset file. Nil fields
// leave the current configuration untouched.
type Preset struct {
	Encoder     *string  `yaml:"encoder"`
	Q           *float64 `yaml:"q"`
	Preset      *int     `yaml:"preset"`
	Threads     *int     `yaml:"threads"`
	FilmGrain   *int     `yaml:"film_grain"`
	Mode        *string  `yaml:"mode"`
	Target      *float64 `yaml:"target"`
	ExtraParams []string `yaml:"extra_params"`
}

// PresetFile is the on-disk preset collection.
type PresetFile struct {
	WorkDir string            `yaml:"work_dir"`
	Presets map[string]Preset `yaml:"presets"`
}

// LoadPresets reads a YAML preset file.
func LoadPresets(path string) (*PresetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(fmt.Sprintf("failed to read preset file %s", path), err)
	}
	var pf PresetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("invalid preset file %s: %v", path, err))
	}
	return &pf, nil
}

// ApplyPreset overlays a named preset onto the config. Unknown names are a
// configuration error.
func (c *Config) ApplyPreset(pf *PresetFile, name string) error {
	p, ok := pf.Presets[name]
	if !ok {
		return errors.NewConfigError(fmt.Sprintf("preset %q not found in preset file", name))
	}
	if pf.WorkDir != "" && c.WorkDir == "" {
		c.WorkDir = pf.WorkDir
	}
	if p.Encoder != nil {
		c.Encoder = *p.Encoder
	}
	if p.Q != nil {
		c.Q = *p.Q
	}
	if p.Preset != nil {
		c.FinalPreset = *p.Preset
	}
	if p.Threads != nil {
		c.Threads = *p.Threads
	}
	if p.FilmGrain != nil {
		c.FilmGrain = *p.FilmGrain
	}
	if p.Mode != nil {
		c.Mode = *p.Mode
	}
	if p.Target != nil {
		c.Target = *p.Target
	}
	if len(p.ExtraParams) > 0 {
		c.ExtraParams = append(c.ExtraParams, p.ExtraParams...)
	}
	return nil
}
