package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/genricoloni/inkframe/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	// EmulatorModel is the key the emulator uses for the 5.65" panel
	EmulatorModel = "epd5in65"
	// HardwareModel is the key the real 5.65" ACeP panel uses
	HardwareModel = "epd5in65f"
)

// builtinProfiles lists the supported ePaper panels and their resolutions
var builtinProfiles = map[string][2]int{
	"epd1in54":   {200, 200},
	"epd2in7":    {264, 176},
	"epd2ing":    {152, 152},
	"epd2in13":   {250, 122},
	"epd2in13v2": {250, 122},
	"epd2in66":   {296, 152},
	"epd3in7":    {416, 240},
	"epd3in52":   {400, 300},
	"epd4in2":    {400, 300},
	"epd4in3":    {800, 600},
	"epd5in65":   {600, 448},
	"epd5in65f":  {600, 448},
	"epd5in83":   {648, 480},
	"epd6in0":    {800, 600},
	"epd6in2":    {1448, 1072},
	"epd7in5":    {800, 480},
	"epd9in7":    {1200, 825},
	"epd10in3":   {1872, 1404},
	"epd11in6":   {2560, 1600},
	"epd12in48":  {1304, 984},
}

// ProfileRegistry maps model identifiers to display profiles
type ProfileRegistry struct {
	profiles map[string]domain.DisplayProfile
}

// profilesFile is the YAML layout accepted by LoadProfilesFile
type profilesFile struct {
	Models map[string]struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"models"`
}

// NewProfileRegistry returns a registry holding the built-in panels
func NewProfileRegistry() *ProfileRegistry {
	r := &ProfileRegistry{profiles: make(map[string]domain.DisplayProfile, len(builtinProfiles))}
	for model, size := range builtinProfiles {
		r.profiles[model] = domain.DisplayProfile{ModelID: model, Width: size[0], Height: size[1]}
	}
	return r
}

// Register adds or replaces a profile
func (r *ProfileRegistry) Register(model string, width, height int) error {
	if model == "" {
		return fmt.Errorf("profile model cannot be empty")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid resolution for %s: %dx%d", model, width, height)
	}
	r.profiles[model] = domain.DisplayProfile{ModelID: model, Width: width, Height: height}
	return nil
}

// LoadProfilesFile merges the models declared in a YAML file into the registry
func (r *ProfileRegistry) LoadProfilesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read profiles file: %w", err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse profiles file: %w", err)
	}

	for model, size := range file.Models {
		if err := r.Register(model, size.Width, size.Height); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the profile registered for model
func (r *ProfileRegistry) Lookup(model string) (domain.DisplayProfile, error) {
	p, ok := r.profiles[model]
	if !ok {
		return domain.DisplayProfile{}, fmt.Errorf("unknown display model %q (known: %v)", model, r.Models())
	}
	return p, nil
}

// Models returns the registered model identifiers in sorted order
func (r *ProfileRegistry) Models() []string {
	models := make([]string, 0, len(r.profiles))
	for m := range r.profiles {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Profiles returns every registered profile sorted by model
func (r *ProfileRegistry) Profiles() []domain.DisplayProfile {
	out := make([]domain.DisplayProfile, 0, len(r.profiles))
	for _, m := range r.Models() {
		out = append(out, r.profiles[m])
	}
	return out
}

// normalizeModel swaps the 5.65" key so the emulator and the real panel
// can share one DISPLAY setting
func normalizeModel(model string, simulator bool) string {
	switch {
	case simulator && model == HardwareModel:
		return EmulatorModel
	case !simulator && model == EmulatorModel:
		return HardwareModel
	default:
		return model
	}
}
