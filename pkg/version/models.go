package version

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed models/*.yaml
var modelFS embed.FS

// Manifest lists the capability profiles of known ACE models.
type Manifest struct {
	Models []ModelProfile `yaml:"models"`
}

// ModelProfile describes one model's fixed capabilities. MinFirmware
// is the oldest firmware known to implement the full command set;
// older units still connect, the mismatch is only recorded.
type ModelProfile struct {
	Name        string      `yaml:"name"`
	Channels    int         `yaml:"channels"`
	MinFirmware string      `yaml:"min_firmware"`
	Feed        FeedLimits  `yaml:"feed"`
	Dryer       DryerLimits `yaml:"dryer"`
}

// FeedLimits bounds the speed parameter of feed and retract.
type FeedLimits struct {
	MinSpeed int `yaml:"min_speed"`
	MaxSpeed int `yaml:"max_speed"`
}

// DryerLimits bounds dryer operation.
type DryerLimits struct {
	MaxTemp         int `yaml:"max_temp"`
	DefaultDuration int `yaml:"default_duration_minutes"`
}

var (
	manifestOnce sync.Once
	manifest     *Manifest
	manifestErr  error
)

// LoadManifest returns the embedded model manifest, parsed once.
func LoadManifest() (*Manifest, error) {
	manifestOnce.Do(func() {
		data, err := modelFS.ReadFile("models/ace.yaml")
		if err != nil {
			manifestErr = fmt.Errorf("model manifest missing: %w", err)
			return
		}
		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			manifestErr = fmt.Errorf("parsing model manifest: %w", err)
			return
		}
		manifest = &m
	})
	return manifest, manifestErr
}

// DefaultProfile is the profile assumed for models the manifest does
// not know: the common four-channel unit with the documented feed speed
// range and the conservative dryer limit.
func DefaultProfile() ModelProfile {
	return ModelProfile{
		Name:     "unknown",
		Channels: 4,
		Feed:     FeedLimits{MinSpeed: 10, MaxSpeed: 80},
		Dryer:    DryerLimits{MaxTemp: 45, DefaultDuration: 240},
	}
}

// Lookup resolves the capability profile for a model string as reported
// by get_info. Exact name matches win; otherwise the longest manifest
// name contained in the reported string does, so "Anycubic ACE Pro V2"
// resolves to the Pro profile. Unknown models get DefaultProfile and
// ok = false.
func Lookup(model string) (ModelProfile, bool) {
	m, err := LoadManifest()
	if err != nil {
		return DefaultProfile(), false
	}

	reported := strings.ToLower(strings.TrimSpace(model))
	var best *ModelProfile
	for i := range m.Models {
		name := strings.ToLower(m.Models[i].Name)
		if name == reported {
			return m.Models[i], true
		}
		if strings.Contains(reported, name) {
			if best == nil || len(m.Models[i].Name) > len(best.Name) {
				best = &m.Models[i]
			}
		}
	}
	if best != nil {
		return *best, true
	}
	return DefaultProfile(), false
}

// Models returns the manifest's model names, sorted.
func Models() ([]string, error) {
	m, err := LoadManifest()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.Models))
	for _, p := range m.Models {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names, nil
}
