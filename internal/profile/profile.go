// Package profile defines the user-facing configuration unit: pages of key
// imagery and action bindings, loaded from YAML with per-device overrides.
// A profile is swapped as a unit and never mutated after load.
package profile

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamduck/streamduckd/internal/render"
)

// EventKind is the kind of button transition a binding attaches to.
type EventKind string

const (
	Press   EventKind = "press"
	Release EventKind = "release"
	Hold    EventKind = "hold"
)

// DefaultHoldThreshold is how long a key must stay down to count as a hold
// when the profile does not say otherwise.
const DefaultHoldThreshold = 500 * time.Millisecond

// Binding maps a key event to an action with parameters. Action names are
// resolved against the dispatcher's handler registry at dispatch time.
type Binding struct {
	Action string            `yaml:"action"`
	Params map[string]string `yaml:"params"`
}

// ImageSpec is the YAML form of a key's imagery. Icon paths are resolved
// relative to the profile file and loaded eagerly at profile load, so the
// in-memory profile carries content, not paths.
type ImageSpec struct {
	Background string `yaml:"background"`
	Icon       string `yaml:"icon"`
	IconColor  string `yaml:"icon_color"`
	Text       string `yaml:"text"`
	TextColor  string `yaml:"text_color"`
}

// Key is one key's configuration on a page.
type Key struct {
	Image   *ImageSpec `yaml:"image"`
	Press   *Binding   `yaml:"press"`
	Release *Binding   `yaml:"release"`
	Hold    *Binding   `yaml:"hold"`

	img *render.KeyImage
}

// Binding returns the binding for the given event kind, or nil.
func (k *Key) Binding(kind EventKind) *Binding {
	switch kind {
	case Press:
		return k.Press
	case Release:
		return k.Release
	case Hold:
		return k.Hold
	}
	return nil
}

// Page is a named set of key configurations, sparse over the key grid.
type Page struct {
	Keys map[int]*Key `yaml:"keys"`
}

// DeviceOverride adjusts profile settings for one device, keyed by serial.
type DeviceOverride struct {
	StartPage  string `yaml:"start_page"`
	Brightness *int   `yaml:"brightness"`
}

// Profile is the complete set of bindings and imagery active at one time.
type Profile struct {
	Brightness    int                       `yaml:"brightness"`
	HoldThreshold string                    `yaml:"hold_threshold"`
	StartPage     string                    `yaml:"start_page"`
	Pages         map[string]*Page          `yaml:"pages"`
	Devices       map[string]DeviceOverride `yaml:"devices"`

	holdThreshold time.Duration
}

// Load reads and validates a profile file, resolving and loading icon
// assets relative to the file's directory.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := p.finish(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return p, nil
}

// finish validates fields and resolves imagery. Split from Load so tests
// can build profiles from literals.
func (p *Profile) finish(dir string) error {
	if p.Brightness == 0 {
		p.Brightness = 80
	}
	// Environment override, mostly for development against dim panels.
	if v := os.Getenv("STREAMDUCKD_BRIGHTNESS"); v != "" {
		var b int
		if _, err := fmt.Sscanf(v, "%d", &b); err == nil {
			p.Brightness = b
		}
	}

	p.holdThreshold = DefaultHoldThreshold
	if p.HoldThreshold != "" {
		d, err := time.ParseDuration(p.HoldThreshold)
		if err != nil {
			return fmt.Errorf("hold_threshold: %w", err)
		}
		p.holdThreshold = d
	}

	if len(p.Pages) == 0 {
		return fmt.Errorf("profile has no pages")
	}
	if p.StartPage == "" {
		return fmt.Errorf("profile has no start_page")
	}
	if _, ok := p.Pages[p.StartPage]; !ok {
		return fmt.Errorf("start_page %q not among pages", p.StartPage)
	}
	for name, ov := range p.Devices {
		if ov.StartPage != "" {
			if _, ok := p.Pages[ov.StartPage]; !ok {
				return fmt.Errorf("device %s start_page %q not among pages", name, ov.StartPage)
			}
		}
	}

	for name, page := range p.Pages {
		for idx, key := range page.Keys {
			if idx < 0 {
				return fmt.Errorf("page %s: negative key index %d", name, idx)
			}
			img, err := buildKeyImage(dir, key.Image)
			if err != nil {
				return fmt.Errorf("page %s key %d: %w", name, idx, err)
			}
			key.img = img
		}
	}
	return nil
}

// HoldAfter returns the configured hold threshold.
func (p *Profile) HoldAfter() time.Duration {
	return p.holdThreshold
}

// PageNamed returns the named page, if present.
func (p *Profile) PageNamed(name string) (*Page, bool) {
	page, ok := p.Pages[name]
	return page, ok
}

// Binding resolves the binding for (page, key, kind); nil when unbound.
// Unbound keys are expected, not an error.
func (p *Profile) Binding(page string, key int, kind EventKind) *Binding {
	pg, ok := p.Pages[page]
	if !ok {
		return nil
	}
	k, ok := pg.Keys[key]
	if !ok {
		return nil
	}
	return k.Binding(kind)
}

// KeyImage returns the logical image for (page, key); nil when the key has
// no configured imagery (rendered blank).
func (p *Profile) KeyImage(page string, key int) *render.KeyImage {
	pg, ok := p.Pages[page]
	if !ok {
		return nil
	}
	k, ok := pg.Keys[key]
	if !ok {
		return nil
	}
	return k.img
}

// StartPageFor returns the starting page for a device serial, honoring
// per-device overrides.
func (p *Profile) StartPageFor(serial string) string {
	if ov, ok := p.Devices[serial]; ok && ov.StartPage != "" {
		return ov.StartPage
	}
	return p.StartPage
}

// BrightnessFor returns the brightness for a device serial, honoring
// per-device overrides.
func (p *Profile) BrightnessFor(serial string) int {
	if ov, ok := p.Devices[serial]; ok && ov.Brightness != nil {
		return *ov.Brightness
	}
	return p.Brightness
}

// buildKeyImage turns an ImageSpec into a loaded logical image.
func buildKeyImage(dir string, spec *ImageSpec) (*render.KeyImage, error) {
	if spec == nil {
		return nil, nil
	}
	img := &render.KeyImage{
		Text: spec.Text,
	}
	var err error
	if img.Background, err = parseColor(spec.Background); err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	if img.IconColor, err = parseColor(spec.IconColor); err != nil {
		return nil, fmt.Errorf("icon_color: %w", err)
	}
	if img.TextColor, err = parseColor(spec.TextColor); err != nil {
		return nil, fmt.Errorf("text_color: %w", err)
	}

	if spec.Icon != "" {
		path := spec.Icon
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if strings.EqualFold(filepath.Ext(path), ".svg") {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("icon: %w", err)
			}
			img.SVG = string(data)
		} else {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("icon: %w", err)
			}
			decoded, _, err := image.Decode(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("icon %s: %w", path, err)
			}
			img.Pixels = decoded
		}
	}
	return img, nil
}

// parseColor parses "#rrggbb" or "#rrggbbaa"; empty input is the zero color
// (renderer substitutes its defaults).
func parseColor(s string) (color.RGBA, error) {
	if s == "" {
		return color.RGBA{}, nil
	}
	s = strings.TrimPrefix(s, "#")
	var c color.RGBA
	c.A = 255
	switch len(s) {
	case 6:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
			return c, fmt.Errorf("bad color %q", s)
		}
	case 8:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A); err != nil {
			return c, fmt.Errorf("bad color %q", s)
		}
	default:
		return c, fmt.Errorf("bad color %q", s)
	}
	return c, nil
}
