package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const basicProfile = `
brightness: 60
hold_threshold: 300ms
start_page: main
pages:
  main:
    keys:
      2:
        image:
          background: "#203040"
          text: Play
        press:
          action: exec
          params:
            command: playerctl
            args: play-pause
      5:
        press:
          action: page
          params:
            op: push
            page: lights
  lights:
    keys:
      0:
        press:
          action: page
          params:
            op: pop
devices:
  AB12CD:
    start_page: lights
    brightness: 30
`

func TestLoad(t *testing.T) {
	p, err := Load(writeProfile(t, basicProfile))
	require.NoError(t, err)

	assert.Equal(t, 60, p.Brightness)
	assert.Equal(t, 300*time.Millisecond, p.HoldAfter())
	assert.Len(t, p.Pages, 2)

	b := p.Binding("main", 2, Press)
	require.NotNil(t, b)
	assert.Equal(t, "exec", b.Action)
	assert.Equal(t, "playerctl", b.Params["command"])

	// Unbound tuples resolve to nil, not an error.
	assert.Nil(t, p.Binding("main", 2, Release))
	assert.Nil(t, p.Binding("main", 3, Press))
	assert.Nil(t, p.Binding("nope", 0, Press))
}

func TestLoadKeyImages(t *testing.T) {
	p, err := Load(writeProfile(t, basicProfile))
	require.NoError(t, err)

	img := p.KeyImage("main", 2)
	require.NotNil(t, img)
	assert.Equal(t, "Play", img.Text)
	assert.Equal(t, uint8(0x20), img.Background.R)
	assert.Equal(t, uint8(0x40), img.Background.B)
	assert.Equal(t, uint8(0xff), img.Background.A)

	assert.Nil(t, p.KeyImage("main", 5), "key without imagery renders blank")
}

func TestDeviceOverrides(t *testing.T) {
	p, err := Load(writeProfile(t, basicProfile))
	require.NoError(t, err)

	assert.Equal(t, "lights", p.StartPageFor("AB12CD"))
	assert.Equal(t, 30, p.BrightnessFor("AB12CD"))

	assert.Equal(t, "main", p.StartPageFor("OTHER"))
	assert.Equal(t, 60, p.BrightnessFor("OTHER"))
}

func TestLoadRejectsMissingStartPage(t *testing.T) {
	_, err := Load(writeProfile(t, `
pages:
  main:
    keys: {}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_page")
}

func TestLoadRejectsUnknownStartPage(t *testing.T) {
	_, err := Load(writeProfile(t, `
start_page: missing
pages:
  main:
    keys: {}
`))
	require.Error(t, err)
}

func TestLoadRejectsBadHoldThreshold(t *testing.T) {
	_, err := Load(writeProfile(t, `
start_page: main
hold_threshold: soon
pages:
  main:
    keys: {}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hold_threshold")
}

func TestLoadRejectsMissingIcon(t *testing.T) {
	_, err := Load(writeProfile(t, `
start_page: main
pages:
  main:
    keys:
      0:
        image:
          icon: does-not-exist.svg
`))
	require.Error(t, err)
}

func TestLoadSVGIcon(t *testing.T) {
	dir := t.TempDir()
	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><circle cx="12" cy="12" r="10"/></svg>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dot.svg"), []byte(svg), 0o644))
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
start_page: main
pages:
  main:
    keys:
      0:
        image:
          icon: dot.svg
          icon_color: "#ff0000"
`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	img := p.KeyImage("main", 0)
	require.NotNil(t, img)
	assert.Contains(t, img.SVG, "<svg")
	assert.Equal(t, uint8(0xff), img.IconColor.R)
}

func TestParseColor(t *testing.T) {
	c, err := parseColor("#10ff20")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x10), c.R)
	assert.Equal(t, uint8(0xff), c.G)
	assert.Equal(t, uint8(0xff), c.A)

	c, err = parseColor("10ff2080")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), c.A)

	_, err = parseColor("red")
	require.Error(t, err)

	c, err = parseColor("")
	require.NoError(t, err)
	assert.Zero(t, c.A)
}

func TestDefaultHoldThreshold(t *testing.T) {
	p, err := Load(writeProfile(t, `
start_page: main
pages:
  main:
    keys: {}
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultHoldThreshold, p.HoldAfter())
	assert.Equal(t, 80, p.Brightness, "brightness defaults when unset")
}
