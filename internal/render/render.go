// Package render converts logical key images into device-native encoded
// reports, memoizing results in a bounded LRU cache. The cache is purely an
// optimization: a hit returns byte-identical output to a fresh encode.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync/atomic"

	"github.com/disintegration/gift"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/streamduck/streamduckd/internal/model"
)

// DefaultCacheSize bounds the encoded-image cache when no capacity is
// configured. Encoded key images run a few KB to tens of KB each.
const DefaultCacheSize = 512

// Renderer renders and caches encoded key images. Safe for concurrent use.
type Renderer struct {
	cache *lru.Cache[string, [][]byte]

	encodes atomic.Uint64
	hits    atomic.Uint64
}

// New creates a Renderer with the given cache capacity in entries.
func New(capacity int) (*Renderer, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	cache, err := lru.New[string, [][]byte](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating render cache: %w", err)
	}
	return &Renderer{cache: cache}, nil
}

// Render returns the output report sequence painting img onto the given key.
// Results are cached by (model, key, content hash); entries for stale
// content age out through LRU eviction since their keys are never looked up
// again.
func (r *Renderer) Render(m *model.Model, key int, img *KeyImage) ([][]byte, error) {
	cacheKey := fmt.Sprintf("%s/%d/%016x", m.Name, key, img.ContentHash())
	if reports, ok := r.cache.Get(cacheKey); ok {
		r.hits.Add(1)
		return reports, nil
	}

	reports, err := m.EncodeImage(key, r.compose(m, img))
	if err != nil {
		return nil, err
	}
	r.encodes.Add(1)
	r.cache.Add(cacheKey, reports)
	return reports, nil
}

// Encodes returns how many fresh encodes have run (cache misses).
func (r *Renderer) Encodes() uint64 { return r.encodes.Load() }

// Hits returns how many renders were served from cache.
func (r *Renderer) Hits() uint64 { return r.hits.Load() }

// Purge drops every cached entry. Used when a profile reload replaces all
// imagery at once.
func (r *Renderer) Purge() { r.cache.Purge() }

// compose flattens a KeyImage to raster pixels at the model's native key
// resolution.
func (r *Renderer) compose(m *model.Model, k *KeyImage) *image.RGBA {
	rect := m.Bounds()
	img := image.NewRGBA(rect)

	bg := k.Background
	if bg.A == 0 {
		bg = color.RGBA{0, 0, 0, 255}
	}
	draw.Draw(img, rect, &image.Uniform{bg}, image.Point{}, draw.Src)

	// Icon occupies the full key, or the upper portion when a label needs
	// room underneath.
	iconBottom := rect.Max.Y
	if k.Text != "" {
		iconBottom = rect.Max.Y * 3 / 4
	}

	switch {
	case k.Pixels != nil:
		drawResized(img, k.Pixels, image.Rect(0, 0, rect.Max.X, iconBottom))
	case k.SVG != "":
		size := min(rect.Max.X, iconBottom)
		icon := rasterizeSVG(k.SVG, size, k.IconColor)
		x := (rect.Max.X - size) / 2
		y := (iconBottom - size) / 2
		draw.Draw(img, image.Rect(x, y, x+size, y+size), icon, image.Point{}, draw.Over)
	}

	if k.Text != "" {
		col := k.TextColor
		if col.A == 0 {
			col = color.RGBA{255, 255, 255, 255}
		}
		drawTextCentered(img, k.Text, rect.Max.X/2, rect.Max.Y-6, col)
	}

	return img
}

// drawResized resamples src to fill dst's target rectangle.
func drawResized(dst *image.RGBA, src image.Image, target image.Rectangle) {
	g := gift.New(gift.Resize(target.Dx(), target.Dy(), gift.LanczosResampling))
	resized := image.NewRGBA(g.Bounds(src.Bounds()))
	g.Draw(resized, src)
	draw.Draw(dst, target, resized, image.Point{}, draw.Over)
}

// rasterizeSVG renders SVG markup to a square image with the given color
// substituted for "currentColor".
func rasterizeSVG(svg string, size int, iconColor color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	if iconColor.A != 0 {
		hex := fmt.Sprintf("#%02x%02x%02x", iconColor.R, iconColor.G, iconColor.B)
		svg = strings.ReplaceAll(svg, "currentColor", hex)
	}

	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		// Bad markup renders as an empty icon rather than failing the key.
		return img
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)
	return img
}

// drawTextCentered draws text horizontally centered at (cx, baseline).
func drawTextCentered(img *image.RGBA, text string, cx, baseline int, col color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(cx - width/2), Y: fixed.I(baseline)},
	}
	d.DrawString(text)
}
