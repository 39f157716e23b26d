package render

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"

	"github.com/cespare/xxhash/v2"
)

// KeyImage is the device-independent description of one key's content:
// a background color, optional icon (inline SVG markup or decoded pixels),
// and an optional text label. It carries data, never file paths, so its
// content hash is pure.
type KeyImage struct {
	Background color.RGBA

	// SVG is inline SVG markup; occurrences of "currentColor" are replaced
	// with IconColor before rasterizing.
	SVG       string
	IconColor color.RGBA

	// Pixels is direct raster content, resampled to the key size. Takes
	// precedence over SVG.
	Pixels image.Image

	Text      string
	TextColor color.RGBA
}

// ContentHash returns a hash covering everything that affects the rendered
// output. Two KeyImages with equal hashes render to identical bytes.
func (k *KeyImage) ContentHash() uint64 {
	h := xxhash.New()
	var scratch [8]byte

	writeColor := func(c color.RGBA) {
		h.Write([]byte{c.R, c.G, c.B, c.A})
	}
	writeColor(k.Background)
	writeColor(k.IconColor)
	writeColor(k.TextColor)
	h.WriteString(k.SVG)
	h.WriteString("\x00")
	h.WriteString(k.Text)
	h.WriteString("\x00")

	if k.Pixels != nil {
		b := k.Pixels.Bounds()
		binary.LittleEndian.PutUint64(scratch[:], uint64(b.Dx())<<32|uint64(uint32(b.Dy())))
		h.Write(scratch[:])
		h.Write(rgbaPixels(k.Pixels).Pix)
	}
	return h.Sum64()
}

// rgbaPixels returns the image's backing RGBA form, converting if needed.
func rgbaPixels(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
