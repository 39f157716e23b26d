package model

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	m, err := Lookup(VendorElgato, ProductMK2)
	require.NoError(t, err)
	assert.Equal(t, "Stream Deck MK.2", m.Name)
	assert.Equal(t, 15, m.Keys())

	_, err = Lookup(VendorElgato, 0xffff)
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = Lookup(0x1234, ProductMK2)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestDecodeReport(t *testing.T) {
	mini, err := Lookup(VendorElgato, ProductMini)
	require.NoError(t, err)
	require.Equal(t, 6, mini.Keys())

	// Key state bytes start at offset 1 on gen1 hardware.
	report := []byte{0x01, 1, 0, 0, 0, 0, 1}
	states, err := mini.DecodeReport(report)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, false, false, true}, states)

	// Reports are full snapshots; all-zero means everything released.
	states, err = mini.DecodeReport([]byte{0x01, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, make([]bool, 6), states)
}

func TestDecodeReportTooShort(t *testing.T) {
	mini, err := Lookup(VendorElgato, ProductMini)
	require.NoError(t, err)

	_, err = mini.DecodeReport([]byte{0x01, 1, 0})
	assert.ErrorIs(t, err, ErrBadReport)
}

func TestDecodeReportGen2Offset(t *testing.T) {
	mk2, err := Lookup(VendorElgato, ProductMK2)
	require.NoError(t, err)

	report := make([]byte, 4+mk2.Keys())
	report[4+7] = 1
	states, err := mk2.DecodeReport(report)
	require.NoError(t, err)
	for i, down := range states {
		assert.Equal(t, i == 7, down, "key %d", i)
	}
}

func keyImage(m *Model, c color.RGBA) image.Image {
	img := image.NewRGBA(m.Bounds())
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

func TestEncodeImageGen2Framing(t *testing.T) {
	mk2, err := Lookup(VendorElgato, ProductMK2)
	require.NoError(t, err)

	reports, err := mk2.EncodeImage(3, keyImage(mk2, color.RGBA{200, 30, 30, 255}))
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	for i, report := range reports {
		assert.Len(t, report, 1024)
		assert.Equal(t, byte(0x02), report[0])
		assert.Equal(t, byte(0x07), report[1])
		assert.Equal(t, byte(3), report[2], "key index in header")

		last := i == len(reports)-1
		if last {
			assert.Equal(t, byte(1), report[3])
		} else {
			assert.Equal(t, byte(0), report[3])
		}
		assert.Equal(t, uint16(i), binary.LittleEndian.Uint16(report[6:]), "page number")

		payload := binary.LittleEndian.Uint16(report[4:])
		assert.NotZero(t, payload)
		if !last {
			assert.Equal(t, uint16(1024-8), payload)
		}
	}
}

func TestEncodeImageGen1Framing(t *testing.T) {
	mini, err := Lookup(VendorElgato, ProductMini)
	require.NoError(t, err)

	reports, err := mini.EncodeImage(2, keyImage(mini, color.RGBA{0, 0, 200, 255}))
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	for i, report := range reports {
		assert.Len(t, report, 1024)
		assert.Equal(t, byte(0x02), report[0])
		assert.Equal(t, byte(0x01), report[1])
		assert.Equal(t, byte(i), report[2], "page number")
		assert.Equal(t, byte(3), report[5], "gen1 headers carry key+1")
	}
	assert.Equal(t, byte(1), reports[len(reports)-1][4], "last-page flag")
}

func TestEncodeImageWrongSize(t *testing.T) {
	mk2, err := Lookup(VendorElgato, ProductMK2)
	require.NoError(t, err)

	_, err = mk2.EncodeImage(0, image.NewRGBA(image.Rect(0, 0, 10, 10)))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestEncodeImageKeyOutOfRange(t *testing.T) {
	mini, err := Lookup(VendorElgato, ProductMini)
	require.NoError(t, err)

	_, err = mini.EncodeImage(6, keyImage(mini, color.RGBA{A: 255}))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = mini.EncodeImage(-1, keyImage(mini, color.RGBA{A: 255}))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestBrightnessReport(t *testing.T) {
	mini, err := Lookup(VendorElgato, ProductMini)
	require.NoError(t, err)

	report := mini.Brightness(55)
	assert.Len(t, report, 17)
	assert.Equal(t, []byte{0x05, 0x55, 0xaa, 0xd1, 0x01, 55}, report[:6])

	// Out-of-range values clamp instead of wrapping.
	assert.Equal(t, byte(100), mini.Brightness(250)[5])
	assert.Equal(t, byte(0), mini.Brightness(-10)[5])

	mk2, err := Lookup(VendorElgato, ProductMK2)
	require.NoError(t, err)
	report = mk2.Brightness(80)
	assert.Len(t, report, 32)
	assert.Equal(t, []byte{0x03, 0x08, 80}, report[:3])
}

func TestResetReport(t *testing.T) {
	mk2, err := Lookup(VendorElgato, ProductMK2)
	require.NoError(t, err)
	report := mk2.Reset()
	assert.Len(t, report, 32)
	assert.Equal(t, []byte{0x03, 0x02}, report[:2])
}
