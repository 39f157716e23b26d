package model

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/bmp"
)

// Product IDs for supported hardware.
const (
	ProductMini       = 0x0063
	ProductMiniV2     = 0x0090
	ProductOriginal   = 0x0060
	ProductOriginalV2 = 0x006d
	ProductMK2        = 0x0080
	ProductXL         = 0x006c
	ProductXLV2       = 0x008f
)

func encodeBMP(w *bytes.Buffer, img image.Image) error {
	return bmp.Encode(w, img)
}

func encodeJPEG(w *bytes.Buffer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
}

// transposed flips an image across its main diagonal.
type transposed struct{ image.Image }

func (i transposed) At(x, y int) color.Color {
	b := i.Bounds()
	return i.Image.At(y-b.Min.Y+b.Min.X, x-b.Min.X+b.Min.Y)
}

func transpose(img image.Image) image.Image { return transposed{img} }

// rotated180 turns an image upside down.
type rotated180 struct{ image.Image }

func (i rotated180) At(x, y int) color.Color {
	b := i.Bounds()
	return i.Image.At(b.Dx()-x+2*b.Min.X, b.Dy()-y+2*b.Min.Y)
}

func rotate180(img image.Image) image.Image { return rotated180{img} }

// Gen1 image report header (16 bytes):
//
//	0x02 0x01 <page> 0x00 <last> <key+1> 0x00*10
func fillHeaderGen1(dst []byte, key, page, payload int, last bool) {
	dst[0] = 0x02
	dst[1] = 0x01
	dst[2] = byte(page)
	if last {
		dst[4] = 1
	}
	dst[5] = byte(key + 1)
}

// Gen2 image report header (8 bytes):
//
//	0x02 0x07 <key> <last> <payload le16> <page le16>
func fillHeaderGen2(dst []byte, key, page, payload int, last bool) {
	dst[0] = 0x02
	dst[1] = 0x07
	dst[2] = byte(key)
	if last {
		dst[3] = 1
	}
	binary.LittleEndian.PutUint16(dst[4:], uint16(payload))
	binary.LittleEndian.PutUint16(dst[6:], uint16(page))
}

var (
	brightnessGen1 = []byte{0x05, 0x55, 0xaa, 0xd1, 0x01}
	brightnessGen2 = []byte{0x03, 0x08}
	resetGen1      = []byte{0x0b, 0x63}
	resetGen2      = []byte{0x03, 0x02}
)

// gen1 builds a first-generation (BMP, feature length 17) table entry.
func gen1(name string, pid uint16, rows, cols, keyPx, imgReportLen int, transform func(image.Image) image.Image) *Model {
	return &Model{
		Name:      name,
		VendorID:  VendorElgato,
		ProductID: pid,
		Rows:      rows,
		Cols:      cols,
		KeySize:   image.Point{keyPx, keyPx},
		transform: transform,
		encode:    encodeBMP,

		imageReportLen: imgReportLen,
		imageHeaderLen: 16,
		fillHeader:     fillHeaderGen1,

		featureLen:       17,
		brightnessPrefix: brightnessGen1,
		resetPrefix:      resetGen1,

		keyStatesOffset: 1,
	}
}

// gen2 builds a second-generation (JPEG, feature length 32) table entry.
func gen2(name string, pid uint16, rows, cols, keyPx int) *Model {
	return &Model{
		Name:      name,
		VendorID:  VendorElgato,
		ProductID: pid,
		Rows:      rows,
		Cols:      cols,
		KeySize:   image.Point{keyPx, keyPx},
		transform: rotate180,
		encode:    encodeJPEG,

		imageReportLen: 1024,
		imageHeaderLen: 8,
		fillHeader:     fillHeaderGen2,

		featureLen:       32,
		brightnessPrefix: brightnessGen2,
		resetPrefix:      resetGen2,

		keyStatesOffset: 4,
	}
}

var table = []*Model{
	gen1("Stream Deck Mini", ProductMini, 2, 3, 80, 1024, transpose),
	gen1("Stream Deck Mini v2", ProductMiniV2, 2, 3, 80, 1024, transpose),
	gen1("Stream Deck Original", ProductOriginal, 3, 5, 72, 8191, rotate180),
	gen2("Stream Deck Original v2", ProductOriginalV2, 3, 5, 72),
	gen2("Stream Deck MK.2", ProductMK2, 3, 5, 72),
	gen2("Stream Deck XL", ProductXL, 4, 8, 96),
	gen2("Stream Deck XL v2", ProductXLV2, 4, 8, 96),
}
