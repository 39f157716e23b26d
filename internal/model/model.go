// Package model holds the static per-model device table: button grid
// geometry, image format and resolution, and report framing. Everything in
// this package is a pure translation between semantic values and device
// wire bytes; no I/O happens here.
package model

import (
	"bytes"
	"errors"
	"fmt"
	"image"
)

// Errors returned by translation routines.
var (
	// ErrUnknownModel means no table entry matches the vendor/product pair.
	ErrUnknownModel = errors.New("unknown device model")

	// ErrUnsupported means the source image cannot be converted to the
	// model's required resolution or encoding; the caller must resample
	// first.
	ErrUnsupported = errors.New("unsupported image format")

	// ErrBadReport means an input report is too short or malformed for
	// this model.
	ErrBadReport = errors.New("malformed input report")
)

// VendorElgato is the USB vendor ID shared by all supported devices.
const VendorElgato = 0x0fd9

// Model describes one hardware variant. Instances live in the static table
// in table.go and are shared, read-only.
type Model struct {
	Name      string
	VendorID  uint16
	ProductID uint16

	Rows int
	Cols int

	// KeySize is the native pixel resolution of one key's display.
	KeySize image.Point

	// transform reorients an image into the device's scan order before
	// encoding (older panels are mounted rotated or transposed).
	transform func(image.Image) image.Image

	// encode writes the device's native bitmap encoding (BMP on gen1
	// hardware, JPEG on gen2).
	encode func(*bytes.Buffer, image.Image) error

	// Image output reports are fixed-size pages: a short header followed
	// by payload, zero padded to imageReportLen.
	imageReportLen int
	imageHeaderLen int
	fillHeader     func(dst []byte, key, page, payload int, last bool)

	// Feature report prefixes, padded to featureLen on send.
	featureLen       int
	brightnessPrefix []byte
	resetPrefix      []byte

	// keyStatesOffset is where per-key press bytes start in input reports.
	keyStatesOffset int
}

// Lookup finds the model for a vendor/product pair.
func Lookup(vendorID, productID uint16) (*Model, error) {
	for _, m := range table {
		if m.VendorID == vendorID && m.ProductID == productID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%04x:%04x: %w", vendorID, productID, ErrUnknownModel)
}

// Keys returns the number of buttons on the device.
func (m *Model) Keys() int {
	return m.Rows * m.Cols
}

// Bounds returns the rectangle a key image must fill, anchored at origin.
func (m *Model) Bounds() image.Rectangle {
	return image.Rectangle{Max: m.KeySize}
}

// DecodeReport translates a raw input report into a full per-key snapshot,
// index order row-major. Raw reports always carry the complete state, so
// callers must diff against their last-known snapshot to find transitions.
func (m *Model) DecodeReport(report []byte) ([]bool, error) {
	n := m.Keys()
	if len(report) < m.keyStatesOffset+n {
		return nil, fmt.Errorf("%d byte report, need %d: %w", len(report), m.keyStatesOffset+n, ErrBadReport)
	}
	states := make([]bool, n)
	for i := range states {
		states[i] = report[m.keyStatesOffset+i] != 0
	}
	return states, nil
}

// EncodeImage converts a logical key image into the sequence of output
// reports that paint it onto the given key. The image must already be at
// the model's native resolution; anything else fails with ErrUnsupported.
func (m *Model) EncodeImage(key int, img image.Image) ([][]byte, error) {
	if key < 0 || key >= m.Keys() {
		return nil, fmt.Errorf("key %d out of range 0..%d: %w", key, m.Keys()-1, ErrUnsupported)
	}
	b := img.Bounds()
	if b.Dx() != m.KeySize.X || b.Dy() != m.KeySize.Y {
		return nil, fmt.Errorf("image is %dx%d, %s wants %dx%d: %w",
			b.Dx(), b.Dy(), m.Name, m.KeySize.X, m.KeySize.Y, ErrUnsupported)
	}

	var buf bytes.Buffer
	if err := m.encode(&buf, m.transform(img)); err != nil {
		return nil, fmt.Errorf("encoding for %s: %w", m.Name, err)
	}

	payloadPerPage := m.imageReportLen - m.imageHeaderLen
	encoded := buf.Bytes()

	var reports [][]byte
	for page := 0; len(encoded) > 0; page++ {
		payload := payloadPerPage
		last := false
		if payload >= len(encoded) {
			payload = len(encoded)
			last = true
		}
		report := make([]byte, m.imageReportLen)
		m.fillHeader(report, key, page, payload, last)
		copy(report[m.imageHeaderLen:], encoded[:payload])
		encoded = encoded[payload:]
		reports = append(reports, report)
	}
	return reports, nil
}

// Brightness builds the feature report setting panel brightness 0-100.
func (m *Model) Brightness(percent int) []byte {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	report := make([]byte, m.featureLen)
	copy(report, m.brightnessPrefix)
	report[len(m.brightnessPrefix)] = byte(percent)
	return report
}

// Reset builds the feature report that resets the device's display logic.
func (m *Model) Reset() []byte {
	report := make([]byte, m.featureLen)
	copy(report, m.resetPrefix)
	return report
}
