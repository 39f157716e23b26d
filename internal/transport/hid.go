package transport

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/karalabe/hid"
)

// maxInputReport is large enough for every supported device's input report;
// gen2 hardware uses 512-byte reports.
const maxInputReport = 1024

// HID is the hidapi-backed Transport. Enumeration is filtered to a single
// vendor so unrelated HID devices (keyboards, mice) never show up.
type HID struct {
	vendorID uint16
}

// NewHID returns a Transport matching devices from the given USB vendor.
func NewHID(vendorID uint16) *HID {
	return &HID{vendorID: vendorID}
}

// Enumerate lists connected devices for the transport's vendor.
func (t *HID) Enumerate() ([]DeviceInfo, error) {
	if !hid.Supported() {
		return nil, fmt.Errorf("hidapi not supported on this platform: %w", ErrUnavailable)
	}
	var infos []DeviceInfo
	for _, d := range hid.Enumerate(t.vendorID, 0) {
		infos = append(infos, DeviceInfo{
			VendorID:  d.VendorID,
			ProductID: d.ProductID,
			Serial:    d.Serial,
			Product:   d.Product,
			Path:      d.Path,
		})
	}
	return infos, nil
}

// Open claims the device and starts its reader.
func (t *HID) Open(info DeviceInfo) (Handle, error) {
	for _, d := range hid.Enumerate(info.VendorID, info.ProductID) {
		if info.Path != "" && d.Path != info.Path {
			continue
		}
		if info.Serial != "" && d.Serial != info.Serial {
			continue
		}
		dev, err := d.Open()
		if err != nil {
			return nil, classifyOpenErr(err)
		}
		h := &hidHandle{
			dev:     dev,
			reports: make(chan []byte, 8),
			done:    make(chan struct{}),
		}
		go h.readLoop()
		return h, nil
	}
	return nil, fmt.Errorf("open %s: %w", info.ID(), ErrUnavailable)
}

func classifyOpenErr(err error) error {
	if os.IsPermission(err) || strings.Contains(err.Error(), "permission") {
		return fmt.Errorf("%v: %w", err, ErrPermission)
	}
	return fmt.Errorf("%v: %w", err, ErrUnavailable)
}

// hidHandle wraps an open hidapi device. hidapi reads are blocking with no
// timeout variant exposed, so a dedicated reader goroutine feeds complete
// reports into a channel and ReadReport selects against the deadline. The
// reader exits on the first I/O error, which is how disconnection surfaces.
type hidHandle struct {
	dev *hid.Device

	reports chan []byte
	done    chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
}

func (h *hidHandle) readLoop() {
	defer close(h.reports)
	buf := make([]byte, maxInputReport)
	for {
		n, err := h.dev.Read(buf)
		if err != nil || n <= 0 {
			return
		}
		report := make([]byte, n)
		copy(report, buf[:n])
		select {
		case h.reports <- report:
		case <-h.done:
			return
		}
	}
}

func (h *hidHandle) ReadReport(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case report, ok := <-h.reports:
		if !ok {
			return nil, ErrDisconnected
		}
		return report, nil
	case <-h.done:
		return nil, ErrDisconnected
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (h *hidHandle) WriteReport(data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	n, err := h.dev.Write(data)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrDisconnected)
	}
	if n != len(data) {
		return fmt.Errorf("short write %d/%d: %w", n, len(data), ErrProtocol)
	}
	return nil
}

func (h *hidHandle) SendFeature(data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.dev.SendFeatureReport(data); err != nil {
		return fmt.Errorf("%v: %w", err, ErrDisconnected)
	}
	return nil
}

func (h *hidHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		err = h.dev.Close()
	})
	return err
}
