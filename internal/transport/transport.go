// Package transport provides raw USB HID communication with stream deck
// style devices: enumeration, open/claim, report reads and writes.
package transport

import (
	"errors"
	"fmt"
	"time"
)

// Errors classifying transport failures. Callers are expected to test with
// errors.Is; everything else coming out of this package wraps one of these.
var (
	// ErrUnavailable means a device could not be opened because it is gone
	// or busy. The device is skipped until the next enumeration.
	ErrUnavailable = errors.New("device unavailable")

	// ErrPermission means the OS denied access to the device node.
	ErrPermission = errors.New("permission denied")

	// ErrTimeout means a read completed without a report within the
	// caller's deadline. Transient; the caller retries.
	ErrTimeout = errors.New("read timed out")

	// ErrDisconnected means the device went away mid-operation. Terminal
	// for the handle; reopening is the registry's job on its next refresh.
	ErrDisconnected = errors.New("device disconnected")

	// ErrProtocol means a report was malformed or rejected by the device.
	ErrProtocol = errors.New("protocol error")
)

// DeviceInfo identifies a physical device before it is opened. Immutable;
// its ID is the stable key for session lookup.
type DeviceInfo struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
	Product   string

	// Path is the OS-specific device node path used to open the device.
	Path string
}

// ID returns the stable identity string for the device, usable as a map key
// and in profile device overrides.
func (d DeviceInfo) ID() string {
	return fmt.Sprintf("%04x:%04x:%s", d.VendorID, d.ProductID, d.Serial)
}

// Transport enumerates and opens devices. Implementations: the hidapi-backed
// HID transport, and Fake for tests.
type Transport interface {
	// Enumerate lists currently connected candidate devices. An error here
	// means the transport layer itself is unusable, not that zero devices
	// are present.
	Enumerate() ([]DeviceInfo, error)

	// Open claims the device for exclusive use. Fails with ErrUnavailable
	// or ErrPermission.
	Open(info DeviceInfo) (Handle, error)
}

// Handle is an open device. All I/O is blocking with caller-supplied
// timeouts. Reads never return partial reports: a report arrives whole or
// the call fails.
type Handle interface {
	// ReadReport blocks until one full input report is available or the
	// timeout elapses. Returns the report bytes, ErrTimeout, or
	// ErrDisconnected.
	ReadReport(timeout time.Duration) ([]byte, error)

	// WriteReport sends one output report. Fails with ErrDisconnected or
	// ErrProtocol.
	WriteReport(data []byte) error

	// SendFeature sends a feature report (brightness, reset).
	SendFeature(data []byte) error

	// Close releases the device. Safe to call more than once.
	Close() error
}
