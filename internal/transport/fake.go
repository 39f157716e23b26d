package transport

import (
	"sync"
	"time"
)

// Fake is an in-memory Transport for tests. Devices are plugged and
// unplugged programmatically; input reports are
// injected with InjectReport and written reports are captured for
// inspection.
type Fake struct {
	mu      sync.Mutex
	devices map[string]*FakeHandle
}

// NewFake returns an empty fake transport.
func NewFake() *Fake {
	return &Fake{devices: make(map[string]*FakeHandle)}
}

// Plug makes a device visible to Enumerate and returns its handle for
// report injection. Plugging an already-present ID replaces it.
func (f *Fake) Plug(info DeviceInfo) *FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &FakeHandle{
		info:    info,
		reports: make(chan []byte, 32),
		done:    make(chan struct{}),
	}
	f.devices[info.ID()] = h
	return h
}

// Unplug removes the device from enumeration and fails its open handle.
func (f *Fake) Unplug(id string) {
	f.mu.Lock()
	h, ok := f.devices[id]
	if ok {
		delete(f.devices, id)
	}
	f.mu.Unlock()
	if ok {
		h.Disconnect()
	}
}

func (f *Fake) Enumerate() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := make([]DeviceInfo, 0, len(f.devices))
	for _, h := range f.devices {
		infos = append(infos, h.info)
	}
	return infos, nil
}

func (f *Fake) Open(info DeviceInfo) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.devices[info.ID()]
	if !ok {
		return nil, ErrUnavailable
	}
	return h, nil
}

// FakeHandle is the open-device side of Fake.
type FakeHandle struct {
	info    DeviceInfo
	reports chan []byte

	mu       sync.Mutex
	written  [][]byte
	features [][]byte
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

// InjectReport queues one input report for the next ReadReport.
func (h *FakeHandle) InjectReport(report []byte) {
	cp := make([]byte, len(report))
	copy(cp, report)
	h.reports <- cp
}

// Disconnect simulates the device going away: pending and future reads and
// writes fail with ErrDisconnected.
func (h *FakeHandle) Disconnect() {
	h.doneOnce.Do(func() { close(h.done) })
}

// Written returns a copy of all output reports written so far.
func (h *FakeHandle) Written() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.written))
	copy(out, h.written)
	return out
}

// Features returns a copy of all feature reports sent so far.
func (h *FakeHandle) Features() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.features))
	copy(out, h.features)
	return out
}

// Closed reports whether Close has been called.
func (h *FakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *FakeHandle) ReadReport(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil, ErrDisconnected
	case report := <-h.reports:
		return report, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (h *FakeHandle) WriteReport(data []byte) error {
	select {
	case <-h.done:
		return ErrDisconnected
	default:
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	h.mu.Lock()
	h.written = append(h.written, cp)
	h.mu.Unlock()
	return nil
}

func (h *FakeHandle) SendFeature(data []byte) error {
	select {
	case <-h.done:
		return ErrDisconnected
	default:
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	h.mu.Lock()
	h.features = append(h.features, cp)
	h.mu.Unlock()
	return nil
}

func (h *FakeHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.Disconnect()
	return nil
}
