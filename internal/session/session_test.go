package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamduck/streamduckd/internal/dispatch"
	"github.com/streamduck/streamduckd/internal/events"
	"github.com/streamduck/streamduckd/internal/model"
	"github.com/streamduck/streamduckd/internal/profile"
	"github.com/streamduck/streamduckd/internal/render"
	"github.com/streamduck/streamduckd/internal/session"
	"github.com/streamduck/streamduckd/internal/transport"
)

const pollTimeout = 10 * time.Millisecond

func loadProfile(t *testing.T, contents string) *profile.Profile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	p, err := profile.Load(path)
	require.NoError(t, err)
	return p
}

type env struct {
	handle *transport.FakeHandle
	sess   *session.Session
	disp   *dispatch.Dispatcher
	bus    *events.Bus
}

// startSession spins up a running session on a fake six-key device.
func startSession(t *testing.T, ctx context.Context, p *profile.Profile) *env {
	t.Helper()

	info := transport.DeviceInfo{
		VendorID:  model.VendorElgato,
		ProductID: model.ProductMini,
		Serial:    "TEST01",
	}
	fake := transport.NewFake()
	fh := fake.Plug(info)
	handle, err := fake.Open(info)
	require.NoError(t, err)

	m, err := model.Lookup(info.VendorID, info.ProductID)
	require.NoError(t, err)
	require.Equal(t, 6, m.Keys())

	renderer, err := render.New(64)
	require.NoError(t, err)

	bus := events.NewBus(zap.NewNop())
	disp := dispatch.New(zap.NewNop(), bus, 0, 1)
	disp.SetProfile(p)
	disp.Start(ctx)
	t.Cleanup(disp.Stop)

	sess := session.New(info, handle, m, renderer, disp, bus, zap.NewNop(), pollTimeout)
	go sess.Run(ctx)

	require.Eventually(t, func() bool { return sess.State() == session.Active },
		2*time.Second, pollTimeout, "session never became active")

	return &env{handle: fh, sess: sess, disp: disp, bus: bus}
}

// pressReport builds a gen1 input report with the given keys down.
func pressReport(keys ...int) []byte {
	report := make([]byte, 7)
	report[0] = 0x01
	for _, k := range keys {
		report[1+k] = 1
	}
	return report
}

func TestPressDispatchesExactlyOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := startSession(t, ctx, loadProfile(t, `
start_page: main
pages:
  main:
    keys:
      2:
        press:
          action: a
`))

	var count atomic.Int32
	e.disp.Register("a", func(ctx context.Context, env dispatch.Env) error {
		count.Add(1)
		return nil
	})

	e.handle.InjectReport(pressReport(2))
	e.handle.InjectReport(pressReport())

	require.Eventually(t, func() bool { return count.Load() == 1 },
		2*time.Second, pollTimeout, "press action never ran")

	// The release must not fire the press binding again.
	time.Sleep(10 * pollTimeout)
	assert.Equal(t, int32(1), count.Load())
}

func TestInitialImagePush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := startSession(t, ctx, loadProfile(t, `
brightness: 45
start_page: main
pages:
  main:
    keys:
      0:
        image:
          background: "#112233"
          text: Hi
`))

	// All six keys get painted on activation, bound or not.
	written := e.handle.Written()
	assert.NotEmpty(t, written)
	for _, report := range written {
		assert.Equal(t, byte(0x02), report[0], "image reports only")
	}

	// Brightness goes out as a feature report during connect.
	features := e.handle.Features()
	require.NotEmpty(t, features)
	assert.Equal(t, []byte{0x05, 0x55, 0xaa, 0xd1, 0x01, 45}, features[0][:6])
}

func TestDisconnectMidReadClosesSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := startSession(t, ctx, loadProfile(t, `
start_page: main
pages:
  main:
    keys: {}
`))

	sub := e.bus.Subscribe()
	e.handle.Disconnect()

	require.Eventually(t, func() bool { return e.sess.State() == session.Closed },
		2*time.Second, pollTimeout)
	assert.True(t, e.handle.Closed())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Kind == events.DeviceDisconnected {
				return
			}
		case <-deadline:
			t.Fatal("no disconnect event emitted")
		}
	}
}

func TestShutdownClosesSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := startSession(t, ctx, loadProfile(t, `
start_page: main
pages:
  main:
    keys: {}
`))

	e.sess.Shutdown()
	select {
	case <-e.sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not shut down")
	}
	assert.Equal(t, session.Closed, e.sess.State())
}

func TestFailingActionDoesNotStallDevice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := startSession(t, ctx, loadProfile(t, `
start_page: main
pages:
  main:
    keys:
      0:
        press:
          action: boom
      1:
        press:
          action: ok
`))

	e.disp.Register("boom", func(ctx context.Context, env dispatch.Env) error {
		return errors.New("configured to fail")
	})
	ok := make(chan struct{}, 1)
	e.disp.Register("ok", func(ctx context.Context, env dispatch.Env) error {
		ok <- struct{}{}
		return nil
	})

	e.handle.InjectReport(pressReport(0))
	e.handle.InjectReport(pressReport())
	e.handle.InjectReport(pressReport(1))

	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("event after failing action never dispatched")
	}
}

func TestHoldFiresOncePerPress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := startSession(t, ctx, loadProfile(t, `
hold_threshold: 50ms
start_page: main
pages:
  main:
    keys:
      3:
        hold:
          action: held
`))

	var holds atomic.Int32
	e.disp.Register("held", func(ctx context.Context, env dispatch.Env) error {
		holds.Add(1)
		return nil
	})

	e.handle.InjectReport(pressReport(3))
	require.Eventually(t, func() bool { return holds.Load() == 1 },
		2*time.Second, pollTimeout, "hold never fired")

	// Keeping the key down must not fire hold again.
	time.Sleep(10 * pollTimeout)
	assert.Equal(t, int32(1), holds.Load())

	// A new press starts a new hold cycle.
	e.handle.InjectReport(pressReport())
	e.handle.InjectReport(pressReport(3))
	require.Eventually(t, func() bool { return holds.Load() == 2 },
		2*time.Second, pollTimeout)
}

func TestPageSwitchChangesBindingsAndRepaints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := startSession(t, ctx, loadProfile(t, `
start_page: main
pages:
  main:
    keys:
      0:
        press:
          action: on-main
  second:
    keys:
      0:
        press:
          action: on-second
        image:
          background: "#ff0000"
`))

	ran := make(chan string, 4)
	e.disp.Register("on-main", func(ctx context.Context, env dispatch.Env) error {
		ran <- "main"
		return nil
	})
	e.disp.Register("on-second", func(ctx context.Context, env dispatch.Env) error {
		ran <- "second"
		return nil
	})

	before := len(e.handle.Written())
	e.sess.PushPage("second")

	// The repaint happens between reads, once the queued command drains.
	require.Eventually(t, func() bool { return len(e.handle.Written()) > before },
		2*time.Second, pollTimeout, "page switch never repainted")

	e.handle.InjectReport(pressReport(0))
	e.handle.InjectReport(pressReport())

	select {
	case page := <-ran:
		assert.Equal(t, "second", page, "binding must resolve on the pushed page")
	case <-time.After(2 * time.Second):
		t.Fatal("press after page switch never dispatched")
	}

	// Pop restores the original page's bindings.
	e.sess.PopPage()
	time.Sleep(5 * pollTimeout)
	e.handle.InjectReport(pressReport(0))
	select {
	case page := <-ran:
		assert.Equal(t, "main", page)
	case <-time.After(2 * time.Second):
		t.Fatal("press after page pop never dispatched")
	}
}

func TestMalformedReportIsContained(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := startSession(t, ctx, loadProfile(t, `
start_page: main
pages:
  main:
    keys:
      1:
        press:
          action: a
`))

	hit := make(chan struct{}, 1)
	e.disp.Register("a", func(ctx context.Context, env dispatch.Env) error {
		hit <- struct{}{}
		return nil
	})

	sub := e.bus.Subscribe()

	// Truncated report: reported as a protocol error, session keeps going.
	e.handle.InjectReport([]byte{0x01, 1})
	e.handle.InjectReport(pressReport(1))

	select {
	case <-hit:
	case <-time.After(2 * time.Second):
		t.Fatal("session stalled after malformed report")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Kind == events.ProtocolError {
				return
			}
		case <-deadline:
			t.Fatal("malformed report not reported")
		}
	}
}
