// Package session owns one physical device's lifetime: its open handle,
// read loop, button state, page stack and rendered imagery. A session has a
// single writer, its own loop goroutine; everything else talks to it
// through queued commands drained between reads.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/streamduck/streamduckd/internal/dispatch"
	"github.com/streamduck/streamduckd/internal/events"
	"github.com/streamduck/streamduckd/internal/model"
	"github.com/streamduck/streamduckd/internal/profile"
	"github.com/streamduck/streamduckd/internal/render"
	"github.com/streamduck/streamduckd/internal/transport"
)

// State is the session lifecycle state.
type State int32

const (
	Connecting State = iota
	Active
	Disconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Disconnecting:
		return "disconnecting"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// DefaultPollTimeout bounds each blocking read. It is also the worst-case
// shutdown latency and the resolution of hold detection.
const DefaultPollTimeout = 100 * time.Millisecond

// command runs inside the session loop, between reads.
type command func(*Session)

// Session drives one device. Create with New, run with Run.
type Session struct {
	info       transport.DeviceInfo
	handle     transport.Handle
	model      *model.Model
	renderer   *render.Renderer
	dispatcher *dispatch.Dispatcher
	bus        *events.Bus
	log        *zap.Logger

	pollTimeout time.Duration

	state atomic.Int32

	// Everything below is owned by the Run goroutine.
	pressed   []bool
	pressedAt []time.Time
	holdSent  []bool
	seq       uint64
	pages     []string

	cmds chan command

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// New wires a session for an already-opened device handle.
func New(info transport.DeviceInfo, handle transport.Handle, m *model.Model,
	renderer *render.Renderer, dispatcher *dispatch.Dispatcher, bus *events.Bus,
	log *zap.Logger, pollTimeout time.Duration) *Session {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	n := m.Keys()
	return &Session{
		info:        info,
		handle:      handle,
		model:       m,
		renderer:    renderer,
		dispatcher:  dispatcher,
		bus:         bus,
		log:         log.With(zap.String("device", info.ID()), zap.String("model", m.Name)),
		pollTimeout: pollTimeout,
		pressed:     make([]bool, n),
		pressedAt:   make([]time.Time, n),
		holdSent:    make([]bool, n),
		cmds:        make(chan command, 32),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the stable device identity.
func (s *Session) ID() string { return s.info.ID() }

// Serial returns the device serial number.
func (s *Session) Serial() string { return s.info.Serial }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Shutdown asks the loop to exit after its current read completes. Safe to
// call multiple times and from any goroutine.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// Run executes the session until disconnect or shutdown. It owns the
// handle: no other goroutine may touch it while Run is live, and the handle
// is closed before Run returns.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	s.state.Store(int32(Connecting))

	// Fresh connection, fresh state: everything released, sequence reset.
	for i := range s.pressed {
		s.pressed[i] = false
		s.holdSent[i] = false
	}
	s.seq = 0

	s.applyProfile(s.dispatcher.Profile())

	s.state.Store(int32(Active))
	s.bus.Emit(events.Event{Kind: events.DeviceConnected, Device: s.ID(), Key: -1})
	s.log.Info("session active", zap.Int("keys", s.model.Keys()))

	s.readLoop(ctx)

	s.state.Store(int32(Disconnecting))
	s.handle.Close()
	s.state.Store(int32(Closed))
	s.bus.Emit(events.Event{Kind: events.DeviceDisconnected, Device: s.ID(), Key: -1})
	s.log.Info("session closed")
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		default:
		}

		report, err := s.handle.ReadReport(s.pollTimeout)
		switch {
		case err == nil:
			s.handleReport(report)
		case errors.Is(err, transport.ErrTimeout):
			// Quiet interval; fall through to housekeeping.
		case errors.Is(err, transport.ErrDisconnected):
			s.log.Info("device disconnected")
			return
		default:
			s.bus.Emit(events.Event{Kind: events.ProtocolError, Device: s.ID(), Key: -1, Err: err})
		}

		s.checkHolds()
		s.drainCommands()
	}
}

// handleReport decodes a full-snapshot input report and dispatches every
// transition relative to the last-known state.
func (s *Session) handleReport(report []byte) {
	states, err := s.model.DecodeReport(report)
	if err != nil {
		s.bus.Emit(events.Event{Kind: events.ProtocolError, Device: s.ID(), Key: -1, Err: err})
		return
	}

	now := time.Now()
	for key, down := range states {
		if down == s.pressed[key] {
			continue
		}
		s.pressed[key] = down
		s.seq++
		if down {
			s.pressedAt[key] = now
			s.holdSent[key] = false
			s.dispatchKey(key, profile.Press)
		} else {
			s.dispatchKey(key, profile.Release)
		}
	}
}

// checkHolds emits at most one hold per press, once a key has stayed down
// past the profile threshold. Runs between reads, so hold resolution is the
// poll timeout.
func (s *Session) checkHolds() {
	p := s.dispatcher.Profile()
	if p == nil {
		return
	}
	threshold := p.HoldAfter()
	now := time.Now()
	for key, down := range s.pressed {
		if !down || s.holdSent[key] {
			continue
		}
		if now.Sub(s.pressedAt[key]) >= threshold {
			s.holdSent[key] = true
			s.seq++
			s.dispatchKey(key, profile.Hold)
		}
	}
}

func (s *Session) dispatchKey(key int, kind profile.EventKind) {
	s.dispatcher.Dispatch(s, dispatch.Request{
		Device: s.ID(),
		Serial: s.Serial(),
		Key:    key,
		Kind:   kind,
		Page:   s.currentPage(),
		Seq:    s.seq,
	})
}

// drainCommands applies queued mutations. Runs only between reads so an
// image write can never interleave with an in-flight report.
func (s *Session) drainCommands() {
	for {
		select {
		case cmd := <-s.cmds:
			cmd(s)
		default:
			return
		}
	}
}

func (s *Session) currentPage() string {
	if len(s.pages) == 0 {
		return ""
	}
	return s.pages[len(s.pages)-1]
}

// applyProfile resets the page stack and brightness for a (re)loaded
// profile and repaints the device. Runs inside the loop.
func (s *Session) applyProfile(p *profile.Profile) {
	if p == nil {
		s.pages = nil
		return
	}
	s.pages = []string{p.StartPageFor(s.Serial())}
	if err := s.handle.SendFeature(s.model.Brightness(p.BrightnessFor(s.Serial()))); err != nil {
		s.log.Warn("setting brightness", zap.Error(err))
	}
	s.renderPage(p)
}

// renderPage pushes the current page's imagery to every key. A failed write
// for one key is logged and retried on the next page refresh; it never
// blocks the session.
func (s *Session) renderPage(p *profile.Profile) {
	page := s.currentPage()
	for key := 0; key < s.model.Keys(); key++ {
		img := p.KeyImage(page, key)
		if img == nil {
			img = &render.KeyImage{}
		}
		reports, err := s.renderer.Render(s.model, key, img)
		if err != nil {
			s.bus.Emit(events.Event{Kind: events.ProtocolError, Device: s.ID(), Key: key, Err: err})
			continue
		}
		for _, report := range reports {
			if err := s.handle.WriteReport(report); err != nil {
				if errors.Is(err, transport.ErrDisconnected) {
					return
				}
				s.log.Warn("writing key image", zap.Int("key", key), zap.Error(err))
				break
			}
		}
	}
}
