// Package registry tracks active device sessions across hot-plug events.
// It is the only component that creates or removes sessions; it never
// reaches into a live session's state.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/streamduck/streamduckd/internal/dispatch"
	"github.com/streamduck/streamduckd/internal/events"
	"github.com/streamduck/streamduckd/internal/model"
	"github.com/streamduck/streamduckd/internal/profile"
	"github.com/streamduck/streamduckd/internal/render"
	"github.com/streamduck/streamduckd/internal/session"
	"github.com/streamduck/streamduckd/internal/transport"
)

// DefaultRefreshInterval is the hot-plug polling period.
const DefaultRefreshInterval = 2 * time.Second

// Registry is the process-wide table of active device sessions.
type Registry struct {
	transport   transport.Transport
	renderer    *render.Renderer
	dispatcher  *dispatch.Dispatcher
	bus         *events.Bus
	log         *zap.Logger
	pollTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New creates a registry. Call Run (or Refresh) to start tracking devices.
func New(t transport.Transport, renderer *render.Renderer, d *dispatch.Dispatcher,
	bus *events.Bus, log *zap.Logger, pollTimeout time.Duration) *Registry {
	r := &Registry{
		transport:   t,
		renderer:    renderer,
		dispatcher:  d,
		bus:         bus,
		log:         log,
		pollTimeout: pollTimeout,
		sessions:    make(map[string]*session.Session),
	}
	d.SetSessions(r)
	return r
}

// Refresh re-enumerates the transport: opens sessions for newly seen
// devices, asks sessions whose device vanished to shut down, and reaps
// sessions that have finished closing.
func (r *Registry) Refresh(ctx context.Context) error {
	infos, err := r.transport.Enumerate()
	if err != nil {
		return fmt.Errorf("enumerating devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[string]bool, len(infos))
	for _, info := range infos {
		present[info.ID()] = true
		if _, tracked := r.sessions[info.ID()]; tracked {
			continue
		}
		r.open(ctx, info)
	}

	for id, s := range r.sessions {
		select {
		case <-s.Done():
			delete(r.sessions, id)
			continue
		default:
		}
		if !present[id] {
			// Device gone from the bus; the session's read will fail soon
			// anyway, but don't wait for it.
			s.Shutdown()
		}
	}
	return nil
}

// open starts a session for a new device. Failures are reported and the
// device is skipped until the next refresh. Caller holds r.mu.
func (r *Registry) open(ctx context.Context, info transport.DeviceInfo) {
	m, err := model.Lookup(info.VendorID, info.ProductID)
	if err != nil {
		r.log.Debug("ignoring unknown device", zap.String("device", info.ID()))
		return
	}
	handle, err := r.transport.Open(info)
	if err != nil {
		if errors.Is(err, transport.ErrPermission) {
			r.log.Warn("no permission to open device", zap.String("device", info.ID()), zap.Error(err))
		} else {
			r.log.Warn("device unavailable", zap.String("device", info.ID()), zap.Error(err))
		}
		return
	}

	s := session.New(info, handle, m, r.renderer, r.dispatcher, r.bus, r.log, r.pollTimeout)
	r.sessions[info.ID()] = s
	go s.Run(ctx)
}

// Run refreshes immediately, then on every tick until ctx is cancelled. An
// error on the first refresh is fatal: it means the transport layer itself
// is unusable, not that no devices are present.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if err := r.Refresh(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				// Transient enumeration failures after startup are logged,
				// not fatal; existing sessions keep running.
				r.log.Warn("refresh failed", zap.Error(err))
			}
		}
	}
}

// Find implements dispatch.SessionLookup: match by device ID, falling back
// to bare serial.
func (r *Registry) Find(idOrSerial string) (dispatch.SessionControl, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[idOrSerial]; ok {
		return s, true
	}
	for _, s := range r.sessions {
		if s.Serial() == idOrSerial {
			return s, true
		}
	}
	return nil, false
}

// Sessions returns a snapshot of active session IDs.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// LoadProfile atomically swaps the active profile and triggers a full
// image refresh on every active session. Dispatches in flight complete
// against whichever snapshot they loaded, never a mixture.
func (r *Registry) LoadProfile(p *profile.Profile) {
	r.dispatcher.SetProfile(p)

	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Reload(p)
	}
	r.bus.Emit(events.Event{Kind: events.ProfileLoaded, Key: -1})
}

// Close shuts down every session and waits for teardown, bounded by each
// session's poll timeout.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Shutdown()
	}
	for _, s := range sessions {
		<-s.Done()
	}
}
