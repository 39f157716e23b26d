// Package dispatch maps button events to configured actions and executes
// them on a bounded worker pool. Each dispatch is isolated: one failing or
// slow action never stalls a device's read loop nor affects other bindings.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/streamduck/streamduckd/internal/events"
	"github.com/streamduck/streamduckd/internal/profile"
)

// Request identifies one button transition to dispatch.
type Request struct {
	Device string
	Serial string
	Key    int
	Kind   profile.EventKind

	// Page is the session's current page when the event fired; binding
	// lookup happens against it, not against whatever page is current by
	// the time a worker runs.
	Page string

	// Seq is the session's transition sequence number, for ordering in
	// logs.
	Seq uint64
}

// SessionControl is the surface an action gets for mutating a device. All
// mutations are queued into the owning session's loop, preserving the
// single-writer invariant.
type SessionControl interface {
	ID() string
	Serial() string
	PushPage(name string)
	PopPage()
	SetPage(name string)
	SetBrightness(percent int)
}

// SessionLookup resolves other devices for cross-device actions. Actions
// must go through this rather than holding session references.
type SessionLookup interface {
	// Find matches a device by ID or by bare serial.
	Find(idOrSerial string) (SessionControl, bool)
}

// Env is everything a handler may touch while executing.
type Env struct {
	Request  Request
	Binding  *profile.Binding
	Session  SessionControl
	Sessions SessionLookup
}

// Handler executes one action kind. Handlers are registered by name; the
// catalog is open, builtins and external handlers register identically.
type Handler func(ctx context.Context, env Env) error

type job struct {
	env Env
}

// Dispatcher owns the handler registry, the active profile snapshot, and
// the action worker pool.
type Dispatcher struct {
	log *zap.Logger
	bus *events.Bus

	profile  atomic.Pointer[profile.Profile]
	sessions atomic.Pointer[sessionLookupBox]

	mu       sync.RWMutex
	handlers map[string]Handler

	queue   chan job
	workers int
	wg      sync.WaitGroup

	startOnce sync.Once
	stop      context.CancelFunc
}

type sessionLookupBox struct{ l SessionLookup }

// Defaults for the action worker pool.
const (
	DefaultQueueSize = 64
	DefaultWorkers   = 4
)

// New creates a Dispatcher with the given queue capacity and worker count;
// zero values pick the defaults.
func New(log *zap.Logger, bus *events.Bus, queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	d := &Dispatcher{
		log:      log,
		bus:      bus,
		handlers: make(map[string]Handler),
		queue:    make(chan job, queueSize),
	}
	d.workers = workers
	return d
}

// Register adds a handler for an action name, replacing any previous one.
func (d *Dispatcher) Register(action string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = h
}

// SetSessions wires in the registry's lookup. Called once during startup,
// after the registry exists.
func (d *Dispatcher) SetSessions(l SessionLookup) {
	d.sessions.Store(&sessionLookupBox{l: l})
}

// SetProfile atomically swaps the active profile. In-flight dispatches
// complete against the snapshot they loaded; no dispatch observes a
// mixture.
func (d *Dispatcher) SetProfile(p *profile.Profile) {
	d.profile.Store(p)
}

// Profile returns the currently active profile snapshot; may be nil before
// the first load.
func (d *Dispatcher) Profile() *profile.Profile {
	return d.profile.Load()
}

// Start launches the worker pool. Workers exit when ctx is cancelled and
// the queue drains.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		ctx, d.stop = context.WithCancel(ctx)
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx)
		}
	})
}

// Stop cancels the workers and waits for in-flight actions to finish.
func (d *Dispatcher) Stop() {
	if d.stop != nil {
		d.stop()
	}
	d.wg.Wait()
}

// Dispatch resolves the binding for a button transition and queues its
// action. Unbound tuples are a no-op. Never blocks: when the queue is full
// the newest request is dropped and reported as backpressure.
func (d *Dispatcher) Dispatch(sess SessionControl, req Request) {
	p := d.profile.Load()
	if p == nil {
		return
	}
	binding := p.Binding(req.Page, req.Key, req.Kind)
	if binding == nil {
		return
	}

	var lookup SessionLookup
	if box := d.sessions.Load(); box != nil {
		lookup = box.l
	}

	j := job{env: Env{
		Request:  req,
		Binding:  binding,
		Session:  sess,
		Sessions: lookup,
	}}
	select {
	case d.queue <- j:
	default:
		d.bus.Emit(events.Event{
			Kind:   events.Backpressure,
			Device: req.Device,
			Key:    req.Key,
			Err:    fmt.Errorf("action queue full, dropping %s %s", binding.Action, req.Kind),
		})
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.queue:
			d.run(ctx, j)
		}
	}
}

// run executes one action, containing any failure to this dispatch.
func (d *Dispatcher) run(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			d.bus.Emit(events.Event{
				Kind:   events.ActionFailed,
				Device: j.env.Request.Device,
				Key:    j.env.Request.Key,
				Err:    fmt.Errorf("action %s panicked: %v", j.env.Binding.Action, r),
			})
		}
	}()

	d.mu.RLock()
	h, ok := d.handlers[j.env.Binding.Action]
	d.mu.RUnlock()
	if !ok {
		d.bus.Emit(events.Event{
			Kind:   events.ActionFailed,
			Device: j.env.Request.Device,
			Key:    j.env.Request.Key,
			Err:    fmt.Errorf("no handler for action %q", j.env.Binding.Action),
		})
		return
	}

	if err := h(ctx, j.env); err != nil {
		d.bus.Emit(events.Event{
			Kind:   events.ActionFailed,
			Device: j.env.Request.Device,
			Key:    j.env.Request.Key,
			Err:    fmt.Errorf("action %s: %w", j.env.Binding.Action, err),
		})
	}
}
