// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/remoteplay/rpctl/internal/engine"
)

// Engine is a scriptable engine.Engine. Zero value connects successfully.
type Engine struct {
	CreateErr error
	StartErr  error
	// NoConnect keeps WaitConnected from ever succeeding.
	NoConnect bool
	// StopDelay makes Stop block before returning.
	StopDelay time.Duration
	// OnRequestIDR, when set, runs after the cached I-frame is dropped.
	OnRequestIDR func(h *Handle)

	mu      sync.Mutex
	handles []*Handle
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return "fake" }

// Create implements engine.Engine.
func (e *Engine) Create(info engine.ConnectInfo) (engine.Handle, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	h := &Handle{
		Info:   info,
		Frames: engine.NewFrameStore(),
		engine: e,
	}
	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()
	return h, nil
}

// Handles returns every handle created so far.
func (e *Engine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Handle, len(e.handles))
	copy(out, e.handles)
	return out
}

// Last returns the most recently created handle or nil.
func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// Handle is the fake session. Frames is exported so tests can push samples.
type Handle struct {
	Info   engine.ConnectInfo
	Frames *engine.FrameStore

	engine *Engine

	mu          sync.Mutex
	started     bool
	connected   bool
	stopped     bool
	destroyed   bool
	idrRequests int
	states      []engine.ControllerState
	controlErr  error
}

func (h *Handle) check() error {
	if h.destroyed {
		return engine.ErrHandleClosed
	}
	return nil
}

// Start implements engine.Handle.
func (h *Handle) Start() error {
	h.mu.Lock()
	if err := h.check(); err != nil {
		h.mu.Unlock()
		return err
	}
	if h.engine.StartErr != nil {
		h.mu.Unlock()
		return h.engine.StartErr
	}
	h.started = true
	connect := !h.engine.NoConnect
	if connect {
		h.connected = true
	}
	cb := h.Info.Callbacks
	h.mu.Unlock()

	cb.Log(engine.LogInfo, "session started")
	if connect {
		cb.Emit(engine.Event{Type: engine.EventConnected})
	}
	return nil
}

// WaitConnected implements engine.Handle.
func (h *Handle) WaitConnected(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		h.mu.Lock()
		err := h.check()
		connected := h.connected
		h.mu.Unlock()
		if err != nil {
			return false, err
		}
		if connected {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-tick.C:
		}
	}
}

// IsConnected implements engine.Handle.
func (h *Handle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected && !h.destroyed
}

// SetController implements engine.Handle.
func (h *Handle) SetController(state engine.ControllerState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return err
	}
	if !h.connected {
		return engine.ErrNotConnected
	}
	if h.controlErr != nil {
		return h.controlErr
	}
	h.states = append(h.states, state)
	return nil
}

// FailController makes later SetController calls return err.
func (h *Handle) FailController(err error) {
	h.mu.Lock()
	h.controlErr = err
	h.mu.Unlock()
}

// States returns every controller snapshot received.
func (h *Handle) States() []engine.ControllerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]engine.ControllerState, len(h.states))
	copy(out, h.states)
	return out
}

// RequestIDR implements engine.Handle.
func (h *Handle) RequestIDR() error {
	h.mu.Lock()
	if err := h.check(); err != nil {
		h.mu.Unlock()
		return err
	}
	if !h.connected {
		h.mu.Unlock()
		return engine.ErrNotConnected
	}
	h.idrRequests++
	h.mu.Unlock()

	h.Frames.ClearIFrame()
	if h.engine.OnRequestIDR != nil {
		h.engine.OnRequestIDR(h)
	}
	return nil
}

// IDRRequests reports how many times RequestIDR succeeded.
func (h *Handle) IDRRequests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.idrRequests
}

// HasIFrame implements engine.Handle.
func (h *Handle) HasIFrame() bool {
	if h.Closed() {
		return false
	}
	return h.Frames.HasIFrame()
}

// IFrame implements engine.Handle.
func (h *Handle) IFrame(buf []byte) (int, error) {
	if h.Closed() {
		return 0, engine.ErrHandleClosed
	}
	return h.Frames.IFrame(buf), nil
}

// ClearIFrame implements engine.Handle.
func (h *Handle) ClearIFrame() error {
	if h.Closed() {
		return engine.ErrHandleClosed
	}
	h.Frames.ClearIFrame()
	return nil
}

// Frame implements engine.Handle.
func (h *Handle) Frame(buf []byte) (int, error) {
	if h.Closed() {
		return 0, engine.ErrHandleClosed
	}
	return h.Frames.Frame(buf), nil
}

// FrameWithSequence implements engine.Handle.
func (h *Handle) FrameWithSequence(buf []byte) (int, uint64, error) {
	if h.Closed() {
		return 0, 0, engine.ErrHandleClosed
	}
	n, seq := h.Frames.FrameWithSequence(buf)
	return n, seq, nil
}

// Quit simulates the console ending the session.
func (h *Handle) Quit(reason string) {
	h.mu.Lock()
	h.connected = false
	cb := h.Info.Callbacks
	h.mu.Unlock()
	cb.Emit(engine.Event{Type: engine.EventQuit, Reason: reason})
}

// Stop implements engine.Handle.
func (h *Handle) Stop() error {
	if d := h.engine.StopDelay; d > 0 {
		time.Sleep(d)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return err
	}
	h.stopped = true
	h.connected = false
	return nil
}

// Destroy implements engine.Handle.
func (h *Handle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return engine.ErrHandleClosed
	}
	h.destroyed = true
	h.connected = false
	return nil
}

// Stopped reports whether Stop completed.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Closed reports whether Destroy was called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// ErrInjected is a convenient error for failure scripts.
var ErrInjected = errors.New("enginetest: injected failure")

// Annex B samples for tests.
var (
	SPS   = []byte{0, 0, 0, 1, 0x67, 0x42, 0x00, 0x1f}
	IDR   = []byte{0, 0, 0, 1, 0x65, 0x88, 0x84, 0x00}
	Inter = []byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}
)

// ProvideIFrame is an OnRequestIDR hook that answers with header + IDR.
func ProvideIFrame(h *Handle) {
	h.Frames.Push(SPS)
	h.Frames.Push(IDR)
}
