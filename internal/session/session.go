// Package session owns the lifecycle of one console connection: it opens an
// engine handle, keeps the callbacks that handle reports to, exposes the
// frame source used by the stream package, and tears the handle down.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/controller"
	"github.com/remoteplay/rpctl/internal/engine"
)

// State is a lifecycle state.
type State string

const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateFailed        State = "failed"
)

var (
	// ErrConnection wraps every failure to establish a session.
	ErrConnection = errors.New("session: connection failed")
	// ErrInvalidState is returned for transitions the current state forbids.
	ErrInvalidState = errors.New("session: invalid state")
	// ErrStopTimeout reports that the engine did not stop in time and the
	// handle was torn down forcibly.
	ErrStopTimeout = errors.New("session: engine stop timed out")
)

// StateListener observes transitions. It is called without the session lock.
type StateListener func(old, new State, s *Session)

// Session is one console connection. Failed is terminal: build a new
// Session to try again.
type Session struct {
	cfg    Config
	engine engine.Engine
	ctrl   *controller.Controller
	logger zerolog.Logger

	// callbacks stay attached to the session for as long as a handle may
	// invoke them.
	callbacks engine.Callbacks

	mu         sync.RWMutex
	state      State
	handle     engine.Handle
	since      time.Time
	lastErr    error
	quitReason string
	connCtx    context.Context
	connCancel context.CancelFunc

	listenersMu sync.RWMutex
	listeners   []StateListener
}

// New creates an idle session for cfg on eng.
func New(cfg Config, eng engine.Engine) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:    cfg,
		engine: eng,
		state:  StateIdle,
		since:  time.Now(),
		logger: log.With().Str("host", cfg.Name).Str("engine", eng.Name()).Logger(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.connCtx, s.connCancel = ctx, cancel
	s.callbacks = engine.Callbacks{OnLog: s.onEngineLog, OnEvent: s.onEngineEvent}
	s.ctrl = controller.New(s)
	return s
}

// Config returns the effective configuration.
func (s *Session) Config() Config { return s.cfg }

// Variant returns the console generation.
func (s *Session) Variant() Variant { return s.cfg.Variant }

// Controller returns the session's controller aggregator.
func (s *Session) Controller() *controller.Controller { return s.ctrl }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Context is cancelled when the current connection ends. Before the first
// successful Connect it is already cancelled.
func (s *Session) Context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connCtx
}

// Done is shorthand for Context().Done().
func (s *Session) Done() <-chan struct{} { return s.Context().Done() }

// AddListener registers a transition observer.
func (s *Session) AddListener(l StateListener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

// setStateLocked records a transition and returns a notifier to call after
// the lock is released.
func (s *Session) setStateLocked(next State) func() {
	prev := s.state
	if prev == next {
		return func() {}
	}
	s.state = next
	s.since = time.Now()
	s.logger.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("session state changed")
	return func() {
		s.listenersMu.RLock()
		ls := append([]StateListener(nil), s.listeners...)
		s.listenersMu.RUnlock()
		for _, l := range ls {
			l(prev, next, s)
		}
	}
}

// Connect opens the session. It is valid from Idle; on an already connected
// session it logs a warning and returns nil. Any failure moves the session
// to Failed after the partially built handle has been released.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		s.logger.Warn().Msg("already connected")
		return nil
	case StateIdle:
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: connect from %s", ErrInvalidState, st)
	}
	s.quitReason = ""
	notify := s.setStateLocked(StateConnecting)
	s.mu.Unlock()
	notify()

	info, err := s.cfg.ConnectInfo()
	if err != nil {
		return s.fail(nil, err)
	}
	info.Callbacks = s.callbacks

	s.logger.Info().
		Str("address", s.cfg.Host).
		Str("resolution", info.Resolution.String()).
		Int("fps", int(info.FPS)).
		Str("variant", s.cfg.Variant.String()).
		Msg("connecting")

	h, err := s.engine.Create(info)
	if err != nil {
		return s.fail(nil, err)
	}
	if err := h.Start(); err != nil {
		return s.fail(h, err)
	}
	ok, err := h.WaitConnected(ctx, s.cfg.ConnectTimeout)
	if err != nil {
		return s.fail(h, err)
	}
	if !ok {
		s.mu.RLock()
		reason := s.quitReason
		s.mu.RUnlock()
		if reason == "" {
			reason = fmt.Sprintf("not connected after %s", s.cfg.ConnectTimeout)
		}
		return s.fail(h, errors.New(reason))
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// The engine quit between WaitConnected and here.
		st, reason := s.state, s.quitReason
		s.mu.Unlock()
		return s.fail(h, fmt.Errorf("session ended while connecting (%s): %s", st, reason))
	}
	s.handle = h
	s.connCtx, s.connCancel = context.WithCancel(context.Background())
	notify = s.setStateLocked(StateConnected)
	s.mu.Unlock()
	notify()

	s.logger.Info().Msg("connected")
	return nil
}

// fail releases h (if any), moves to Failed and returns the wrapped error.
func (s *Session) fail(h engine.Handle, cause error) error {
	if h != nil {
		if err := s.release(context.Background(), h); err != nil {
			s.logger.Warn().Err(err).Msg("releasing failed handle")
		}
	}
	err := fmt.Errorf("%w: %v", ErrConnection, cause)
	s.mu.Lock()
	s.lastErr = err
	notify := s.setStateLocked(StateFailed)
	s.mu.Unlock()
	notify()
	s.logger.Error().Err(cause).Msg("connection failed")
	return err
}

// Disconnect stops and releases the handle. From Connected the session
// returns to Idle; a Failed session with a live handle stays Failed. It is a
// no-op when there is nothing to release. The stop is bounded by the
// configured stop timeout and ctx; when either expires the handle is torn
// down forcibly and ErrStopTimeout is returned.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	h := s.handle
	if h == nil || (s.state != StateConnected && s.state != StateFailed) {
		s.mu.Unlock()
		return nil
	}
	failed := s.state == StateFailed
	notify := func() {}
	if !failed {
		notify = s.setStateLocked(StateDisconnecting)
	}
	s.connCancel()
	s.mu.Unlock()
	notify()

	s.logger.Info().Msg("disconnecting")
	err := s.release(ctx, h)

	s.mu.Lock()
	s.handle = nil
	notify = func() {}
	if !failed {
		notify = s.setStateLocked(StateIdle)
	}
	s.mu.Unlock()
	notify()

	if err == nil {
		s.logger.Info().Msg("disconnected")
	}
	return err
}

// release stops h with a bounded wait, then destroys it. When the stop does
// not finish in time the handle is destroyed without waiting for it.
func (s *Session) release(ctx context.Context, h engine.Handle) error {
	stopped := make(chan error, 1)
	go func() { stopped <- h.Stop() }()

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case err := <-stopped:
		if err != nil && !errors.Is(err, engine.ErrHandleClosed) {
			s.logger.Warn().Err(err).Msg("engine stop reported an error")
		}
		if err := h.Destroy(); err != nil && !errors.Is(err, engine.ErrHandleClosed) {
			return fmt.Errorf("session: destroy: %w", err)
		}
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	s.logger.Error().Dur("timeout", s.cfg.StopTimeout).Msg("engine did not stop, forcing teardown")
	go func() {
		if err := h.Destroy(); err != nil && !errors.Is(err, engine.ErrHandleClosed) {
			s.logger.Warn().Err(err).Msg("forced destroy failed")
		}
	}()
	return ErrStopTimeout
}

func (s *Session) onEngineLog(level engine.LogLevel, msg string) {
	s.logger.WithLevel(level.ZerologLevel()).Str("source", "engine").Msg(msg)
}

func (s *Session) onEngineEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventConnected:
		s.logger.Debug().Msg("engine reported connected")
	case engine.EventLoginPINRequest:
		s.logger.Warn().Msg("console requested a login PIN, which is not supported")
	case engine.EventQuit:
		s.mu.Lock()
		s.quitReason = ev.Reason
		if s.state != StateConnected {
			s.mu.Unlock()
			s.logger.Debug().Str("reason", ev.Reason).Msg("engine quit")
			return
		}
		s.lastErr = fmt.Errorf("%w: console ended the session: %s", ErrConnection, ev.Reason)
		s.connCancel()
		notify := s.setStateLocked(StateFailed)
		s.mu.Unlock()
		notify()
		s.logger.Warn().Str("reason", ev.Reason).Msg("session quit")
	}
}

// With connects, runs fn and always disconnects afterwards, even when fn
// fails or panics.
func With(ctx context.Context, cfg Config, eng engine.Engine, fn func(*Session) error) (err error) {
	s := New(cfg, eng)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if derr := s.Disconnect(context.Background()); derr != nil && err == nil {
			err = derr
		}
	}()
	return fn(s)
}

// Info is a point-in-time description of the session.
type Info struct {
	Name         string           `json:"name"`
	Address      string           `json:"address"`
	Engine       string           `json:"engine"`
	State        State            `json:"state"`
	Since        time.Time        `json:"since"`
	Variant      string           `json:"variant"`
	Capabilities Capabilities     `json:"capabilities"`
	QuitReason   string           `json:"quit_reason,omitempty"`
	Error        string           `json:"error,omitempty"`
	Controller   controller.Stats `json:"controller"`
}

// Info returns a snapshot for status reporting.
func (s *Session) Info() Info {
	s.mu.RLock()
	info := Info{
		Name:         s.cfg.Name,
		Address:      s.cfg.Host,
		Engine:       s.engine.Name(),
		State:        s.state,
		Since:        s.since,
		Variant:      s.cfg.Variant.String(),
		Capabilities: s.cfg.Variant.Capabilities(),
		QuitReason:   s.quitReason,
	}
	if s.lastErr != nil {
		info.Error = s.lastErr.Error()
	}
	s.mu.RUnlock()
	info.Controller = s.ctrl.Stats()
	return info
}

// live returns the handle while the session is connected.
func (s *Session) live() (engine.Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil || s.state != StateConnected {
		return nil, engine.ErrNotConnected
	}
	return s.handle, nil
}

// PushController sends a full controller snapshot. It returns
// engine.ErrNotConnected when there is no live connection.
func (s *Session) PushController(state engine.ControllerState) error {
	h, err := s.live()
	if err != nil {
		return err
	}
	if err := h.SetController(state); err != nil {
		if errors.Is(err, engine.ErrHandleClosed) {
			return engine.ErrNotConnected
		}
		return err
	}
	return nil
}

// RequestIDR asks the console for a fresh keyframe.
func (s *Session) RequestIDR() error {
	h, err := s.live()
	if err != nil {
		return err
	}
	return h.RequestIDR()
}

// HasIFrame reports whether a keyframe is cached.
func (s *Session) HasIFrame() bool {
	h, err := s.live()
	if err != nil {
		return false
	}
	return h.HasIFrame()
}

// IFrame copies the cached keyframe into buf.
func (s *Session) IFrame(buf []byte) (int, error) {
	h, err := s.live()
	if err != nil {
		return 0, err
	}
	return h.IFrame(buf)
}

// ClearIFrame drops the cached keyframe.
func (s *Session) ClearIFrame() error {
	h, err := s.live()
	if err != nil {
		return err
	}
	return h.ClearIFrame()
}

// Frame copies the latest frame into buf.
func (s *Session) Frame(buf []byte) (int, error) {
	h, err := s.live()
	if err != nil {
		return 0, err
	}
	return h.Frame(buf)
}

// FrameWithSequence copies the latest frame and returns its sequence number.
func (s *Session) FrameWithSequence(buf []byte) (int, uint64, error) {
	h, err := s.live()
	if err != nil {
		return 0, 0, err
	}
	return h.FrameWithSequence(buf)
}
