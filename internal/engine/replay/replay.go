// Package replay implements an engine that plays a recording back as if it
// were a live console session. It is registered as "replay"; the engine
// argument is the recording path.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/engine"
	"github.com/remoteplay/rpctl/internal/recording"
)

func init() {
	engine.Register("replay", func(arg string) (engine.Engine, error) {
		if arg == "" {
			return nil, errors.New("replay: recording path required (replay:<file>)")
		}
		return New(arg), nil
	})
}

// Engine replays one recording file per handle.
type Engine struct {
	Path string
	// Speed scales playback; values <= 0 mean realtime.
	Speed float64
}

// New returns a realtime replay engine for path.
func New(path string) *Engine {
	return &Engine{Path: path, Speed: 1}
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return "replay" }

// Create implements engine.Engine. The recording is opened eagerly so a bad
// path fails here rather than at Start.
func (e *Engine) Create(info engine.ConnectInfo) (engine.Handle, error) {
	r, err := recording.Open(e.Path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	speed := e.Speed
	if speed <= 0 {
		speed = 1
	}
	return &handle{
		info:   info,
		reader: r,
		speed:  speed,
		frames: engine.NewFrameStore(),
		done:   make(chan struct{}),
	}, nil
}

type handle struct {
	info   engine.ConnectInfo
	reader *recording.Reader
	speed  float64
	frames *engine.FrameStore

	mu        sync.Mutex
	started   bool
	connected bool
	destroyed bool
	cancel    context.CancelFunc
	done      chan struct{}
	lastState engine.ControllerState
}

func (h *handle) closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

func (h *handle) Start() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return engine.ErrHandleClosed
	}
	if h.started {
		h.mu.Unlock()
		return engine.ErrRejected
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.started = true
	h.connected = true
	cb := h.info.Callbacks
	h.mu.Unlock()

	cb.Log(engine.LogInfo, "replaying recording of "+h.reader.Header.Host)
	cb.Emit(engine.Event{Type: engine.EventConnected})
	go h.play(ctx)
	return nil
}

func (h *handle) play(ctx context.Context) {
	defer close(h.done)
	start := time.Now()
	reason := "recording finished"
	for {
		rec, err := h.reader.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				reason = err.Error()
				log.Warn().Err(err).Msg("replay stopped on a damaged record")
			}
			break
		}
		due := time.Duration(float64(rec.Offset()) / h.speed)
		if wait := due - time.Since(start); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return
		}
		h.frames.Push(rec.Data)
	}

	h.mu.Lock()
	h.connected = false
	cb := h.info.Callbacks
	h.mu.Unlock()
	cb.Emit(engine.Event{Type: engine.EventQuit, Reason: reason})
}

func (h *handle) WaitConnected(ctx context.Context, timeout time.Duration) (bool, error) {
	if h.closed() {
		return false, engine.ErrHandleClosed
	}
	// Playback connects synchronously in Start.
	return h.IsConnected(), nil
}

func (h *handle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected && !h.destroyed
}

func (h *handle) SetController(state engine.ControllerState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return engine.ErrHandleClosed
	}
	if !h.connected {
		return engine.ErrNotConnected
	}
	h.lastState = state
	return nil
}

func (h *handle) RequestIDR() error {
	if !h.IsConnected() {
		if h.closed() {
			return engine.ErrHandleClosed
		}
		return engine.ErrNotConnected
	}
	// The next keyframe in the recording refills the cache.
	h.frames.ClearIFrame()
	return nil
}

func (h *handle) HasIFrame() bool {
	return !h.closed() && h.frames.HasIFrame()
}

func (h *handle) IFrame(buf []byte) (int, error) {
	if h.closed() {
		return 0, engine.ErrHandleClosed
	}
	return h.frames.IFrame(buf), nil
}

func (h *handle) ClearIFrame() error {
	if h.closed() {
		return engine.ErrHandleClosed
	}
	h.frames.ClearIFrame()
	return nil
}

func (h *handle) Frame(buf []byte) (int, error) {
	if h.closed() {
		return 0, engine.ErrHandleClosed
	}
	return h.frames.Frame(buf), nil
}

func (h *handle) FrameWithSequence(buf []byte) (int, uint64, error) {
	if h.closed() {
		return 0, 0, engine.ErrHandleClosed
	}
	n, seq := h.frames.FrameWithSequence(buf)
	return n, seq, nil
}

func (h *handle) Stop() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return engine.ErrHandleClosed
	}
	started := h.started
	cancel := h.cancel
	h.connected = false
	h.mu.Unlock()

	if !started {
		return nil
	}
	cancel()
	<-h.done
	return nil
}

func (h *handle) Destroy() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return engine.ErrHandleClosed
	}
	h.destroyed = true
	h.connected = false
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-h.done
	}
	return h.reader.Close()
}
