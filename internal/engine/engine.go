// Package engine defines the contract between the session layer and a
// Remote Session Engine: the component that owns the network transport,
// the handshake and video decoding for one console connection.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxFrameSize bounds every frame and I-frame buffer exchanged with an engine.
const MaxFrameSize = 4 * 1024 * 1024

var (
	// ErrHandleClosed is returned by any call on a destroyed handle.
	ErrHandleClosed = errors.New("engine: handle closed")
	// ErrNotConnected is returned when the handle has no live connection.
	ErrNotConnected = errors.New("engine: not connected")
	// ErrUnavailable is returned by engines that were not compiled in.
	ErrUnavailable = errors.New("engine: not available in this build")
	// ErrRejected is returned when the engine refuses an operation.
	ErrRejected = errors.New("engine: operation rejected")
)

// ResolutionPreset selects the video resolution the console is asked for.
type ResolutionPreset int

const (
	Resolution360p  ResolutionPreset = 1
	Resolution540p  ResolutionPreset = 2
	Resolution720p  ResolutionPreset = 3
	Resolution1080p ResolutionPreset = 4
)

// String returns the human-readable preset name.
func (r ResolutionPreset) String() string {
	switch r {
	case Resolution360p:
		return "360p"
	case Resolution540p:
		return "540p"
	case Resolution720p:
		return "720p"
	case Resolution1080p:
		return "1080p"
	default:
		return "unknown"
	}
}

// FPSPreset selects the requested frame rate.
type FPSPreset int

const (
	FPS30 FPSPreset = 30
	FPS60 FPSPreset = 60
)

// ParseResolution maps "360p", "540p", "720p" or "1080p" to a preset. Any
// other input yields 720p; ok reports whether the input was recognised.
func ParseResolution(s string) (ResolutionPreset, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "360p":
		return Resolution360p, true
	case "540p":
		return Resolution540p, true
	case "720p":
		return Resolution720p, true
	case "1080p":
		return Resolution1080p, true
	default:
		return Resolution720p, false
	}
}

// ParseFPS maps 30 or 60 to a preset. Any other value yields 60.
func ParseFPS(fps int) (FPSPreset, bool) {
	switch fps {
	case 30:
		return FPS30, true
	case 60:
		return FPS60, true
	default:
		return FPS60, false
	}
}

// ConnectInfo is everything an engine needs to open a session.
type ConnectInfo struct {
	Host       string
	RegistKey  [16]byte
	RPKey      [16]byte
	AccountID  [8]byte
	PS5        bool
	Resolution ResolutionPreset
	FPS        FPSPreset
	Callbacks  Callbacks
}

// Engine creates session handles.
type Engine interface {
	Name() string
	Create(info ConnectInfo) (Handle, error)
}

// Handle is one live engine session. Its lifecycle is Create, Start, use,
// Stop, Destroy. Implementations synchronize their own state so frame reads
// and controller pushes may come from different goroutines.
type Handle interface {
	Start() error
	// WaitConnected blocks until the session reports connected, the session
	// quits, ctx ends or timeout elapses.
	WaitConnected(ctx context.Context, timeout time.Duration) (bool, error)
	IsConnected() bool
	SetController(state ControllerState) error
	// RequestIDR drops the cached I-frame and asks the console for a new one.
	RequestIDR() error
	HasIFrame() bool
	// IFrame copies the cached I-frame into buf and returns the byte count.
	// It returns 0 when there is no I-frame or it does not fit.
	IFrame(buf []byte) (int, error)
	ClearIFrame() error
	// Frame copies the latest frame into buf.
	Frame(buf []byte) (int, error)
	// FrameWithSequence copies the latest frame and returns its sequence.
	FrameWithSequence(buf []byte) (int, uint64, error)
	// Stop ends the session and joins its worker.
	Stop() error
	Destroy() error
}
