// Package stream moves video from a pull-based engine source to push-based
// sinks. It dedupes by sequence number and never reorders or buffers beyond
// the latest available frame.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/engine"
)

var (
	// ErrCaptureTimeout is returned when no I-frame arrives in time. The
	// session stays usable.
	ErrCaptureTimeout = errors.New("stream: timed out waiting for I-frame")
	// ErrEmptyCapture is returned when the I-frame copy yields no bytes.
	ErrEmptyCapture = errors.New("stream: captured I-frame is empty")
	// ErrSinkClosed wraps the error of a sink that stopped accepting data.
	ErrSinkClosed = errors.New("stream: sink closed")
	// ErrSessionEnded is returned when the connection behind the source
	// ends. It wraps the session's own error when there is one.
	ErrSessionEnded = errors.New("stream: session ended")
)

// Source is the read side of a connected session.
type Source interface {
	RequestIDR() error
	HasIFrame() bool
	IFrame(buf []byte) (int, error)
	FrameWithSequence(buf []byte) (int, uint64, error)
}

// Lifetime is implemented by sources bound to one connection. Done is
// closed when the connection ends and Err reports why.
type Lifetime interface {
	Done() <-chan struct{}
	Err() error
}

func sourceDone(src Source) <-chan struct{} {
	if l, ok := src.(Lifetime); ok {
		return l.Done()
	}
	return nil
}

// Ended returns ErrSessionEnded, wrapping the cause src reports.
func Ended(src Source) error {
	if l, ok := src.(Lifetime); ok {
		if err := l.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrSessionEnded, err)
		}
	}
	return ErrSessionEnded
}

// Sink receives compressed frames in arrival order.
type Sink interface {
	Write(frame []byte) error
}

// Closer is implemented by sinks that can go away on their own, such as an
// external player window. Done is closed once the sink accepts no more data.
type Closer interface {
	Done() <-chan struct{}
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frame []byte) error

// Write implements Sink.
func (f SinkFunc) Write(frame []byte) error { return f(frame) }

// Options tunes capture and polling. Zero values use the defaults.
type Options struct {
	IFrameTimeout      time.Duration
	IFramePollInterval time.Duration
	PollInterval       time.Duration
	// BufferSize bounds every frame copy.
	BufferSize int
}

func (o Options) withDefaults() Options {
	if o.IFrameTimeout <= 0 {
		o.IFrameTimeout = constants.IFrameTimeout
	}
	if o.IFramePollInterval <= 0 {
		o.IFramePollInterval = constants.IFramePollInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = constants.FramePollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = engine.MaxFrameSize
	}
	return o
}

// Capture requests a fresh IDR and returns a copy of the resulting I-frame.
func Capture(ctx context.Context, src Source, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	srcDone := sourceDone(src)

	if err := src.RequestIDR(); err != nil {
		return nil, fmt.Errorf("stream: request IDR: %w", err)
	}

	deadline := time.NewTimer(opts.IFrameTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(opts.IFramePollInterval)
	defer tick.Stop()

	for !src.HasIFrame() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-srcDone:
			return nil, Ended(src)
		case <-deadline.C:
			log.Warn().Dur("timeout", opts.IFrameTimeout).Msg("no I-frame received")
			return nil, ErrCaptureTimeout
		case <-tick.C:
		}
	}

	buf := make([]byte, opts.BufferSize)
	n, err := src.IFrame(buf)
	if err != nil {
		return nil, fmt.Errorf("stream: copy I-frame: %w", err)
	}
	if n <= 0 {
		return nil, ErrEmptyCapture
	}
	log.Debug().Int("size", n).Msg("captured I-frame")
	return buf[:n:n], nil
}

// Stats summarizes one pump run.
type Stats struct {
	Sent    uint64        `json:"sent"`
	Missed  uint64        `json:"missed"`
	Polls   uint64        `json:"polls"`
	Bytes   uint64        `json:"bytes"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
}

// Pump polls a source at a fixed rate and forwards each new frame.
type Pump struct {
	Options Options
	// OnFrame, when set, observes every forwarded frame after the sink
	// accepted it.
	OnFrame func(seq uint64, frame []byte)
}

// Run forwards frames until ctx ends, the sink closes or the source's
// connection ends. A cancelled context is a normal stop and returns nil.
// Sink failures return an error wrapping ErrSinkClosed and a lost
// connection one wrapping ErrSessionEnded.
func (p *Pump) Run(ctx context.Context, src Source, sink Sink) (Stats, error) {
	opts := p.Options.withDefaults()
	stats := Stats{Started: time.Now()}

	var sinkDone <-chan struct{}
	if c, ok := sink.(Closer); ok {
		sinkDone = c.Done()
	}
	srcDone := sourceDone(src)

	buf := make([]byte, opts.BufferSize)
	tick := time.NewTicker(opts.PollInterval)
	defer tick.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			stats.Elapsed = time.Since(stats.Started)
			return stats, nil
		case <-sinkDone:
			stats.Elapsed = time.Since(stats.Started)
			return stats, fmt.Errorf("%w: consumer exited", ErrSinkClosed)
		case <-srcDone:
			stats.Elapsed = time.Since(stats.Started)
			return stats, Ended(src)
		case <-tick.C:
		}

		stats.Polls++
		n, seq, err := src.FrameWithSequence(buf)
		if err != nil || n <= 0 || seq <= last {
			continue
		}
		if last > 0 && seq > last+1 {
			stats.Missed += seq - last - 1
		}
		if err := sink.Write(buf[:n]); err != nil {
			stats.Elapsed = time.Since(stats.Started)
			return stats, fmt.Errorf("%w: %v", ErrSinkClosed, err)
		}
		last = seq
		stats.Sent++
		stats.Bytes += uint64(n)
		if p.OnFrame != nil {
			p.OnFrame(seq, buf[:n])
		}
	}
}

// Stream captures an I-frame, writes it first, then pumps frames until ctx
// ends or the sink closes.
func Stream(ctx context.Context, src Source, sink Sink, opts Options) (Stats, error) {
	iframe, err := Capture(ctx, src, opts)
	if err != nil {
		return Stats{Started: time.Now()}, err
	}
	if err := sink.Write(iframe); err != nil {
		return Stats{Started: time.Now()}, fmt.Errorf("%w: %v", ErrSinkClosed, err)
	}

	p := &Pump{Options: opts}
	stats, err := p.Run(ctx, src, sink)
	stats.Sent++
	stats.Bytes += uint64(len(iframe))
	log.Info().
		Uint64("sent", stats.Sent).
		Uint64("missed", stats.Missed).
		Dur("elapsed", stats.Elapsed).
		Msg("stream ended")
	return stats, err
}
