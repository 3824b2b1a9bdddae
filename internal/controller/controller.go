// Package controller aggregates input into one controller state and pushes
// the complete snapshot to the session after every change.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/engine"
)

// ErrNoTouchSlot is returned when both touchpad slots are in use.
var ErrNoTouchSlot = errors.New("controller: no free touch slot")

// Target receives complete controller snapshots. It returns
// engine.ErrNotConnected when there is no live session.
type Target interface {
	PushController(state engine.ControllerState) error
}

// Stats counts snapshot pushes.
type Stats struct {
	Sent    uint64
	Skipped uint64
	Failed  uint64
}

// Controller owns one controller state. All mutators are serialized: the
// state change and the push of the resulting snapshot happen under one lock.
type Controller struct {
	target Target

	mu    sync.Mutex
	state engine.ControllerState
	stats Stats

	// PressDuration is the hold used by Press.
	PressDuration time.Duration
}

// New returns an idle controller pushing to target.
func New(target Target) *Controller {
	return &Controller{
		target:        target,
		state:         engine.IdleControllerState(),
		PressDuration: constants.DurationPressHold,
	}
}

// State returns a copy of the current state.
func (c *Controller) State() engine.ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns the push counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// update applies fn and pushes the result. Caller must not hold mu.
func (c *Controller) update(fn func(s *engine.ControllerState)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	return c.pushLocked()
}

func (c *Controller) pushLocked() error {
	err := c.target.PushController(c.state)
	switch {
	case err == nil:
		c.stats.Sent++
		return nil
	case errors.Is(err, engine.ErrNotConnected):
		c.stats.Skipped++
		log.Warn().Uint32("buttons", c.state.Buttons).Msg("controller state not sent: session not connected")
		return nil
	default:
		c.stats.Failed++
		return fmt.Errorf("controller: push failed: %w", err)
	}
}

// ButtonDown sets b in the button mask.
func (c *Controller) ButtonDown(b engine.Button) error {
	return c.update(func(s *engine.ControllerState) { s.Buttons |= uint32(b) })
}

// ButtonUp clears b from the button mask.
func (c *Controller) ButtonUp(b engine.Button) error {
	return c.update(func(s *engine.ControllerState) { s.Buttons &^= uint32(b) })
}

// SetLeftStick positions the left stick; axes are in [-1, 1].
func (c *Controller) SetLeftStick(x, y float64) error {
	return c.update(func(s *engine.ControllerState) {
		s.LeftX, s.LeftY = StickValue(x), StickValue(y)
	})
}

// SetRightStick positions the right stick; axes are in [-1, 1].
func (c *Controller) SetRightStick(x, y float64) error {
	return c.update(func(s *engine.ControllerState) {
		s.RightX, s.RightY = StickValue(x), StickValue(y)
	})
}

// SetTriggers sets both trigger pressures in [0, 1].
func (c *Controller) SetTriggers(l2, r2 float64) error {
	return c.update(func(s *engine.ControllerState) {
		s.L2, s.R2 = TriggerValue(l2), TriggerValue(r2)
	})
}

// SetL2 sets the left trigger only.
func (c *Controller) SetL2(v float64) error {
	return c.update(func(s *engine.ControllerState) { s.L2 = TriggerValue(v) })
}

// SetR2 sets the right trigger only.
func (c *Controller) SetR2(v float64) error {
	return c.update(func(s *engine.ControllerState) { s.R2 = TriggerValue(v) })
}

// Reset returns to the idle state and pushes it.
func (c *Controller) Reset() error {
	return c.update(func(s *engine.ControllerState) { *s = engine.IdleControllerState() })
}

// Press taps the named button (or trigger) for PressDuration.
func (c *Controller) Press(ctx context.Context, name string) error {
	return c.Hold(ctx, name, c.PressDuration)
}

// Hold presses the named button or trigger, waits d, then releases it. The
// release is sent even when ctx ends during the hold.
func (c *Controller) Hold(ctx context.Context, name string, d time.Duration) error {
	down, up, err := c.actions(name)
	if err != nil {
		return err
	}
	if err := down(); err != nil {
		return err
	}
	waitErr := sleep(ctx, d)
	if err := up(); err != nil {
		return err
	}
	return waitErr
}

// PressButton taps b for PressDuration.
func (c *Controller) PressButton(ctx context.Context, b engine.Button) error {
	if err := c.ButtonDown(b); err != nil {
		return err
	}
	waitErr := sleep(ctx, c.PressDuration)
	if err := c.ButtonUp(b); err != nil {
		return err
	}
	return waitErr
}

func (c *Controller) actions(name string) (down, up func() error, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TriggerL2:
		return func() error { return c.SetL2(1) }, func() error { return c.SetL2(0) }, nil
	case TriggerR2:
		return func() error { return c.SetR2(1) }, func() error { return c.SetR2(0) }, nil
	}
	b, err := ParseButton(name)
	if err != nil {
		return nil, nil, err
	}
	return func() error { return c.ButtonDown(b) }, func() error { return c.ButtonUp(b) }, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StickValue scales an axis in [-1, 1] to the signed 16-bit range. Input is
// clamped first and the product truncated toward zero; NaN maps to 0.
func StickValue(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	return int16(clamp(v, -1, 1) * math.MaxInt16)
}

// TriggerValue scales a pressure in [0, 1] to 0..255, truncating.
func TriggerValue(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	return uint8(clamp(v, 0, 1) * math.MaxUint8)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
