package controller

import (
	"fmt"

	"github.com/remoteplay/rpctl/internal/engine"
)

// TouchStart places a new contact at (x, y) and returns its id. Ids come
// from a 7-bit rolling counter.
func (c *Controller) TouchStart(x, y uint16) (int8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := -1
	for i, t := range c.state.Touches {
		if t.ID < 0 {
			slot = i
			break
		}
	}
	if slot < 0 {
		return -1, ErrNoTouchSlot
	}
	id := int8(c.state.TouchIDNext & 0x7f)
	c.state.TouchIDNext = (c.state.TouchIDNext + 1) & 0x7f
	c.state.Touches[slot] = engine.Touch{X: x, Y: y, ID: id}
	return id, c.pushLocked()
}

// TouchMove moves the contact with the given id.
func (c *Controller) TouchMove(id int8, x, y uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, err := c.touchSlot(id)
	if err != nil {
		return err
	}
	c.state.Touches[slot].X, c.state.Touches[slot].Y = x, y
	return c.pushLocked()
}

// TouchEnd lifts the contact with the given id.
func (c *Controller) TouchEnd(id int8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, err := c.touchSlot(id)
	if err != nil {
		return err
	}
	c.state.Touches[slot].ID = -1
	return c.pushLocked()
}

func (c *Controller) touchSlot(id int8) (int, error) {
	if id >= 0 {
		for i, t := range c.state.Touches {
			if t.ID == id {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("controller: no touch with id %d", id)
}
