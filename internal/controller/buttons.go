package controller

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/remoteplay/rpctl/internal/engine"
)

// ErrUnknownButton is returned for names that map to no button or trigger.
var ErrUnknownButton = errors.New("controller: unknown button")

// Trigger names handled by Press as full trigger pulls.
const (
	TriggerL2 = "l2"
	TriggerR2 = "r2"
)

var buttonNames = map[string]engine.Button{
	"cross":      engine.ButtonCross,
	"x":          engine.ButtonCross,
	"circle":     engine.ButtonMoon,
	"o":          engine.ButtonMoon,
	"moon":       engine.ButtonMoon,
	"square":     engine.ButtonBox,
	"box":        engine.ButtonBox,
	"triangle":   engine.ButtonPyramid,
	"pyramid":    engine.ButtonPyramid,
	"up":         engine.ButtonDPadUp,
	"dpad_up":    engine.ButtonDPadUp,
	"down":       engine.ButtonDPadDown,
	"dpad_down":  engine.ButtonDPadDown,
	"left":       engine.ButtonDPadLeft,
	"dpad_left":  engine.ButtonDPadLeft,
	"right":      engine.ButtonDPadRight,
	"dpad_right": engine.ButtonDPadRight,
	"l1":         engine.ButtonL1,
	"r1":         engine.ButtonR1,
	"l3":         engine.ButtonL3,
	"r3":         engine.ButtonR3,
	"options":    engine.ButtonOptions,
	"share":      engine.ButtonShare,
	"touchpad":   engine.ButtonTouchpad,
	"ps":         engine.ButtonPS,
}

// ParseButton resolves a case-insensitive button name or alias.
func ParseButton(name string) (engine.Button, error) {
	b, ok := buttonNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownButton, name)
	}
	return b, nil
}

// IsTrigger reports whether name refers to an analog trigger.
func IsTrigger(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == TriggerL2 || n == TriggerR2
}

// ButtonNames lists every accepted name, triggers included.
func ButtonNames() []string {
	names := make([]string, 0, len(buttonNames)+2)
	for n := range buttonNames {
		names = append(names, n)
	}
	names = append(names, TriggerL2, TriggerR2)
	sort.Strings(names)
	return names
}
