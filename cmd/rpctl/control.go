package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/remoteplay/rpctl/internal/session"
)

// keymap maps single keys to controller button names.
var keymap = map[byte]string{
	'w': "up", 'a': "left", 's': "down", 'd': "right",
	'k': "cross", ' ': "cross", '\r': "cross",
	'l': "circle", 0x7f: "circle",
	'j': "square",
	'i': "triangle",
	'u': "l1", 'o': "r1",
	'7': "l2", '9': "r2",
	'p': "ps",
	'm': "options",
	'n': "share",
	't': "touchpad",
}

// arrows maps the final byte of ESC [ x sequences.
var arrows = map[byte]string{'A': "up", 'B': "down", 'C': "right", 'D': "left"}

const (
	keyCtrlC = 0x03
	keyCtrlD = 0x04
	keyEsc   = 0x1b
)

// parseKeys turns one read from a raw terminal into button names. quit is
// set on Ctrl-C or Ctrl-D; keys after it are ignored.
func parseKeys(buf []byte) (names []string, quit bool) {
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		switch {
		case b == keyCtrlC || b == keyCtrlD:
			return names, true
		case b == keyEsc && i+2 < len(buf) && buf[i+1] == '[':
			if name, ok := arrows[buf[i+2]]; ok {
				names = append(names, name)
			}
			i += 2
		default:
			if name, ok := keymap[lower(b)]; ok {
				names = append(names, name)
			}
		}
	}
	return names, false
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func keymapHelp() string {
	byName := map[string][]string{}
	for k, name := range keymap {
		var label string
		switch k {
		case ' ':
			label = "space"
		case '\r':
			label = "enter"
		case 0x7f:
			label = "backspace"
		default:
			label = string(k)
		}
		byName[name] = append(byName[name], label)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		keys := byName[name]
		sort.Strings(keys)
		fmt.Fprintf(&b, "  %-9s %s\n", name, strings.Join(keys, ", "))
	}
	b.WriteString("  arrows    d-pad\n  Ctrl-C    quit\n")
	return b.String()
}

func newControlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control <host>",
		Short: "Drive the controller from the keyboard",
		Long:  "Control connects to the console and turns key presses into button taps.\n\nKeys:\n" + keymapHelp(),
		Args:  cobra.ExactArgs(1),
		RunE:  runControl,
	}
	addSessionFlags(cmd)
	return cmd
}

func runControl(cmd *cobra.Command, args []string) error {
	if !terminal.IsTerminal(0) {
		return fmt.Errorf("control needs an interactive terminal")
	}
	ctx, cancel := signalContext()
	defer cancel()

	return withSession(ctx, cmd, args[0], "control", func(ctx context.Context, s *session.Session, _ *runTracker) error {
		fmt.Printf("Connected to %s. Press Ctrl-C to quit.\r\n", s.Config().Name)

		oldState, err := terminal.MakeRaw(0)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer terminal.Restore(0, oldState)

		keys := make(chan []string)
		go func() {
			defer close(keys)
			buffer := make([]byte, 64)
			for {
				n, err := os.Stdin.Read(buffer)
				if err != nil {
					return
				}
				names, quit := parseKeys(buffer[:n])
				if len(names) > 0 {
					select {
					case keys <- names:
					case <-ctx.Done():
						return
					}
				}
				if quit {
					cancel()
					return
				}
			}
		}()

		ctrl := s.Controller()
		for {
			select {
			case <-ctx.Done():
				return nil
			case names, ok := <-keys:
				if !ok {
					return nil
				}
				for _, name := range names {
					if err := ctrl.Press(ctx, name); err != nil {
						log.Warn().Err(err).Str("button", name).Msg("press failed")
					}
				}
			}
		}
	})
}
