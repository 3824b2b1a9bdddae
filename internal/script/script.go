// Package script runs controller macros: a line-oriented command format
// and JavaScript files with a small controller API.
package script

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/controller"
)

// Kind is the command type of one script line.
type Kind int

const (
	KindButton Kind = iota
	KindTrigger
	KindDelay
)

func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindTrigger:
		return "trigger"
	case KindDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// Command is one parsed line.
type Command struct {
	Line     int
	Kind     Kind
	Name     string
	Duration time.Duration
}

func (c Command) String() string {
	if c.Kind == KindDelay {
		return fmt.Sprintf("DELAY %s", c.Duration)
	}
	return fmt.Sprintf("%s %s", strings.ToUpper(c.Name), c.Duration)
}

// Warning describes a line that was skipped or fell back to a default.
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string { return fmt.Sprintf("line %d: %s", w.Line, w.Message) }

// Script is anything that drives a controller.
type Script interface {
	Name() string
	Run(ctx context.Context, ctrl *controller.Controller) error
}

// Load reads a script file. Files ending in .js are JavaScript; everything
// else is the line format.
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: read %s: %w", path, err)
	}
	name := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(path), ".js") {
		return &JS{name: name, Source: string(data)}, nil
	}
	cmds, warnings, err := Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("script: parse %s: %w", path, err)
	}
	for _, w := range warnings {
		log.Warn().Str("script", name).Int("line", w.Line).Msg(w.Message)
	}
	return &Lines{name: name, Commands: cmds}, nil
}

// Parse reads the line format:
//
//	BUTTON [seconds]   press a button (default 0.25 s)
//	L2|R2 [seconds]    pull a trigger fully
//	DELAY seconds      wait (default 0.5 s when missing or invalid)
//	# comment
//
// Unknown commands and bad numbers produce warnings, never errors.
func Parse(r io.Reader) ([]Command, []Warning, error) {
	var (
		cmds     []Command
		warnings []Warning
	)
	warn := func(line int, format string, args ...any) {
		warnings = append(warnings, Warning{Line: line, Message: fmt.Sprintf(format, args...)})
	}

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		word := strings.ToUpper(parts[0])

		switch {
		case word == "DELAY":
			d := constants.ScriptDelayDefault
			if len(parts) < 2 {
				warn(lineNo, "DELAY requires a duration, using %s", d)
			} else if v, ok := seconds(parts[1]); ok {
				d = v
			} else {
				warn(lineNo, "invalid duration %q, using %s", parts[1], d)
			}
			cmds = append(cmds, Command{Line: lineNo, Kind: KindDelay, Duration: d})

		case controller.IsTrigger(word):
			d := constants.ScriptPressDuration
			if len(parts) >= 2 {
				if v, ok := seconds(parts[1]); ok {
					d = v
				}
			}
			cmds = append(cmds, Command{Line: lineNo, Kind: KindTrigger, Name: strings.ToLower(word), Duration: d})

		default:
			if _, err := controller.ParseButton(word); err != nil {
				warn(lineNo, "unknown command %q", word)
				continue
			}
			d := constants.ScriptPressDuration
			if len(parts) >= 2 {
				if v, ok := seconds(parts[1]); ok {
					d = v
				} else {
					warn(lineNo, "invalid duration %q, using default", parts[1])
				}
			}
			cmds = append(cmds, Command{Line: lineNo, Kind: KindButton, Name: strings.ToLower(word), Duration: d})
		}
	}
	if err := sc.Err(); err != nil {
		return cmds, warnings, err
	}
	return cmds, warnings, nil
}

func seconds(s string) (time.Duration, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 3600 {
		return 0, false
	}
	return time.Duration(v * float64(time.Second)), true
}

// Lines is a parsed line-format script.
type Lines struct {
	name     string
	Commands []Command
	// Gap is the pause after every press. Zero uses the default.
	Gap time.Duration
}

// NewLines wraps already parsed commands.
func NewLines(name string, cmds []Command) *Lines {
	return &Lines{name: name, Commands: cmds}
}

// Name implements Script.
func (l *Lines) Name() string { return l.name }

// Run executes the commands in order. Cancelling ctx stops after releasing
// whatever is held.
func (l *Lines) Run(ctx context.Context, ctrl *controller.Controller) error {
	gap := l.Gap
	if gap <= 0 {
		gap = constants.ScriptPressGap
	}
	for _, cmd := range l.Commands {
		log.Info().Str("script", l.name).Int("line", cmd.Line).Msg(cmd.String())
		switch cmd.Kind {
		case KindDelay:
			if err := wait(ctx, cmd.Duration); err != nil {
				return err
			}
		default:
			if err := ctrl.Hold(ctx, cmd.Name, cmd.Duration); err != nil {
				return fmt.Errorf("script: line %d: %w", cmd.Line, err)
			}
			if err := wait(ctx, gap); err != nil {
				return err
			}
		}
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
