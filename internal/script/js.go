package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/controller"
	"github.com/remoteplay/rpctl/internal/engine"
)

// JS is a JavaScript macro. The global scope offers:
//
//	press(name, seconds?)   down, hold, up; seconds defaults to the press hold
//	down(name) / up(name)   raw button changes
//	delay(seconds)
//	stick("left"|"right", x, y)
//	triggers(l2, r2)
//	reset()
//	log(msg)
type JS struct {
	name   string
	Source string
}

// NewJS wraps JavaScript source.
func NewJS(name, source string) *JS { return &JS{name: name, Source: source} }

// Name implements Script.
func (j *JS) Name() string { return j.name }

// Run executes the script. Cancelling ctx interrupts it between or during
// controller calls; held buttons are released by Hold before returning.
func (j *JS) Run(ctx context.Context, ctrl *controller.Controller) error {
	vm := goja.New()

	check := func(err error) {
		if err != nil {
			panic(vm.NewGoError(err))
		}
	}
	secs := func(v goja.Value, def time.Duration) time.Duration {
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return def
		}
		f := v.ToFloat()
		if f < 0 {
			return 0
		}
		return time.Duration(f * float64(time.Second))
	}
	button := func(name string) engine.Button {
		b, err := controller.ParseButton(name)
		check(err)
		return b
	}

	set := func(name string, fn any) error { return vm.Set(name, fn) }
	err := errors.Join(
		set("press", func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			check(ctrl.Hold(ctx, name, secs(call.Argument(1), ctrl.PressDuration)))
			return goja.Undefined()
		}),
		set("down", func(name string) { check(ctrl.ButtonDown(button(name))) }),
		set("up", func(name string) { check(ctrl.ButtonUp(button(name))) }),
		set("delay", func(call goja.FunctionCall) goja.Value {
			check(wait(ctx, secs(call.Argument(0), 0)))
			return goja.Undefined()
		}),
		set("stick", func(side string, x, y float64) {
			switch strings.ToLower(side) {
			case "left", "l":
				check(ctrl.SetLeftStick(x, y))
			case "right", "r":
				check(ctrl.SetRightStick(x, y))
			default:
				check(fmt.Errorf("script: unknown stick %q", side))
			}
		}),
		set("triggers", func(l2, r2 float64) { check(ctrl.SetTriggers(l2, r2)) }),
		set("reset", func() { check(ctrl.Reset()) }),
		set("log", func(msg string) { log.Info().Str("script", j.name).Msg(msg) }),
	)
	if err != nil {
		return fmt.Errorf("script: setup: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	if _, err := vm.RunScript(j.name, j.Source); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx.Err() != nil {
			return ctx.Err()
		}
		var exc *goja.Exception
		if errors.As(err, &exc) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("script: %s: %s", j.name, exc.Error())
		}
		return fmt.Errorf("script: %s: %w", j.name, err)
	}
	return nil
}
